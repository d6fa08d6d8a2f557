package cmdutil

import (
	"os"

	"github.com/cockroachdb/errors"
	"github.com/joho/godotenv"
	"github.com/mdsync/mdsync/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var envFile = ".env"

func RegisterConfigFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&envFile,
		"env-file",
		envFile,
		"file of environment overrides to load before reading the configuration",
	)
}

// LoadConfig loads --env-file, if present, and then the configuration.
func LoadConfig(logger zerolog.Logger, path string) (*config.Config, error) {
	if err := godotenv.Load(envFile); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, errors.Wrapf(err, "error loading %s", envFile)
		}
		logger.Debug().Str("env_file", envFile).Msgf("no environment file found")
	}
	return config.Load(path)
}
