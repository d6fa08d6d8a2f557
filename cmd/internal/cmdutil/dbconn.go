package cmdutil

import (
	"context"

	"github.com/mdsync/mdsync/config"
	"github.com/mdsync/mdsync/dbconn"
	"github.com/mdsync/mdsync/retry"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

type dbConnConfig struct {
	source   string
	attempts int
}

var dbConnCfg = dbConnConfig{attempts: retry.DefaultSettings().MaxAttempts}

func RegisterDBConnFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(
		&dbConnCfg.source,
		"source",
		"",
		"if set, URL of the source database, overriding the configuration's database block",
	)
	cmd.PersistentFlags().IntVar(
		&dbConnCfg.attempts,
		"connect-attempts",
		dbConnCfg.attempts,
		"number of attempts to make connecting to the source database",
	)
}

// LoadSourceConn connects to the source database described by cfg, or by
// --source when set.
func LoadSourceConn(ctx context.Context, logger zerolog.Logger, cfg *config.Config) (dbconn.Conn, error) {
	connStr := dbConnCfg.source
	if connStr == "" {
		var err error
		if connStr, err = cfg.ConnStr(); err != nil {
			return nil, err
		}
	}
	settings := retry.DefaultSettings()
	settings.MaxAttempts = dbConnCfg.attempts
	if err := settings.Verify(); err != nil {
		return nil, err
	}
	return dbconn.ConnectWithRetry(ctx, logger, settings, "source", connStr)
}
