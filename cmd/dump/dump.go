package dump

import (
	"context"

	"github.com/mdsync/mdsync/cmd/internal/cmdutil"
	"github.com/mdsync/mdsync/extract"
	"github.com/mdsync/mdsync/report"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var settings extract.Settings
	cmd := &cobra.Command{
		Use:   "dump <config> <dump-file>",
		Short: "Writes a remapped snapshot of the selected tables.",
		Long: `Reads the selected tables of the configured database, replaces
autoincrement primary keys with generated surrogates and writes the snapshot
together with a lookup document of the original keys.

If the configuration lists no tables, the database's tables are written to it
with syncing disabled and no snapshot is taken.`,
		Args: cobra.ExactArgs(2),

		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()

			logger, err := cmdutil.Logger()
			if err != nil {
				return err
			}
			cmdutil.RunMetricsServer(logger)

			cfg, err := cmdutil.LoadConfig(logger, args[0])
			if err != nil {
				return err
			}
			store, err := cmdutil.LoadStore(ctx, logger)
			if err != nil {
				return err
			}
			conn, err := cmdutil.LoadSourceConn(ctx, logger, cfg)
			if err != nil {
				return err
			}
			src := extract.NewDBSource(conn)
			defer func() {
				if err := src.Close(ctx); err != nil {
					logger.Err(err).Msgf("error closing source connection")
				}
			}()

			reporter := report.LogReporter{Logger: logger}
			defer reporter.Close()

			settings.TableFilter = cmdutil.TableFilter()
			_, err = extract.Dump(ctx, settings, logger, cfg, src, store, reporter, args[1])
			return err
		},
	}

	cmd.PersistentFlags().IntVar(
		&settings.Concurrency,
		"concurrency",
		4,
		"number of tables to read at a time",
	)
	cmd.PersistentFlags().BoolVar(
		&settings.NoRemap,
		"no-remap",
		false,
		"if set, keeps the original primary keys and writes no lookup document",
	)
	cmd.PersistentFlags().BoolVar(
		&settings.RefreshMetadata,
		"refresh-metadata",
		false,
		"if set, introspects every selected table instead of using cached metadata",
	)
	cmd.PersistentFlags().BoolVar(
		&settings.TableScopedReferences,
		"table-scoped-references",
		false,
		"if set, foreign keys only pick up surrogates generated for the table they reference",
	)

	cmdutil.RegisterConfigFlags(cmd)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterStoreFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	cmdutil.RegisterNameFilterFlags(cmd)
	cmdutil.RegisterMetricsFlags(cmd)
	return cmd
}
