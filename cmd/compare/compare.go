package compare

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/mdsync/mdsync/cmd/internal/cmdutil"
	"github.com/mdsync/mdsync/datadiff"
	"github.com/mdsync/mdsync/dbconn"
	"github.com/mdsync/mdsync/extract"
	"github.com/mdsync/mdsync/report"
	"github.com/mdsync/mdsync/snapshot"
	"github.com/spf13/cobra"
)

func Command() *cobra.Command {
	var (
		concurrency int
		crossJoin   bool
		failOnDiff  bool
	)
	cmd := &cobra.Command{
		Use:   "compare <config> <remote-dump> <local-dump>",
		Short: "Reports the records that differ between two snapshots.",
		Long: `Compares two snapshots table by table, matching records by the
table's secondary key or else its primary key, and reports every updated,
inserted and deleted record.`,
		Args: cobra.ExactArgs(3),

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

			// The database is only needed for tables without cached metadata.
			var src extract.Source
			if _, missing := cfg.MetadataSet(cfg.SelectedTables()); len(missing) > 0 {
				var conn dbconn.Conn
				conn, err = cmdutil.LoadSourceConn(ctx, logger, cfg)
				if err != nil {
					return err
				}
				src = extract.NewDBSource(conn)
				defer func() { _ = src.Close(ctx) }()
			}
			tables, err := extract.LoadMetadata(
				ctx,
				extract.Settings{TableFilter: cmdutil.TableFilter()},
				logger,
				cfg,
				src,
			)
			if err != nil {
				return err
			}

			var snaps [2]snapshot.Snapshot
			for i, name := range args[1:] {
				b, err := store.Read(ctx, name)
				if err != nil {
					return err
				}
				if snaps[i], err = snapshot.Decode(b); err != nil {
					return errors.Wrapf(err, "error reading %s", name)
				}
			}

			reporter := report.LogReporter{Logger: logger}
			defer reporter.Close()
			results, err := datadiff.Compare(
				ctx,
				tables,
				snaps[0],
				snaps[1],
				reporter,
				datadiff.WithConcurrency(concurrency),
				datadiff.WithCrossJoin(crossJoin),
			)
			if err != nil {
				return err
			}
			summary := datadiff.Summarize(results)
			logger.Info().
				Int("num_tables", summary.Tables).
				Int("num_updated", summary.Updated).
				Int("num_inserted", summary.Inserted).
				Int("num_deleted", summary.Deleted).
				Msgf("comparison complete")
			if failOnDiff && summary.Updated+summary.Inserted+summary.Deleted > 0 {
				return errors.Newf(
					"snapshots differ: %d updated, %d inserted, %d deleted",
					summary.Updated, summary.Inserted, summary.Deleted,
				)
			}
			return nil
		},
	}

	cmd.PersistentFlags().IntVar(
		&concurrency,
		"concurrency",
		4,
		"number of tables to compare at a time",
	)
	cmd.PersistentFlags().BoolVar(
		&crossJoin,
		"cross-join",
		false,
		"if set, matches records with a nested loop instead of a key index",
	)
	cmd.PersistentFlags().BoolVar(
		&failOnDiff,
		"fail-on-diff",
		false,
		"if set, exits with an error when the snapshots differ",
	)

	cmdutil.RegisterConfigFlags(cmd)
	cmdutil.RegisterDBConnFlags(cmd)
	cmdutil.RegisterStoreFlags(cmd)
	cmdutil.RegisterLoggerFlags(cmd)
	cmdutil.RegisterNameFilterFlags(cmd)
	cmdutil.RegisterMetricsFlags(cmd)
	return cmd
}
