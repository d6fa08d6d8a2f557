package extract

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/mdsync/mdsync/config"
	"github.com/mdsync/mdsync/depgraph"
	"github.com/mdsync/mdsync/remap"
	"github.com/mdsync/mdsync/report"
	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/snapstore"
	"github.com/mdsync/mdsync/tablemeta"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

var rowsExtracted = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mdsync",
	Name:      "extract_rows_total",
	Help:      "Rows read from the source database.",
})

type Settings struct {
	Concurrency int
	// NoRemap writes the original key values and no lookup document.
	NoRemap bool
	// RefreshMetadata introspects every selected table, ignoring the
	// metadata cached in the configuration.
	RefreshMetadata       bool
	TableScopedReferences bool
	Generator             remap.Generator
	// TableFilter restricts the selected tables further.
	TableFilter string
}

type Result struct {
	// Discovered is set when the configuration listed no tables and the
	// run only registered the database's tables.
	Discovered bool
	Tables     []string
	Rows       int
	Remap      remap.Stats
}

// Dump refreshes the configuration's metadata, verifies the dependency
// graph and writes a remapped snapshot of the selected tables, preceded by
// its lookup document.
func Dump(
	ctx context.Context,
	settings Settings,
	logger zerolog.Logger,
	cfg *config.Config,
	src Source,
	store snapstore.Store,
	reporter report.Reporter,
	dumpName string,
) (Result, error) {
	if settings.Concurrency == 0 {
		settings.Concurrency = 4
	}

	if len(cfg.Tables) == 0 {
		logger.Info().Msgf("no tables configured, discovering tables")
		names, err := src.ListTables(ctx)
		if err != nil {
			return Result{}, err
		}
		cfg.DiscoverTables(names)
		if err := cfg.Save(logger); err != nil {
			return Result{}, err
		}
		logger.Info().
			Int("num_tables", len(names)).
			Str("config", cfg.Path()).
			Msgf("tables discovered, enable the tables to sync and rerun")
		return Result{Discovered: true}, nil
	}

	tables, err := LoadMetadata(ctx, settings, logger, cfg, src)
	if err != nil {
		return Result{}, err
	}
	if tables.Len() == 0 {
		return Result{}, errors.Newf("no tables selected for syncing in %s", cfg.Path())
	}

	graph := depgraph.FromSet(tables)
	checks := graph.DetectCycles()
	checks.Report(reporter)
	if err := checks.Err(); err != nil {
		return Result{}, err
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return Result{}, err
	}
	logger.Info().Strs("tables", order).Msgf("dependency order verified")

	snap, numRows, err := loadRows(ctx, settings, logger, tables, order, src)
	if err != nil {
		return Result{}, err
	}
	ret := Result{Tables: order, Rows: numRows}

	var lookup []byte
	if !settings.NoRemap {
		opts := []remap.Opt{
			remap.WithConcurrency(settings.Concurrency),
			remap.WithTableScopedReferences(settings.TableScopedReferences),
		}
		if settings.Generator != nil {
			opts = append(opts, remap.WithGenerator(settings.Generator))
		}
		remapped, err := remap.Remap(ctx, tables, snap, opts...)
		if err != nil {
			return Result{}, err
		}
		logger.Info().
			Int("num_pairs", remapped.Stats.Pairs).
			Int("num_fields", remapped.Stats.StagedFields).
			Msgf("remapped surrogate keys")
		snap = remapped.Snapshot
		ret.Remap = remapped.Stats

		if lookup, err = snapshot.EncodeLookup(remapped.Lookup); err != nil {
			return Result{}, err
		}
	}

	// Both documents are encoded before either is written, and the lookup
	// is only written once the snapshot it describes is in place.
	data, err := snapshot.Encode(snap)
	if err != nil {
		return Result{}, err
	}
	if _, err := store.Write(ctx, dumpName, data); err != nil {
		return Result{}, err
	}
	if lookup != nil {
		if _, err := store.Write(ctx, snapshot.IDFileName(dumpName), lookup); err != nil {
			return Result{}, err
		}
	}
	logger.Info().
		Int("num_tables", len(order)).
		Int("num_rows", numRows).
		Str("dump", store.URL(dumpName)).
		Msgf("dump complete")
	return ret, nil
}

// LoadMetadata takes cached metadata where present, introspects the rest
// and writes the merged block back to the configuration. src may be nil
// when every selected table has cached metadata.
func LoadMetadata(
	ctx context.Context, settings Settings, logger zerolog.Logger, cfg *config.Config, src Source,
) (tablemeta.Set, error) {
	selected := cfg.SelectedTables()
	var cached []tablemeta.Table
	missing := selected
	if !settings.RefreshMetadata {
		cached, missing = cfg.MetadataSet(selected)
	}
	if len(missing) > 0 && src == nil {
		return tablemeta.Set{}, errors.Newf("no cached metadata for %s", strings.Join(missing, ", "))
	}
	for _, name := range missing {
		t, err := src.Introspect(ctx, name)
		if err != nil {
			return tablemeta.Set{}, err
		}
		logger.Debug().Str("table", name).Msgf("introspected table metadata")
		cached = append(cached, t)
	}
	tables, err := tablemeta.NewSet(cached...)
	if err != nil {
		return tablemeta.Set{}, err
	}
	if len(missing) > 0 {
		cfg.CacheMetadata(tables)
		if err := cfg.Save(logger); err != nil {
			return tablemeta.Set{}, err
		}
	}
	if settings.TableFilter != "" {
		if tables, err = tables.Filter(settings.TableFilter); err != nil {
			return tablemeta.Set{}, err
		}
	}
	return tables, nil
}

func loadRows(
	ctx context.Context,
	settings Settings,
	logger zerolog.Logger,
	tables tablemeta.Set,
	order []string,
	src Source,
) (snapshot.Snapshot, int, error) {
	type loaded struct {
		sync.Mutex
		snap    snapshot.Snapshot
		numRows int
	}
	out := loaded{snap: make(snapshot.Snapshot, len(order))}

	workCh := make(chan tablemeta.Table)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < settings.Concurrency; i++ {
		g.Go(func() error {
			workerSrc, err := src.Clone(gctx)
			if err != nil {
				return err
			}
			defer func() {
				if err := workerSrc.Close(ctx); err != nil {
					logger.Err(err).Msgf("error closing source")
				}
			}()
			for table := range workCh {
				rows, err := workerSrc.Rows(gctx, table)
				if err != nil {
					return errors.Wrapf(err, "error loading %s", table.Name)
				}
				rowsExtracted.Add(float64(len(rows)))
				logger.Debug().Str("table", table.Name).Int("num_rows", len(rows)).Msgf("loaded table")

				out.Lock()
				out.snap[table.Name] = rows
				out.numRows += len(rows)
				out.Unlock()
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(workCh)
		for _, name := range order {
			t, _ := tables.Get(name)
			select {
			case workCh <- t:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}
	// Empty tables are still part of the snapshot.
	for _, name := range order {
		if out.snap[name] == nil {
			out.snap[name] = []snapshot.Row{}
		}
	}
	return out.snap, out.numRows, nil
}
