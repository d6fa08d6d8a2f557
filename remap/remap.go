package remap

import (
	"context"
	"fmt"

	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/tablemeta"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var surrogatesGenerated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "mdsync",
	Subsystem: "remap",
	Name:      "surrogates_total",
	Help:      "Number of surrogate identifiers generated.",
})

type remapOpts struct {
	generator   Generator
	concurrency int
	tableScoped bool
}

type Opt func(*remapOpts)

func WithGenerator(g Generator) Opt {
	return func(o *remapOpts) {
		o.generator = g
	}
}

// WithConcurrency sets the number of tables propagated at a time.
func WithConcurrency(c int) Opt {
	return func(o *remapOpts) {
		o.concurrency = c
	}
}

// WithTableScopedReferences only propagates a surrogate into foreign keys
// whose referenced table owns the original value. By default a foreign key
// matches on referenced column name and value alone.
func WithTableScopedReferences(scoped bool) Opt {
	return func(o *remapOpts) {
		o.tableScoped = scoped
	}
}

// GenerationError is returned when a surrogate could not be produced.
type GenerationError struct {
	Table  string
	Column string
	Value  any
	Cause  error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("error generating surrogate for %s.%s = %v: %v", e.Table, e.Column, e.Value, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

type Stats struct {
	Pairs        int
	StagedFields int
	Tables       []string
}

type Result struct {
	Snapshot snapshot.Snapshot
	Lookup   snapshot.Lookup
	Stats    Stats
}

// pairKey identifies an original (column, value) pair. table is only set
// when references are table scoped.
type pairKey struct {
	table  string
	column string
	value  string
}

type pair struct {
	owner     string
	column    string
	original  any
	surrogate string
}

type fieldRef struct {
	row    int
	column string
}

// staging holds the pending replacements of one table. Each field keeps
// the surrogate of the earliest pair targeting it, which is what a
// sequential first-writer-wins pass over the pairs would leave behind.
type staging map[fieldRef]int

func (s staging) stage(ref fieldRef, pairIdx int) {
	if cur, ok := s[ref]; ok && cur <= pairIdx {
		return
	}
	s[ref] = pairIdx
}

type remapper struct {
	opts   remapOpts
	tables tablemeta.Set
	snap   snapshot.Snapshot
	pairs  []pair
	index  map[pairKey]int
}

// Remap replaces every autoincrement primary key value with a surrogate
// and rewrites the foreign keys referencing it. snap is not modified.
func Remap(ctx context.Context, tables tablemeta.Set, snap snapshot.Snapshot, opts ...Opt) (Result, error) {
	r := &remapper{
		opts: remapOpts{
			concurrency: 4,
		},
		tables: tables,
		snap:   snap,
		index:  make(map[pairKey]int),
	}
	for _, applyOpt := range opts {
		applyOpt(&r.opts)
	}
	if r.opts.generator == nil {
		r.opts.generator = NewUUIDGenerator()
	}
	if r.opts.concurrency < 1 {
		r.opts.concurrency = 1
	}

	r.collectPairs()
	if err := r.generate(); err != nil {
		return Result{}, err
	}
	staged, err := r.propagate(ctx)
	if err != nil {
		return Result{}, err
	}
	return r.commit(staged), nil
}

func (r *remapper) key(table, column string, v any) pairKey {
	k := pairKey{column: column, value: snapshot.Canonical(v)}
	if r.opts.tableScoped {
		k.table = table
	}
	return k
}

func (r *remapper) collectPairs() {
	for _, t := range r.tables.Tables() {
		col, ok := t.RemapColumn()
		if !ok {
			continue
		}
		for _, row := range r.snap.Rows(t.Name) {
			v := row[col]
			if v == nil {
				continue
			}
			k := r.key(t.Name, col, v)
			if _, ok := r.index[k]; ok {
				continue
			}
			r.index[k] = len(r.pairs)
			r.pairs = append(r.pairs, pair{owner: t.Name, column: col, original: v})
		}
	}
}

func (r *remapper) generate() error {
	for i := range r.pairs {
		s, err := r.opts.generator.Generate()
		if err != nil {
			p := r.pairs[i]
			return &GenerationError{Table: p.owner, Column: p.column, Value: p.original, Cause: err}
		}
		r.pairs[i].surrogate = s
		surrogatesGenerated.Inc()
	}
	return nil
}

// propagate computes the staged replacements of every table. Tables are
// independent, so each worker owns the staging of the tables it visits.
func (r *remapper) propagate(ctx context.Context) ([]staging, error) {
	tables := r.tables.Tables()
	staged := make([]staging, len(tables))

	workCh := make(chan int)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < r.opts.concurrency; i++ {
		g.Go(func() error {
			for idx := range workCh {
				staged[idx] = r.stageTable(tables[idx])
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(workCh)
		for idx := range tables {
			select {
			case workCh <- idx:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return staged, nil
}

func (r *remapper) stageTable(t tablemeta.Table) staging {
	s := make(staging)
	pkCol, eligible := t.RemapColumn()
	for rowIdx, row := range r.snap.Rows(t.Name) {
		if eligible {
			if v := row[pkCol]; v != nil {
				if pi, ok := r.index[r.key(t.Name, pkCol, v)]; ok {
					s.stage(fieldRef{row: rowIdx, column: pkCol}, pi)
				}
			}
		}
		for _, fk := range t.ForeignKeys {
			v := row[fk.Column]
			if v == nil {
				continue
			}
			if pi, ok := r.index[r.key(fk.RefTable, fk.RefColumn, v)]; ok {
				s.stage(fieldRef{row: rowIdx, column: fk.Column}, pi)
			}
		}
	}
	return s
}

func (r *remapper) commit(staged []staging) Result {
	ret := Result{
		Snapshot: make(snapshot.Snapshot, len(r.snap)),
		Lookup:   make(snapshot.Lookup),
		Stats:    Stats{Pairs: len(r.pairs)},
	}
	for name, rows := range r.snap {
		out := make([]snapshot.Row, len(rows))
		for i, row := range rows {
			out[i] = row.Clone()
		}
		ret.Snapshot[name] = out
	}
	for idx, t := range r.tables.Tables() {
		rows := ret.Snapshot[t.Name]
		for ref, pi := range staged[idx] {
			rows[ref.row][ref.column] = r.pairs[pi].surrogate
		}
		ret.Stats.StagedFields += len(staged[idx])

		pkCol, ok := t.RemapColumn()
		if !ok {
			continue
		}
		ret.Stats.Tables = append(ret.Stats.Tables, t.Name)
		lookup := make([]snapshot.IDPair, len(rows))
		for i := range rows {
			ref := fieldRef{row: i, column: pkCol}
			if pi, ok := staged[idx][ref]; ok {
				lookup[i] = snapshot.IDPair{r.pairs[pi].surrogate, r.snap[t.Name][i][pkCol]}
			}
		}
		ret.Lookup[t.Name] = lookup
	}
	return ret
}
