package datadiff

import (
	"context"
	"fmt"

	"github.com/mdsync/mdsync/report"
	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/tablemeta"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"
)

var recordsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mdsync",
	Subsystem: "diff",
	Name:      "records_total",
	Help:      "Number of records classified by the snapshot diff.",
}, []string{"classification"})

type Classification int

const (
	Updated Classification = iota
	Inserted
	Deleted
)

func (c Classification) String() string {
	switch c {
	case Updated:
		return "updated"
	case Inserted:
		return "inserted"
	case Deleted:
		return "deleted"
	}
	return fmt.Sprintf("Classification(%d)", int(c))
}

// Record is a classified record: the remote record for updates and
// inserts, the local record for deletes.
type Record struct {
	Classification Classification
	Fields         snapshot.Row
}

const (
	SideRemote = "remote"
	SideLocal  = "local"
)

type DuplicateKey struct {
	Side   string
	Values []any
	Count  int
}

type TableResult struct {
	Table        string
	Key          KeyDescriptor
	Uncomparable bool

	Updated  []Record
	Inserted []Record
	Deleted  []Record

	Duplicates []DuplicateKey
}

// Records returns updates, inserts then deletes.
func (r TableResult) Records() []Record {
	ret := make([]Record, 0, len(r.Updated)+len(r.Inserted)+len(r.Deleted))
	ret = append(ret, r.Updated...)
	ret = append(ret, r.Inserted...)
	return append(ret, r.Deleted...)
}

type diffOpts struct {
	crossJoin   bool
	concurrency int
}

type Opt func(*diffOpts)

// WithCrossJoin pairs every remote record with every local record instead
// of using a key index. Both strategies classify identically.
func WithCrossJoin(crossJoin bool) Opt {
	return func(o *diffOpts) {
		o.crossJoin = crossJoin
	}
}

func WithConcurrency(c int) Opt {
	return func(o *diffOpts) {
		o.concurrency = c
	}
}

func makeOpts(opts []Opt) diffOpts {
	o := diffOpts{concurrency: 4}
	for _, applyOpt := range opts {
		applyOpt(&o)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o
}

// DiffTable classifies the records of one table. remote is the candidate
// data set and local the baseline.
func DiffTable(t tablemeta.Table, remote, local []snapshot.Row, opts ...Opt) TableResult {
	o := makeOpts(opts)
	ret := TableResult{Table: t.Name, Key: ResolveKey(t)}
	if ret.Key.Empty() {
		ret.Uncomparable = true
		return ret
	}
	ret.Duplicates = append(findDuplicates(ret.Key, SideRemote, remote), findDuplicates(ret.Key, SideLocal, local)...)
	if o.crossJoin {
		crossJoin(t, &ret, remote, local)
	} else {
		indexJoin(t, &ret, remote, local)
	}
	return ret
}

func crossJoin(t tablemeta.Table, ret *TableResult, remote, local []snapshot.Row) {
	k := ret.Key
	var existing [][]any
	for _, r := range remote {
		for _, l := range local {
			if !k.Equal(r, l) {
				continue
			}
			if changed(t, r, l) {
				ret.Updated = append(ret.Updated, Record{Classification: Updated, Fields: r})
			}
			existing = append(existing, k.Values(r))
		}
	}
	for _, r := range remote {
		found := false
		for _, vals := range existing {
			if k.Equal(r, keyRow(k, vals)) {
				found = true
				break
			}
		}
		if !found {
			ret.Inserted = append(ret.Inserted, Record{Classification: Inserted, Fields: r})
		}
	}
	for _, l := range local {
		found := false
		for _, r := range remote {
			if k.Equal(r, l) {
				found = true
				break
			}
		}
		if !found {
			ret.Deleted = append(ret.Deleted, Record{Classification: Deleted, Fields: l})
		}
	}
}

func keyRow(k KeyDescriptor, vals []any) snapshot.Row {
	ret := make(snapshot.Row, len(vals))
	for i, col := range k.Columns {
		ret[col] = vals[i]
	}
	return ret
}

func indexJoin(t tablemeta.Table, ret *TableResult, remote, local []snapshot.Row) {
	k := ret.Key
	localIdx := make(map[string][]int, len(local))
	for i, l := range local {
		key := k.canonical(l)
		localIdx[key] = append(localIdx[key], i)
	}
	remoteKeys := make(map[string]struct{}, len(remote))
	for _, r := range remote {
		key := k.canonical(r)
		remoteKeys[key] = struct{}{}
		for _, li := range localIdx[key] {
			if changed(t, r, local[li]) {
				ret.Updated = append(ret.Updated, Record{Classification: Updated, Fields: r})
			}
		}
	}
	for _, r := range remote {
		if _, ok := localIdx[k.canonical(r)]; !ok {
			ret.Inserted = append(ret.Inserted, Record{Classification: Inserted, Fields: r})
		}
	}
	for _, l := range local {
		if _, ok := remoteKeys[k.canonical(l)]; !ok {
			ret.Deleted = append(ret.Deleted, Record{Classification: Deleted, Fields: l})
		}
	}
}

// changed compares every field outside the primary key. A field present
// on one side only counts as a change.
func changed(t tablemeta.Table, remote, local snapshot.Row) bool {
	for col, rv := range remote {
		if t.IsPrimaryKeyColumn(col) {
			continue
		}
		lv, ok := local[col]
		if !ok || !snapshot.Equal(rv, lv) {
			return true
		}
	}
	for col := range local {
		if t.IsPrimaryKeyColumn(col) {
			continue
		}
		if _, ok := remote[col]; !ok {
			return true
		}
	}
	return false
}

func findDuplicates(k KeyDescriptor, side string, rows []snapshot.Row) []DuplicateKey {
	counts := make(map[string]int, len(rows))
	var order []string
	first := make(map[string]snapshot.Row)
	for _, r := range rows {
		key := k.canonical(r)
		if counts[key] == 0 {
			order = append(order, key)
			first[key] = r
		}
		counts[key]++
	}
	var ret []DuplicateKey
	for _, key := range order {
		if counts[key] > 1 {
			ret = append(ret, DuplicateKey{Side: side, Values: k.Values(first[key]), Count: counts[key]})
		}
	}
	return ret
}

// Compare diffs every table of the metadata set. Tables missing from a
// snapshot have no records on that side. Results are reported in table
// order once every table is done.
func Compare(
	ctx context.Context,
	tables tablemeta.Set,
	remote, local snapshot.Snapshot,
	reporter report.Reporter,
	opts ...Opt,
) ([]TableResult, error) {
	o := makeOpts(opts)
	all := tables.Tables()
	results := make([]TableResult, len(all))

	workCh := make(chan int)
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < o.concurrency; i++ {
		g.Go(func() error {
			for idx := range workCh {
				t := all[idx]
				results[idx] = DiffTable(t, remote.Rows(t.Name), local.Rows(t.Name), opts...)
			}
			return nil
		})
	}
	g.Go(func() error {
		defer close(workCh)
		for idx := range all {
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

	for i, res := range results {
		t := all[i]
		reportTable(reporter, res, len(remote.Rows(t.Name)), len(local.Rows(t.Name)))
	}
	return results, nil
}

func reportTable(reporter report.Reporter, res TableResult, numRemote, numLocal int) {
	if res.Uncomparable {
		reporter.Report(report.UncomparableTable{
			Table: res.Table,
			Info:  "table has neither a primary key nor a secondary key",
		})
		return
	}
	reporter.Report(report.StatusReport{
		Info: fmt.Sprintf("comparing %s by key %s (%d remote, %d local records)",
			res.Table, res.Key, numRemote, numLocal),
	})
	for _, d := range res.Duplicates {
		reporter.Report(report.DuplicateKey{
			Table:   res.Table,
			Side:    d.Side,
			Columns: res.Key.Columns,
			Values:  d.Values,
			Count:   d.Count,
		})
	}
	for _, rec := range res.Records() {
		recordsClassified.WithLabelValues(rec.Classification.String()).Inc()
		reporter.Report(report.RecordDiff{
			Table:          res.Table,
			Classification: rec.Classification.String(),
			Record:         rec.Fields,
		})
	}
}

type Summary struct {
	Tables   int
	Updated  int
	Inserted int
	Deleted  int
}

func Summarize(results []TableResult) Summary {
	s := Summary{Tables: len(results)}
	for _, r := range results {
		s.Updated += len(r.Updated)
		s.Inserted += len(r.Inserted)
		s.Deleted += len(r.Deleted)
	}
	return s
}
