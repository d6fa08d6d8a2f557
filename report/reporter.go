package report

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mdsync/mdsync/snapshot"
	"github.com/rs/zerolog"
)

type Reporter interface {
	Report(obj ReportableObject)
	Close()
}

type CombinedReporter struct {
	Reporters []Reporter
}

func (c CombinedReporter) Report(obj ReportableObject) {
	for _, r := range c.Reporters {
		r.Report(obj)
	}
}

func (c CombinedReporter) Close() {
	for _, r := range c.Reporters {
		r.Close()
	}
}

// LogReporter reports to `zerolog`.
type LogReporter struct {
	zerolog.Logger
}

func (l LogReporter) Report(obj ReportableObject) {
	switch obj := obj.(type) {
	case StatusReport:
		l.Info().Msg(obj.Info)
	case SelfReference:
		l.Warn().
			Str("table_name", obj.Table).
			Str("foreign_key", obj.ForeignKey.Name).
			Str("column", obj.ForeignKey.Column).
			Str("ref_column", obj.ForeignKey.RefColumn).
			Msgf("self referencing foreign key")
	case DanglingReference:
		l.Warn().
			Str("table_name", obj.Table).
			Str("foreign_key", obj.ForeignKey.Name).
			Str("ref_table", obj.ForeignKey.RefTable).
			Msgf("foreign key references a table outside the selection")
	case CycleDetected:
		l.Error().
			Strs("path", obj.Path).
			Msgf("dependency cycle detected")
	case RecordDiff:
		l.Info().
			Str("table_name", obj.Table).
			Str("classification", obj.Classification).
			Dict("record", recordDict(obj.Record)).
			Msgf("record %s", obj.Classification)
	case DuplicateKey:
		vals := make([]string, len(obj.Values))
		for i, v := range obj.Values {
			vals[i] = fmt.Sprint(v)
		}
		l.Warn().
			Str("table_name", obj.Table).
			Str("side", obj.Side).
			Strs("key_columns", obj.Columns).
			Strs("key_values", vals).
			Int("count", obj.Count).
			Msgf("duplicate key")
	case UncomparableTable:
		l.Warn().
			Str("table_name", obj.Table).
			Str("info", obj.Info).
			Msgf("table cannot be compared")
	default:
		l.Error().
			Str("type", fmt.Sprintf("%T", obj)).
			Msgf("unknown object type")
	}
}

func recordDict(r snapshot.Row) *zerolog.Event {
	cols := make([]string, 0, len(r))
	for col := range r {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	d := zerolog.Dict()
	for _, col := range cols {
		d = d.Interface(col, r[col])
	}
	return d
}

func (l LogReporter) Close() {
}

// CollectingReporter keeps every reported object in memory.
type CollectingReporter struct {
	mu      sync.Mutex
	objects []ReportableObject
}

func (c *CollectingReporter) Report(obj ReportableObject) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.objects = append(c.objects, obj)
}

func (c *CollectingReporter) Close() {
}

func (c *CollectingReporter) Objects() []ReportableObject {
	c.mu.Lock()
	defer c.mu.Unlock()
	ret := make([]ReportableObject, len(c.objects))
	copy(ret, c.objects)
	return ret
}
