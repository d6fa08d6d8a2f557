package report

import (
	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/tablemeta"
)

type ReportableObject interface{}

type StatusReport struct {
	Info string
}

// SelfReference is a foreign key pointing back at its own table. It is
// never part of the dependency graph.
type SelfReference struct {
	Table      string
	ForeignKey tablemeta.ForeignKey
}

// CycleDetected carries a dependency cycle whose first and last
// elements are the same table.
type CycleDetected struct {
	Path []string
}

// DanglingReference is a foreign key to a table outside the selected set.
type DanglingReference struct {
	Table      string
	ForeignKey tablemeta.ForeignKey
}

type RecordDiff struct {
	Table          string
	Classification string
	Record         snapshot.Row
}

// DuplicateKey flags a key value shared by several records on one side
// of a comparison.
type DuplicateKey struct {
	Table   string
	Side    string
	Columns []string
	Values  []any
	Count   int
}

type UncomparableTable struct {
	Table string
	Info  string
}
