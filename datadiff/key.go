package datadiff

import (
	"strconv"
	"strings"

	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/tablemeta"
)

// KeyDescriptor names the columns identifying a record across snapshots.
type KeyDescriptor struct {
	Columns   []string
	Secondary bool
}

// ResolveKey prefers the first secondary key column and falls back to the
// full primary key.
func ResolveKey(t tablemeta.Table) KeyDescriptor {
	if len(t.SecondaryKey) > 0 {
		return KeyDescriptor{Columns: []string{t.SecondaryKey[0]}, Secondary: true}
	}
	return KeyDescriptor{Columns: t.PrimaryKey}
}

func (k KeyDescriptor) Empty() bool {
	return len(k.Columns) == 0
}

func (k KeyDescriptor) Values(r snapshot.Row) []any {
	ret := make([]any, len(k.Columns))
	for i, col := range k.Columns {
		ret[i] = r[col]
	}
	return ret
}

// Equal compares the key columns of two records.
func (k KeyDescriptor) Equal(a, b snapshot.Row) bool {
	for _, col := range k.Columns {
		if !snapshot.Equal(a[col], b[col]) {
			return false
		}
	}
	return true
}

// canonical returns a map key that is equal for two records exactly when
// Equal holds.
func (k KeyDescriptor) canonical(r snapshot.Row) string {
	if len(k.Columns) == 1 {
		return snapshot.Canonical(r[k.Columns[0]])
	}
	// Quoting keeps the separator out of the parts.
	parts := make([]string, len(k.Columns))
	for i, col := range k.Columns {
		parts[i] = strconv.Quote(snapshot.Canonical(r[col]))
	}
	return strings.Join(parts, ",")
}

func (k KeyDescriptor) String() string {
	kind := "primary"
	if k.Secondary {
		kind = "secondary"
	}
	return "[" + strings.Join(k.Columns, " ") + "] " + kind
}
