package tablemeta

import (
	"regexp"
	"sort"

	"github.com/cockroachdb/errors"
)

type ForeignKey struct {
	Name      string `json:"foreignKeyName" yaml:"foreignKeyName"`
	Table     string `json:"table" yaml:"table"`
	Column    string `json:"column" yaml:"column"`
	RefTable  string `json:"refTable" yaml:"refTable"`
	RefColumn string `json:"refColumn" yaml:"refColumn"`
}

// Table describes the key structure of one table.
type Table struct {
	Name          string
	PrimaryKey    []string
	Autoincrement bool
	SecondaryKey  []string
	ForeignKeys   []ForeignKey
}

// RemapColumn returns the primary key column eligible for identifier
// remapping. Only single column autoincrement keys qualify.
func (t Table) RemapColumn() (string, bool) {
	if !t.Autoincrement || len(t.PrimaryKey) != 1 {
		return "", false
	}
	return t.PrimaryKey[0], true
}

// IsPrimaryKeyColumn reports whether col is part of the primary key.
func (t Table) IsPrimaryKeyColumn(col string) bool {
	for _, c := range t.PrimaryKey {
		if c == col {
			return true
		}
	}
	return false
}

// SelfReferences returns the foreign keys referencing the table itself.
func (t Table) SelfReferences() []ForeignKey {
	var ret []ForeignKey
	for _, fk := range t.ForeignKeys {
		if fk.RefTable == t.Name {
			ret = append(ret, fk)
		}
	}
	return ret
}

// UnknownTableError is returned when a table does not exist in the source
// database.
type UnknownTableError struct {
	Table string
}

func (e *UnknownTableError) Error() string {
	return "table " + e.Table + " not found"
}

// Set is an immutable collection of tables ordered by name.
type Set struct {
	tables []Table
	byName map[string]int
}

// NewSet sorts tables by name and rejects unnamed or duplicate entries.
func NewSet(tables ...Table) (Set, error) {
	s := Set{
		tables: make([]Table, len(tables)),
		byName: make(map[string]int, len(tables)),
	}
	copy(s.tables, tables)
	sort.Slice(s.tables, func(i, j int) bool {
		return s.tables[i].Name < s.tables[j].Name
	})
	for i, t := range s.tables {
		if t.Name == "" {
			return Set{}, errors.Newf("table metadata at position %d has no name", i)
		}
		if _, ok := s.byName[t.Name]; ok {
			return Set{}, errors.Newf("duplicate metadata for table %s", t.Name)
		}
		s.byName[t.Name] = i
	}
	return s, nil
}

// MustNewSet is NewSet for static table lists. It panics on error.
func MustNewSet(tables ...Table) Set {
	s, err := NewSet(tables...)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Set) Tables() []Table {
	return s.tables
}

func (s Set) Len() int {
	return len(s.tables)
}

func (s Set) Get(name string) (Table, bool) {
	idx, ok := s.byName[name]
	if !ok {
		return Table{}, false
	}
	return s.tables[idx], true
}

// Names returns the table names in order.
func (s Set) Names() []string {
	ret := make([]string, len(s.tables))
	for i, t := range s.tables {
		ret[i] = t.Name
	}
	return ret
}

const DefaultFilterString = ".*"

// Filter keeps the tables whose name matches the POSIX regexp.
func (s Set) Filter(filter string) (Set, error) {
	if filter == "" || filter == DefaultFilterString {
		return s, nil
	}
	re, err := regexp.CompilePOSIX(filter)
	if err != nil {
		return Set{}, errors.Wrapf(err, "error compiling table filter %q", filter)
	}
	var kept []Table
	for _, t := range s.tables {
		if re.MatchString(t.Name) {
			kept = append(kept, t)
		}
	}
	return NewSet(kept...)
}
