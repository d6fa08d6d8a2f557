package tablemeta

// Entry is the persisted form of a table's metadata, as cached in the
// sync configuration file.
type Entry struct {
	PrimaryKey           []string     `json:"primary_key" yaml:"primary_key"`
	PrimaryAutoincrement bool         `json:"primary_autoincrement" yaml:"primary_autoincrement"`
	SecondaryKey         []string     `json:"secondary_key" yaml:"secondary_key"`
	ForeignKeys          []ForeignKey `json:"foreign_keys" yaml:"foreign_keys"`
}

// Block maps table names to their persisted metadata.
type Block map[string]Entry

func EntryFromTable(t Table) Entry {
	t = normalize(t)
	return Entry{
		PrimaryKey:           t.PrimaryKey,
		PrimaryAutoincrement: t.Autoincrement,
		SecondaryKey:         t.SecondaryKey,
		ForeignKeys:          t.ForeignKeys,
	}
}

func (e Entry) Table(name string) Table {
	fks := make([]ForeignKey, len(e.ForeignKeys))
	for i, fk := range e.ForeignKeys {
		// Older blocks omit the owning table on each key.
		if fk.Table == "" {
			fk.Table = name
		}
		fks[i] = fk
	}
	return normalize(Table{
		Name:          name,
		PrimaryKey:    e.PrimaryKey,
		Autoincrement: e.PrimaryAutoincrement,
		SecondaryKey:  e.SecondaryKey,
		ForeignKeys:   fks,
	})
}

func (b Block) Set() (Set, error) {
	tables := make([]Table, 0, len(b))
	for name, e := range b {
		tables = append(tables, e.Table(name))
	}
	return NewSet(tables...)
}

func BlockFromSet(s Set) Block {
	ret := make(Block, s.Len())
	for _, t := range s.Tables() {
		ret[t.Name] = EntryFromTable(t)
	}
	return ret
}

// normalize gives both metadata sources the same representation for
// absent keys.
func normalize(t Table) Table {
	if len(t.PrimaryKey) == 0 {
		t.PrimaryKey = nil
	}
	if len(t.SecondaryKey) == 0 {
		t.SecondaryKey = nil
	}
	if len(t.ForeignKeys) == 0 {
		t.ForeignKeys = nil
	}
	if len(t.PrimaryKey) != 1 {
		t.Autoincrement = false
	}
	return t
}
