package tablemeta

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mdsync/mdsync/dbconn"
)

const (
	mysqlListTables = `SELECT table_name FROM information_schema.tables
WHERE table_schema = database() AND table_type = 'BASE TABLE'
ORDER BY table_name`
	mysqlTableExists = `SELECT table_name FROM information_schema.tables
WHERE table_schema = database() AND table_name = ?`
	mysqlPrimaryKey = `SELECT k.column_name, c.extra
FROM information_schema.key_column_usage k
JOIN information_schema.columns c
  ON c.table_schema = k.table_schema AND c.table_name = k.table_name AND c.column_name = k.column_name
WHERE k.table_schema = database() AND k.table_name = ? AND k.constraint_name = 'PRIMARY'
ORDER BY k.ordinal_position`
	mysqlUniqueKeys = `SELECT k.constraint_name, k.column_name
FROM information_schema.table_constraints t
JOIN information_schema.key_column_usage k
  ON k.constraint_schema = t.constraint_schema AND k.table_name = t.table_name AND k.constraint_name = t.constraint_name
WHERE t.table_schema = database() AND t.table_name = ? AND t.constraint_type = 'UNIQUE'
ORDER BY k.constraint_name, k.ordinal_position`
	mysqlForeignKeys = `SELECT constraint_name, column_name, referenced_table_name, referenced_column_name
FROM information_schema.key_column_usage
WHERE table_schema = database() AND table_name = ? AND referenced_table_name IS NOT NULL
ORDER BY constraint_name, ordinal_position`
)

const (
	pgListTables = `SELECT table_name::text FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`
	pgTableExists = `SELECT table_name::text FROM information_schema.tables
WHERE table_schema = current_schema() AND table_name = $1`
	pgPrimaryKey = `SELECT kcu.column_name::text, COALESCE(c.column_default, '') || ' ' || c.is_identity::text
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name AND kcu.table_name = tc.table_name
JOIN information_schema.columns c
  ON c.table_schema = kcu.table_schema AND c.table_name = kcu.table_name AND c.column_name = kcu.column_name
WHERE tc.table_schema = current_schema() AND tc.table_name = $1 AND tc.constraint_type = 'PRIMARY KEY'
ORDER BY kcu.ordinal_position`
	pgUniqueKeys = `SELECT tc.constraint_name::text, kcu.column_name::text
FROM information_schema.table_constraints tc
JOIN information_schema.key_column_usage kcu
  ON kcu.constraint_schema = tc.constraint_schema AND kcu.constraint_name = tc.constraint_name AND kcu.table_name = tc.table_name
WHERE tc.table_schema = current_schema() AND tc.table_name = $1 AND tc.constraint_type = 'UNIQUE'
ORDER BY tc.constraint_name, kcu.ordinal_position`
	pgForeignKeys = `SELECT con.conname::text, a.attname::text, ref.relname::text, ra.attname::text
FROM pg_constraint con
JOIN pg_class cl ON cl.oid = con.conrelid
JOIN pg_namespace ns ON ns.oid = cl.relnamespace
JOIN pg_class ref ON ref.oid = con.confrelid
CROSS JOIN LATERAL unnest(con.conkey, con.confkey) WITH ORDINALITY AS k(attnum, refattnum, ord)
JOIN pg_attribute a ON a.attrelid = con.conrelid AND a.attnum = k.attnum
JOIN pg_attribute ra ON ra.attrelid = con.confrelid AND ra.attnum = k.refattnum
WHERE con.contype = 'f' AND ns.nspname = current_schema() AND cl.relname = $1
ORDER BY con.conname, k.ord`
)

type queries struct {
	listTables, tableExists, primaryKey, uniqueKeys, foreignKeys string
	isAutoincrement                                                func(extra string) bool
}

var mysqlQueries = queries{
	listTables:  mysqlListTables,
	tableExists: mysqlTableExists,
	primaryKey:  mysqlPrimaryKey,
	uniqueKeys:  mysqlUniqueKeys,
	foreignKeys: mysqlForeignKeys,
	isAutoincrement: func(extra string) bool {
		return strings.Contains(strings.ToLower(extra), "auto_increment")
	},
}

var pgQueries = queries{
	listTables:  pgListTables,
	tableExists: pgTableExists,
	primaryKey:  pgPrimaryKey,
	uniqueKeys:  pgUniqueKeys,
	foreignKeys: pgForeignKeys,
	isAutoincrement: func(extra string) bool {
		return strings.HasPrefix(extra, "nextval(") || strings.HasSuffix(extra, "YES")
	},
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanStrings(rows rowScanner, n int) ([][]string, error) {
	var ret [][]string
	for rows.Next() {
		vals := make([]string, n)
		ptrs := make([]any, n)
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, errors.Wrap(err, "error decoding metadata")
		}
		ret = append(ret, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error collecting metadata")
	}
	return ret, nil
}

// query runs a metadata query returning n text columns per row.
func query(ctx context.Context, conn dbconn.Conn, n int, q string, args ...any) ([][]string, error) {
	switch conn := conn.(type) {
	case *dbconn.PGConn:
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		defer rows.Close()
		return scanStrings(rows, n)
	case *dbconn.MySQLConn:
		rows, err := conn.QueryContext(ctx, q, args...)
		if err != nil {
			return nil, err
		}
		defer func() { _ = rows.Close() }()
		return scanStrings(rows, n)
	}
	return nil, errors.Newf("connection %T not supported", conn)
}

func queriesFor(conn dbconn.Conn) (queries, error) {
	switch conn.(type) {
	case *dbconn.PGConn:
		return pgQueries, nil
	case *dbconn.MySQLConn:
		return mysqlQueries, nil
	}
	return queries{}, errors.Newf("connection %T not supported", conn)
}

// ListTables lists the base tables of the connection's database.
func ListTables(ctx context.Context, conn dbconn.Conn) ([]string, error) {
	q, err := queriesFor(conn)
	if err != nil {
		return nil, err
	}
	rows, err := query(ctx, conn, 1, q.listTables)
	if err != nil {
		return nil, errors.Wrap(err, "error listing tables")
	}
	ret := make([]string, len(rows))
	for i, r := range rows {
		ret[i] = r[0]
	}
	return ret, nil
}

// Introspect reads the key structure of a table from the live database.
func Introspect(ctx context.Context, conn dbconn.Conn, table string) (Table, error) {
	q, err := queriesFor(conn)
	if err != nil {
		return Table{}, err
	}
	exists, err := query(ctx, conn, 1, q.tableExists, table)
	if err != nil {
		return Table{}, errors.Wrapf(err, "error checking table %s", table)
	}
	if len(exists) == 0 {
		return Table{}, &UnknownTableError{Table: table}
	}
	pkRows, err := query(ctx, conn, 2, q.primaryKey, table)
	if err != nil {
		return Table{}, errors.Wrapf(err, "error getting primary key of %s", table)
	}
	uniqueRows, err := query(ctx, conn, 2, q.uniqueKeys, table)
	if err != nil {
		return Table{}, errors.Wrapf(err, "error getting unique keys of %s", table)
	}
	fkRows, err := query(ctx, conn, 4, q.foreignKeys, table)
	if err != nil {
		return Table{}, errors.Wrapf(err, "error getting foreign keys of %s", table)
	}
	return assemble(table, pkRows, uniqueRows, fkRows, q.isAutoincrement), nil
}

func assemble(
	table string, pkRows, uniqueRows, fkRows [][]string, isAutoincrement func(string) bool,
) Table {
	t := Table{Name: table}
	for _, r := range pkRows {
		t.PrimaryKey = append(t.PrimaryKey, r[0])
	}
	t.Autoincrement = len(pkRows) == 1 && isAutoincrement(pkRows[0][1])
	// Only the first unique constraint serves as the secondary key.
	for _, r := range uniqueRows {
		if r[0] != uniqueRows[0][0] {
			break
		}
		t.SecondaryKey = append(t.SecondaryKey, r[1])
	}
	for _, r := range fkRows {
		t.ForeignKeys = append(t.ForeignKeys, ForeignKey{
			Name:      r[0],
			Table:     table,
			Column:    r[1],
			RefTable:  r[2],
			RefColumn: r[3],
		})
	}
	return normalize(t)
}
