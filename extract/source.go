package extract

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/mdsync/mdsync/dbconn"
	"github.com/mdsync/mdsync/snapshot"
	"github.com/mdsync/mdsync/tablemeta"
)

// RowSource reads the full contents of a table.
type RowSource interface {
	Rows(ctx context.Context, table tablemeta.Table) ([]snapshot.Row, error)
}

// Source is everything a dump needs from the source database.
type Source interface {
	RowSource
	ListTables(ctx context.Context) ([]string, error)
	Introspect(ctx context.Context, table string) (tablemeta.Table, error)
	// Clone returns an independent Source for use by another worker.
	Clone(ctx context.Context) (Source, error)
	Close(ctx context.Context) error
}

type dbSource struct {
	conn dbconn.Conn
}

// NewDBSource reads from a live connection. The source owns conn.
func NewDBSource(conn dbconn.Conn) Source {
	return &dbSource{conn: conn}
}

func (s *dbSource) ListTables(ctx context.Context) ([]string, error) {
	return tablemeta.ListTables(ctx, s.conn)
}

func (s *dbSource) Introspect(ctx context.Context, table string) (tablemeta.Table, error) {
	return tablemeta.Introspect(ctx, s.conn, table)
}

func (s *dbSource) Clone(ctx context.Context) (Source, error) {
	conn, err := s.conn.Clone(ctx)
	if err != nil {
		return nil, err
	}
	return &dbSource{conn: conn}, nil
}

func (s *dbSource) Close(ctx context.Context) error {
	return s.conn.Close(ctx)
}

func (s *dbSource) Rows(ctx context.Context, table tablemeta.Table) ([]snapshot.Row, error) {
	switch conn := s.conn.(type) {
	case *dbconn.PGConn:
		return pgRows(ctx, conn, table)
	case *dbconn.MySQLConn:
		return mysqlRows(ctx, conn, table)
	}
	return nil, errors.Newf("connection %T not supported", s.conn)
}

func pgRows(ctx context.Context, conn *dbconn.PGConn, table tablemeta.Table) ([]snapshot.Row, error) {
	columns, err := pgColumnNames(ctx, conn, table.Name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &tablemeta.UnknownTableError{Table: table.Name}
	}
	q := pgSelectAll(table.Name, columns, orderColumns(table.PrimaryKey, table.SecondaryKey, columns))
	rows, err := conn.Query(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", table.Name)
	}
	defer rows.Close()

	var ret []snapshot.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errors.Wrapf(err, "error decoding row of %s", table.Name)
		}
		row := make(snapshot.Row, len(vals))
		for i, fd := range rows.FieldDescriptions() {
			row[fd.Name] = pgValue(vals[i])
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading %s", table.Name)
	}
	return ret, nil
}

func pgColumnNames(ctx context.Context, conn *dbconn.PGConn, table string) ([]string, error) {
	rows, err := conn.Query(ctx, pgColumns, table)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing columns of %s", table)
	}
	defer rows.Close()
	var ret []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, errors.Wrapf(err, "error listing columns of %s", table)
		}
		ret = append(ret, col)
	}
	return ret, rows.Err()
}

func mysqlRows(ctx context.Context, conn *dbconn.MySQLConn, table tablemeta.Table) ([]snapshot.Row, error) {
	columns, err := mysqlColumnNames(ctx, conn, table.Name)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, &tablemeta.UnknownTableError{Table: table.Name}
	}
	q, err := mysqlSelectAll(table.Name, columns, orderColumns(table.PrimaryKey, table.SecondaryKey, columns))
	if err != nil {
		return nil, err
	}
	rows, err := conn.QueryContext(ctx, q)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading %s", table.Name)
	}
	defer func() { _ = rows.Close() }()

	typs, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	var ret []snapshot.Row
	for rows.Next() {
		vals := make([]sql.NullString, len(typs))
		valPtrs := make([]any, len(typs))
		for i := range vals {
			valPtrs[i] = &vals[i]
		}
		if err := rows.Scan(valPtrs...); err != nil {
			return nil, errors.Wrapf(err, "error decoding row of %s", table.Name)
		}
		row := make(snapshot.Row, len(typs))
		for i, typ := range typs {
			var raw *string
			if vals[i].Valid {
				raw = &vals[i].String
			}
			row[typ.Name()] = mysqlValue(raw, typ.DatabaseTypeName())
		}
		ret = append(ret, row)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error reading %s", table.Name)
	}
	return ret, nil
}

func mysqlColumnNames(ctx context.Context, conn *dbconn.MySQLConn, table string) ([]string, error) {
	rows, err := conn.QueryContext(ctx, mysqlColumns, table)
	if err != nil {
		return nil, errors.Wrapf(err, "error listing columns of %s", table)
	}
	defer func() { _ = rows.Close() }()
	var ret []string
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return nil, errors.Wrapf(err, "error listing columns of %s", table)
		}
		ret = append(ret, col)
	}
	return ret, rows.Err()
}
