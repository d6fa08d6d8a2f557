package dbconn

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
)

type PGConn struct {
	id ID
	*pgx.Conn
	connStr string
}

var _ Conn = (*PGConn)(nil)

func ConnectPG(ctx context.Context, id ID, connStr string) (*PGConn, error) {
	cfg, err := pgx.ParseConfig(connStr)
	if err != nil {
		return nil, errors.Wrapf(err, "error parsing postgres connection string")
	}
	return ConnectPGConfig(ctx, id, connStr, cfg)
}

func ConnectPGConfig(ctx context.Context, id ID, connStr string, cfg *pgx.ConnConfig) (*PGConn, error) {
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "error connecting to %s", id)
	}
	return &PGConn{id: id, Conn: conn, connStr: connStr}, nil
}

func (c *PGConn) ID() ID {
	return c.id
}

func (c *PGConn) Clone(ctx context.Context) (Conn, error) {
	return ConnectPGConfig(ctx, c.id, c.connStr, c.Config().Copy())
}

func (c *PGConn) Close(ctx context.Context) error {
	return c.Conn.Close(ctx)
}

func (c *PGConn) Database() string {
	return c.Config().Database
}

func (c *PGConn) ConnStr() string {
	return c.connStr
}

func (c *PGConn) Dialect() string {
	return "PostgreSQL"
}
