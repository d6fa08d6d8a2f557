package testutils

import (
	"context"
	"os"
	"testing"

	"github.com/mdsync/mdsync/dbconn"
	"github.com/stretchr/testify/require"
)

// PGConnStr returns POSTGRES_URL, skipping the test when it is unset.
func PGConnStr(t *testing.T) string {
	u, ok := os.LookupEnv("POSTGRES_URL")
	if !ok {
		t.Skip("POSTGRES_URL not set")
	}
	return u
}

// MySQLConnStr returns MYSQL_URL, skipping the test when it is unset.
func MySQLConnStr(t *testing.T) string {
	u, ok := os.LookupEnv("MYSQL_URL")
	if !ok {
		t.Skip("MYSQL_URL not set")
	}
	return u
}

// ConnStrs lists the configured live databases by dialect.
func ConnStrs() map[string]string {
	ret := make(map[string]string)
	if u, ok := os.LookupEnv("POSTGRES_URL"); ok {
		ret["postgres"] = u
	}
	if u, ok := os.LookupEnv("MYSQL_URL"); ok {
		ret["mysql"] = u
	}
	return ret
}

// Exec runs each statement on conn, failing the test on error.
func Exec(t *testing.T, conn dbconn.Conn, stmts ...string) {
	ctx := context.Background()
	for _, stmt := range stmts {
		var err error
		switch conn := conn.(type) {
		case *dbconn.PGConn:
			_, err = conn.Exec(ctx, stmt)
		case *dbconn.MySQLConn:
			_, err = conn.ExecContext(ctx, stmt)
		default:
			t.Fatalf("unhandled Conn type: %T", conn)
		}
		require.NoError(t, err, "executing %s", stmt)
	}
	// Deallocate caches - otherwise the plans may stick around.
	if conn, ok := conn.(*dbconn.PGConn); ok {
		require.NoError(t, conn.DeallocateAll(ctx))
	}
}

// CleanDatabase connects to a freshly recreated database named dbName.
func CleanDatabase(t *testing.T, dialect, connStr, dbName string) dbconn.Conn {
	ctx := context.Background()
	conn, err := dbconn.TestOnlyCleanDatabase(ctx, dbconn.ID(dialect), connStr, dbName)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close(ctx) })
	return conn
}
