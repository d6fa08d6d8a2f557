package dbconn

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/mdsync/mdsync/retry"
	"github.com/rs/zerolog"
)

type ID string

// Conn is an explicit database handle. Callers own its lifetime.
type Conn interface {
	ID() ID
	// Close closes the connection.
	Close(ctx context.Context) error
	// Clone creates a new Conn with the same underlying connections arguments.
	Clone(ctx context.Context) (Conn, error)
	// Database is the database (MySQL schema) the connection is bound to.
	Database() string

	ConnStr() string
	Dialect() string
}

func Connect(ctx context.Context, preferredID ID, connStr string) (Conn, error) {
	id := preferredID
	if len(connStr) == 0 {
		return nil, errors.Newf("empty connection string")
	}

	before := strings.SplitN(connStr, "://", 2)

	switch {
	case strings.Contains(before[0], "postgres"):
		u, err := url.Parse(connStr)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse url: %s", redact(connStr))
		}
		if id == "" {
			id = ID(u.Hostname() + ":" + u.Port())
		}
		return ConnectPG(ctx, id, connStr)
	case strings.Contains(before[0], "mysql"):
		return ConnectMySQL(ctx, id, connStr)
	}
	return nil, errors.Newf("unrecognised scheme %s from %s", before[0], redact(connStr))
}

// ConnectWithRetry retries Connect with backoff, for databases that are
// still starting up.
func ConnectWithRetry(
	ctx context.Context, logger zerolog.Logger, settings retry.Settings, preferredID ID, connStr string,
) (Conn, error) {
	var conn Conn
	err := retry.Do(ctx, settings, logger, func(ctx context.Context) error {
		var err error
		conn, err = Connect(ctx, preferredID, connStr)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func redact(connStr string) string {
	u, err := url.Parse(connStr)
	if err != nil || u.User == nil {
		return connStr
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "redacted")
	}
	return u.String()
}
