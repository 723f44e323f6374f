package substrate

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
)

// serverRetryMaxElapsed bounds retries against transient server-mode
// connection errors, mirroring dolt.DoltStore's server-mode retry window.
const serverRetryMaxElapsed = 30 * time.Second

func newServerRetryBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = serverRetryMaxElapsed
	return bo
}

// isRetryableConnError reports whether err is a transient MySQL-wire
// connection error worth retrying, as opposed to a structural failure.
// Ported from dolt.isRetryableError's case list.
func isRetryableConnError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, substr := range []string{
		"driver: bad connection",
		"invalid connection",
		"broken pipe",
		"connection reset",
		"connection refused",
		"lost connection",
		"gone away",
		"i/o timeout",
	} {
		if strings.Contains(msg, substr) {
			return true
		}
	}
	return false
}

// MySQLConfig configures a server-mode MySQL-wire substrate, modeling the
// dolt sql-server federation mode (dolt.Config's Server* fields) without
// any of Dolt's version-control surface.
type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	TLS      bool
}

func (c MySQLConfig) dsn() string {
	port := c.Port
	if port == 0 {
		port = 3306
	}
	tls := "false"
	if c.TLS {
		tls = "true"
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&multiStatements=true&tls=%s",
		c.User, c.Password, c.Host, port, c.Database, tls)
}

// MySQLSubstrate is a server-mode substrate over a MySQL-compatible wire
// protocol (go-sql-driver/mysql), grounded in dolt.DoltStore's server mode
// connection but stripped of version-control semantics.
type MySQLSubstrate struct {
	db *sql.DB
}

// OpenMySQL connects to a running MySQL-compatible server.
func OpenMySQL(cfg MySQLConfig) (*MySQLSubstrate, error) {
	db, err := sql.Open("mysql", cfg.dsn())
	if err != nil {
		return nil, NewSubstrateErrorFn("open mysql substrate", err)
	}
	db.SetMaxOpenConns(8)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, NewSubstrateErrorFn("ping mysql substrate", err)
	}
	return &MySQLSubstrate{db: db}, nil
}

func (s *MySQLSubstrate) withRetry(ctx context.Context, op func() error) error {
	bo := newServerRetryBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isRetryableConnError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}

func (s *MySQLSubstrate) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var res sql.Result
	err := s.withRetry(ctx, func() error {
		var execErr error
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return res, err
}

func (s *MySQLSubstrate) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := s.withRetry(ctx, func() error {
		var queryErr error
		rows, queryErr = s.db.QueryContext(ctx, query, args...)
		return queryErr
	})
	return rows, err
}

func (s *MySQLSubstrate) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// writeIntentLockName is a fixed GET_LOCK name used to serialize Immediate
// and Exclusive transactions across connections. MySQL's START TRANSACTION
// has no BEGIN IMMEDIATE analogue that reserves write intent up front
// without excluding readers, so write-intent reservation is emulated with
// a session advisory lock, the same role dolt.AccessLock's flock plays for
// the embedded engine, adapted to a server-mode wire protocol.
const writeIntentLockName = "factbase_write_intent"

// MySQLSubstrate.BeginTx opens a transaction on a dedicated connection. For
// Immediate and Exclusive, it first acquires the write-intent advisory
// lock so only one writer transaction proceeds at a time; Deferred skips
// the lock entirely so readers never queue behind a writer.
func (s *MySQLSubstrate) BeginTx(ctx context.Context, behavior Behavior) (Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, NewSubstrateErrorFn("acquire mysql connection", err)
	}

	lockHeld := false
	if behavior == Immediate || behavior == Exclusive {
		var got int64
		row := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", writeIntentLockName, 2)
		if err := row.Scan(&got); err != nil {
			_ = conn.Close()
			return nil, NewSubstrateErrorFn("acquire write-intent lock", err)
		}
		if got != 1 {
			_ = conn.Close()
			return nil, ErrSubstrateBusy
		}
		lockHeld = true
	}

	if _, err := conn.ExecContext(ctx, "START TRANSACTION"); err != nil {
		if lockHeld {
			_, _ = conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", writeIntentLockName)
		}
		_ = conn.Close()
		return nil, NewSubstrateErrorFn("start transaction", err)
	}

	return &mysqlTx{conn: conn, lockHeld: lockHeld}, nil
}

func (s *MySQLSubstrate) Close() error {
	return s.db.Close()
}

type mysqlTx struct {
	conn     *sql.Conn
	lockHeld bool
	done     bool
}

func (t *mysqlTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *mysqlTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *mysqlTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

func (t *mysqlTx) releaseLock() {
	if t.lockHeld {
		_, _ = t.conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", writeIntentLockName)
		t.lockHeld = false
	}
}

func (t *mysqlTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	_, err := t.conn.ExecContext(context.Background(), "COMMIT")
	t.releaseLock()
	t.done = true
	_ = t.conn.Close()
	if err != nil {
		return NewSubstrateErrorFn("commit", err)
	}
	return nil
}

func (t *mysqlTx) Rollback() error {
	if t.done {
		return nil
	}
	_, err := t.conn.ExecContext(context.Background(), "ROLLBACK")
	t.releaseLock()
	t.done = true
	_ = t.conn.Close()
	if err != nil {
		return NewSubstrateErrorFn("rollback", err)
	}
	return nil
}
