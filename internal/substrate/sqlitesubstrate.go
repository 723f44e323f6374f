package substrate

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteDSN builds a SQLite connection string with the pragmas this core
// relies on: a bounded busy_timeout (so lock contention resolves instead
// of failing instantly), foreign key enforcement, and WAL so readers never
// block the single writer mid-commit. Honors BD_LOCK_TIMEOUT-style env
// override, matching internal/storage/connstring.go's SQLiteConnString.
func SQLiteDSN(path string, readOnly bool) string {
	path = strings.TrimSpace(path)

	busy := 30 * time.Second
	if v := strings.TrimSpace(os.Getenv("FACTBASE_LOCK_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			busy = d
		}
	}
	busyMs := busy.Milliseconds()

	mode := ""
	if readOnly {
		mode = "&mode=ro"
	}
	return fmt.Sprintf(
		"file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)%s",
		path, busyMs, mode,
	)
}

// SQLiteSubstrate is an embedded, pure-Go SQLite substrate (no CGO),
// grounded in internal/storage/ephemeral/store.go's use of
// github.com/ncruces/go-sqlite3.
type SQLiteSubstrate struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if absent) a SQLite database at path.
func OpenSQLite(path string) (*SQLiteSubstrate, error) {
	db, err := sql.Open("sqlite3", SQLiteDSN(path, false))
	if err != nil {
		return nil, NewSubstrateErrorFn("open sqlite substrate", err)
	}
	// WAL mode (set by SQLiteDSN) lets any number of readers proceed
	// concurrently with the single in-flight writer (spec.md §5: "readers
	// proceed in parallel"); capping the pool at one connection the way
	// ephemeral.Store does for its side dataset would serialize reads
	// behind a writer's open transaction, which this substrate must not
	// do. BeginTx still pins each transaction to its own dedicated
	// *sql.Conn regardless of pool size.
	db.SetMaxOpenConns(8)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, NewSubstrateErrorFn("ping sqlite substrate", err)
	}
	return &SQLiteSubstrate{db: db, path: path}, nil
}

// Path returns the database file path this substrate was opened against.
func (s *SQLiteSubstrate) Path() string { return s.path }

// DB returns the underlying *sql.DB for migration/bootstrap use.
func (s *SQLiteSubstrate) DB() *sql.DB { return s.db }

func (s *SQLiteSubstrate) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, query, args...)
}

func (s *SQLiteSubstrate) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, query, args...)
}

func (s *SQLiteSubstrate) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, query, args...)
}

// BeginTx opens a transaction with the requested behavior on a dedicated
// connection. A dedicated *sql.Conn is required (rather than sql.DB.Begin)
// because SQLite's transaction behaviors are selected by the literal BEGIN
// statement text, and database/sql's pool would otherwise be free to run
// later statements on a different physical connection — the same
// reasoning as internal/storage/sqlite/queries.go's CreateIssue.
func (s *SQLiteSubstrate) BeginTx(ctx context.Context, behavior Behavior) (Tx, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, NewSubstrateErrorFn("acquire sqlite connection", err)
	}

	begin := func() error {
		_, err := conn.ExecContext(ctx, "BEGIN "+behavior.String())
		return err
	}

	var beginErr error
	if behavior == Immediate {
		beginErr = retryBusy(ctx, begin)
	} else {
		beginErr = begin()
	}
	if beginErr != nil {
		_ = conn.Close()
		if behavior == Immediate && isBusyError(beginErr) {
			return nil, ErrSubstrateBusy
		}
		return nil, NewSubstrateErrorFn("begin "+behavior.String()+" transaction", beginErr)
	}

	return &sqliteTx{conn: conn}, nil
}

// Close closes the substrate's connection pool.
func (s *SQLiteSubstrate) Close() error {
	return s.db.Close()
}

// sqliteTx is a substrate transaction pinned to one *sql.Conn.
type sqliteTx struct {
	conn *sql.Conn
	done bool
}

func (t *sqliteTx) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return t.conn.ExecContext(ctx, query, args...)
}

func (t *sqliteTx) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return t.conn.QueryContext(ctx, query, args...)
}

func (t *sqliteTx) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return t.conn.QueryRowContext(ctx, query, args...)
}

func (t *sqliteTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	// Use context.Background(): a canceled caller context must not prevent
	// releasing the connection's lock.
	_, err := t.conn.ExecContext(context.Background(), "COMMIT")
	t.done = true
	_ = t.conn.Close()
	if err != nil {
		return NewSubstrateErrorFn("commit", err)
	}
	return nil
}

func (t *sqliteTx) Rollback() error {
	if t.done {
		return nil
	}
	_, err := t.conn.ExecContext(context.Background(), "ROLLBACK")
	t.done = true
	_ = t.conn.Close()
	if err != nil {
		return NewSubstrateErrorFn("rollback", err)
	}
	return nil
}
