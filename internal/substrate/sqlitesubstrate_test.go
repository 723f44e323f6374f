package substrate

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func TestSQLiteDSNDefaultsAndOverride(t *testing.T) {
	dsn := SQLiteDSN("/tmp/x.db", false)
	if !strings.Contains(dsn, "busy_timeout(30000)") {
		t.Fatalf("expected default 30s busy_timeout, got %q", dsn)
	}
	if strings.Contains(dsn, "mode=ro") {
		t.Fatalf("expected no mode=ro for a writable DSN, got %q", dsn)
	}

	t.Setenv("FACTBASE_LOCK_TIMEOUT", "5s")
	dsn = SQLiteDSN("/tmp/x.db", true)
	if !strings.Contains(dsn, "busy_timeout(5000)") {
		t.Fatalf("expected overridden 5s busy_timeout, got %q", dsn)
	}
	if !strings.Contains(dsn, "mode=ro") {
		t.Fatalf("expected mode=ro for a read-only DSN, got %q", dsn)
	}
}

func newTestSubstrate(t *testing.T) *SQLiteSubstrate {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBeginTxDeferredCommit(t *testing.T) {
	ctx := context.Background()
	s := newTestSubstrate(t)

	if _, err := s.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx, err := s.BeginTx(ctx, Deferred)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	var count int
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 row after commit, got %d", count)
	}
}

func TestBeginTxRollbackDiscardsWrites(t *testing.T) {
	ctx := context.Background()
	s := newTestSubstrate(t)

	if _, err := s.ExecContext(ctx, "CREATE TABLE t (v INTEGER)"); err != nil {
		t.Fatalf("create table: %v", err)
	}

	tx, err := s.BeginTx(ctx, Immediate)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO t (v) VALUES (1)"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	var count int
	if err := s.QueryRowContext(ctx, "SELECT COUNT(*) FROM t").Scan(&count); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 rows after rollback, got %d", count)
	}
}

func TestCommitAfterCommitErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestSubstrate(t)

	tx, err := s.BeginTx(ctx, Deferred)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Commit(); err == nil {
		t.Fatalf("expected committing an already-closed transaction to error")
	}
}

func TestRollbackAfterCommitIsNoop(t *testing.T) {
	ctx := context.Background()
	s := newTestSubstrate(t)

	tx, err := s.BeginTx(ctx, Deferred)
	if err != nil {
		t.Fatalf("BeginTx: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}
	if err := tx.Rollback(); err != nil {
		t.Fatalf("expected Rollback after Commit to be a harmless no-op, got %v", err)
	}
}

func TestBehaviorString(t *testing.T) {
	cases := map[Behavior]string{
		Deferred:  "DEFERRED",
		Immediate: "IMMEDIATE",
		Exclusive: "EXCLUSIVE",
	}
	for behavior, want := range cases {
		if got := behavior.String(); got != want {
			t.Errorf("Behavior(%d).String() = %q, want %q", behavior, got, want)
		}
	}
}

func TestIsBusyError(t *testing.T) {
	cases := map[string]bool{
		"database is locked": true,
		"SQLITE_BUSY":         true,
		"busy timeout":        true,
		"no such table: t":    false,
	}
	for msg, want := range cases {
		if got := isBusyError(&testErr{msg}); got != want {
			t.Errorf("isBusyError(%q) = %v, want %v", msg, got, want)
		}
	}
	if isBusyError(nil) {
		t.Errorf("isBusyError(nil) should be false")
	}
}

type testErr struct{ msg string }

func (e *testErr) Error() string { return e.msg }
