// Package substrate defines the relational storage substrate the
// connection/transaction core runs against (spec.md §6), and provides two
// concrete implementations: an embedded SQLite substrate and a MySQL-wire
// substrate (for pointing the core at a MySQL-compatible server).
package substrate

import (
	"context"
	"database/sql"
)

// Behavior selects one of the three transaction behaviors spec.md §6
// requires the substrate to support.
type Behavior int

const (
	// Deferred is the default reader behavior: no lock is taken until the
	// transaction's first statement executes.
	Deferred Behavior = iota
	// Immediate reserves write intent immediately without excluding
	// readers; it blocks other Immediate/Exclusive transactions. This is
	// the core's writer mode (spec.md §4.2, §6).
	Immediate
	// Exclusive excludes all other connections, readers included.
	Exclusive
)

func (b Behavior) String() string {
	switch b {
	case Deferred:
		return "DEFERRED"
	case Immediate:
		return "IMMEDIATE"
	case Exclusive:
		return "EXCLUSIVE"
	default:
		return "DEFERRED"
	}
}

// Querier is the read surface shared by a Substrate handle (for reads
// against committed state) and a Tx handle (for reads against staged,
// uncommitted state within an InProgress).
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Tx is an open substrate transaction. Dropping it without Commit must be
// guaranteed to Rollback the underlying transaction — callers achieve this
// with `defer tx.Rollback()` guarded by a committed flag, matching the
// teacher's CreateIssue pattern (internal/storage/sqlite/queries.go).
type Tx interface {
	Querier
	Commit() error
	Rollback() error
}

// Substrate is the relational store the core transacts and queries
// against. spec.md §6 "Substrate (relational store) expectations".
type Substrate interface {
	Querier

	// BeginTx opens a transaction with the requested behavior. For
	// Immediate, a busy substrate (another Immediate/Exclusive
	// transaction already open) is surfaced as ErrSubstrateBusy; the
	// core does not retry (spec.md §4.2, §7) — retry, if any, happens
	// inside BeginTx itself as a bounded backoff against transient
	// SQLITE_BUSY/lock-wait conditions, not as a policy the core opts
	// into.
	BeginTx(ctx context.Context, behavior Behavior) (Tx, error)

	// Close releases the substrate's resources (connection pool, file
	// handles). The core does not multiplex substrate connections
	// (spec.md §5); one Substrate belongs to one embedder.
	Close() error
}
