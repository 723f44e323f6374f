package conn

import (
	"context"

	"go.opentelemetry.io/otel/codes"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/ednlite"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/query"
	"github.com/factbase/factbase/internal/substrate"
)

// InProgress is an open, not-yet-committed writer transaction: working
// copies of the partition map and schema, and the substrate transaction
// they were staged against. The Go counterpart of src/conn.rs's
// InProgress. Call Commit to persist the changes, or Rollback to discard
// them; dropping an InProgress without either leaves its substrate
// transaction open, so callers must always reach one or the other (idiomatic
// Go has no destructor to fall back on the way the Rust original's Drop
// impl does).
type InProgress struct {
	ctx          context.Context
	tx           substrate.Tx
	conn         *Connection
	ft           *fulltext.Store
	generation   uint64
	partitionMap core.PartitionMap
	schema       *core.Schema
	lastReport   *core.TxReport
	done         bool
}

// TransactEntities applies entities against this InProgress's working
// transaction, advancing its working partition map and (if the
// transaction touched idents) working schema. It may be called more than
// once on the same InProgress before Commit, each call building on the
// last (spec.md §4.3, conn.rs's test_compound_transact).
func (ip *InProgress) TransactEntities(entities []ednlite.Entity) error {
	result, err := transactEntities(ip.ctx, ip.tx, ip.ft, ip.partitionMap, ip.schema, entities)
	if err != nil {
		return err
	}
	ip.partitionMap = result.PartitionMap
	if result.SchemaChanged {
		ip.schema = result.Schema
	}
	ip.lastReport = result.Report
	return nil
}

// Transact parses transactionText and applies it via TransactEntities.
func (ip *InProgress) Transact(transactionText string) error {
	entities, err := parseTxText(transactionText)
	if err != nil {
		return err
	}
	return ip.TransactEntities(entities)
}

// QOnce queries against this InProgress's working transaction and schema,
// so a query made after TransactEntities but before Commit sees this
// writer's own uncommitted changes (spec.md §4.3, conn.rs's
// test_compound_transact: "during" query observing an in-flight tempid).
func (ip *InProgress) QOnce(queryText string) (query.Results, error) {
	return query.QOnce(ip.ctx, ip.tx, ip.schema, queryText)
}

// LookupValueForAttribute looks up entity's value for attribute against
// this InProgress's working transaction and schema.
func (ip *InProgress) LookupValueForAttribute(entity core.Entid, attribute core.Keyword) (*core.Value, error) {
	return query.LookupValueForAttribute(ip.ctx, ip.tx, ip.schema, entity, attribute)
}

// LastReport returns the report produced by the most recent
// TransactEntities/Transact call, or nil if none has run yet.
func (ip *InProgress) LastReport() *core.TxReport {
	return ip.lastReport
}

// Rollback discards this InProgress's substrate transaction and its
// working changes. Calling it again, or after Commit, is a no-op that
// returns nil; the receiver must not be used for further work afterward.
func (ip *InProgress) Rollback() error {
	if ip.done {
		return nil
	}
	ip.done = true
	ip.lastReport = nil
	return ip.tx.Rollback()
}

// Commit applies the five-step commit protocol (spec.md §4.3): take the
// connection's mutex, check this InProgress's observed generation against
// the connection's current generation, commit the substrate transaction
// while still holding the mutex, advance the generation, and install the
// new partition map and (if changed) schema. A generation mismatch means
// another writer committed after this InProgress's snapshot was taken --
// which should never happen, since a competing IMMEDIATE acquisition
// would have failed first (substrate.ErrSubstrateBusy) rather than let
// two writers reach Commit concurrently; this check exists as a
// belt-and-braces guard against that invariant being violated, not as a
// retry signal (core.ErrLostTransactRace is returned, uncommitted, if it
// ever fires).
func (ip *InProgress) Commit() (*core.TxReport, error) {
	if ip.done {
		return nil, nil
	}

	_, span := tracer.Start(ip.ctx, "conn.Commit")
	defer span.End()

	ip.conn.mu.Lock()
	defer ip.conn.mu.Unlock()

	// committed guards the deferred rollback the same way
	// internal/storage/sqlite/queries.go's CreateIssue guards its own
	// `defer func(){ if !committed { ROLLBACK } }()`: every return path
	// below this point -- including ones added later that the author
	// didn't anticipate -- releases the substrate transaction exactly
	// once, whether by Commit or by Rollback.
	committed := false
	defer func() {
		if !committed {
			ip.done = true
			_ = ip.tx.Rollback()
		}
	}()

	if ip.generation != ip.conn.current.Generation {
		span.SetStatus(codes.Error, "lost transact race")
		return nil, core.ErrLostTransactRace
	}

	if err := ip.tx.Commit(); err != nil {
		ip.done = true
		committed = true
		span.RecordError(err)
		span.SetStatus(codes.Error, "commit")
		return nil, core.NewSubstrateError("commit", err)
	}
	ip.done = true
	committed = true

	ip.conn.current.Generation++
	ip.conn.current.PartitionMap = ip.partitionMap
	if !ip.conn.current.Schema.Equal(ip.schema) {
		ip.conn.current.Schema = ip.schema
	}

	return ip.lastReport, nil
}
