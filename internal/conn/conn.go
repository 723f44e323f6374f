// Package conn implements Connection and InProgress: the concurrency-safe
// handle to a store and its in-progress-transaction counterpart
// (spec.md §4). It composes internal/core's types, internal/substrate's
// storage abstraction, internal/ednlite's parser, internal/transactor's
// write path, and internal/query's read path -- kept in their own
// packages so that none of them needs to import this one, avoiding the
// import cycle a single do-everything core package would create.
package conn

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/ednlite"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/query"
	"github.com/factbase/factbase/internal/substrate"
	"github.com/factbase/factbase/internal/transactor"
)

var tracer = otel.Tracer("github.com/factbase/factbase/internal/conn")

// datomsSchemaDDL creates the single physical table this core persists
// datoms to. Schema and partition-map state are reconstructed from this
// table's contents on Open, the role db::ensure_current_version plays
// for mentat's SQLite-backed store.
const datomsSchemaDDL = `
CREATE TABLE IF NOT EXISTS datoms (
	e              INTEGER NOT NULL,
	a              INTEGER NOT NULL,
	v              TEXT    NOT NULL,
	value_type_tag INTEGER NOT NULL,
	tx             INTEGER NOT NULL,
	added          INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS datoms_eavt ON datoms (e, a, v, tx);
CREATE INDEX IF NOT EXISTS datoms_avet ON datoms (a, v, e);
CREATE INDEX IF NOT EXISTS datoms_tx ON datoms (tx);
`

// Connection is the concurrency-safe handle to a store: a mutex-guarded
// Metadata (generation, partition map, schema) shared by every reader and
// writer, the Go counterpart of src/conn.rs's Conn. Many goroutines may
// hold a *Connection and call its read methods concurrently; only one
// goroutine may hold an open InProgress (a writer) at a time, enforced by
// the substrate's IMMEDIATE transaction semantics, not by this mutex --
// the mutex here guards reads and swaps of Metadata and is held through
// the substrate commit inside InProgress.Commit, never for a whole
// transaction's lifetime.
type Connection struct {
	mu      sync.Mutex
	current core.Metadata
	ft      *fulltext.Store
}

// Open bootstraps (if new) or reconstructs (if existing) a store's
// metadata from sub, and returns a ready-to-use Connection. ft is an
// optional fulltext companion store (nil disables fulltext attributes).
func Open(ctx context.Context, sub substrate.Substrate, ft *fulltext.Store) (*Connection, error) {
	ctx, span := tracer.Start(ctx, "conn.Open")
	defer span.End()

	if _, err := sub.ExecContext(ctx, datomsSchemaDDL); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "ensure schema")
		return nil, core.NewSubstrateError("ensure datoms schema", err)
	}

	pm, err := reconstructPartitionMap(ctx, sub)
	if err != nil {
		return nil, err
	}
	schema, err := reconstructSchema(ctx, sub)
	if err != nil {
		return nil, err
	}

	return &Connection{
		current: core.Metadata{Generation: 0, PartitionMap: pm, Schema: schema},
		ft:      ft,
	}, nil
}

// reconstructPartitionMap recomputes each partition's next-allocation
// index from the high-water mark of entids already written to datoms, so
// a store reopened after a restart resumes allocation where it left off
// rather than colliding with existing entids.
func reconstructPartitionMap(ctx context.Context, sub substrate.Substrate) (core.PartitionMap, error) {
	pm := core.BootstrapPartitions()

	maxIn := func(lo, hi core.Entid) (core.Entid, error) {
		row := sub.QueryRowContext(ctx, `SELECT MAX(e) FROM datoms WHERE e >= ? AND e < ?`, int64(lo), int64(hi))
		var max *int64
		if err := row.Scan(&max); err != nil {
			return 0, core.NewSubstrateError("reconstruct partition map", err)
		}
		if max == nil {
			return 0, nil
		}
		return core.Entid(*max) + 1, nil
	}

	dbPart := pm[core.PartitionDB]
	if next, err := maxIn(dbPart.Start, dbPart.End); err != nil {
		return nil, err
	} else if next > dbPart.Index {
		dbPart.Index = next
		pm[core.PartitionDB] = dbPart
	}

	userPart := pm[core.PartitionUser]
	if next, err := maxIn(userPart.Start, userPart.End); err != nil {
		return nil, err
	} else if next > userPart.Index {
		userPart.Index = next
		pm[core.PartitionUser] = userPart
	}

	txRow := sub.QueryRowContext(ctx, `SELECT MAX(tx) FROM datoms`)
	var maxTx *int64
	if err := txRow.Scan(&maxTx); err != nil {
		return nil, core.NewSubstrateError("reconstruct tx partition", err)
	}
	txPart := pm[core.PartitionTx]
	if maxTx != nil && core.Entid(*maxTx)+1 > txPart.Index {
		txPart.Index = core.Entid(*maxTx) + 1
		pm[core.PartitionTx] = txPart
	}

	return pm, nil
}

// reconstructSchema replays every :db/ident assertion recorded in datoms
// on top of the bootstrap schema, rebuilding the entid<->ident bijection
// a restarted process needs. Attribute definitions installed ad hoc by
// the transactor (see internal/transactor) are not separately persisted;
// they are re-derived the next time each attribute is used, which is
// sufficient for this core's narrow schema model.
func reconstructSchema(ctx context.Context, sub substrate.Substrate) (*core.Schema, error) {
	schema := core.BootstrapSchema()

	rows, err := sub.QueryContext(ctx,
		`SELECT e, v FROM datoms WHERE a = ? AND added = 1 ORDER BY tx ASC`,
		int64(core.IdentIdentEntid))
	if err != nil {
		return nil, core.NewSubstrateError("reconstruct schema", err)
	}
	defer rows.Close()

	for rows.Next() {
		var e int64
		var v string
		if err := rows.Scan(&e, &v); err != nil {
			return nil, core.NewSubstrateError("reconstruct schema scan", err)
		}
		kw, err := core.ParseKeyword(v)
		if err != nil {
			continue
		}
		schema.PutIdent(core.Entid(e), kw)
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewSubstrateError("reconstruct schema rows", err)
	}
	return schema, nil
}

// CurrentSchema returns a cheap, stable snapshot of the schema as it
// stands right now. The mutex is always taken unconditionally. Go has no
// poisoned-mutex concept and this package adds none: unlike the Rust
// original's `self.metadata.lock().unwrap()` (which propagates a panic to
// every later locker), every holder here releases the mutex with a
// deferred Unlock, so a panic inside a critical section unlocks it while
// unwinding and later callers acquire it normally.
func (c *Connection) CurrentSchema() core.SchemaSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.NewSchemaSnapshot(c.current.Schema)
}

func (c *Connection) currentMetadata() core.Metadata {
	c.mu.Lock()
	defer c.mu.Unlock()
	return core.Metadata{
		Generation:   c.current.Generation,
		PartitionMap: c.current.PartitionMap.Clone(),
		Schema:       c.current.Schema,
	}
}

// QOnce queries sub using the connection's current schema snapshot.
func (c *Connection) QOnce(ctx context.Context, sub substrate.Querier, queryText string) (query.Results, error) {
	return query.QOnce(ctx, sub, c.CurrentSchema().Schema(), queryText)
}

// LookupValueForAttribute looks up entity's value for attribute using the
// connection's current schema snapshot.
func (c *Connection) LookupValueForAttribute(ctx context.Context, sub substrate.Querier, entity core.Entid, attribute core.Keyword) (*core.Value, error) {
	return query.LookupValueForAttribute(ctx, sub, c.CurrentSchema().Schema(), entity, attribute)
}

// BeginTransaction opens a writer transaction against sub with IMMEDIATE
// behavior ("reserve write intent now, without excluding readers"),
// snapshots the connection's current metadata as this writer's working
// copies, and returns the InProgress handle. Per spec.md §4.2, §7, a busy
// substrate surfaces as substrate.ErrSubstrateBusy and this layer does
// not retry it -- retry, if any, is the substrate implementation's own
// bounded backoff against transient lock contention, a policy decision
// that stays below this layer.
func (c *Connection) BeginTransaction(ctx context.Context, sub substrate.Substrate) (*InProgress, error) {
	ctx, span := tracer.Start(ctx, "conn.BeginTransaction", trace.WithAttributes(attribute.String("behavior", "IMMEDIATE")))
	defer span.End()

	tx, err := sub.BeginTx(ctx, substrate.Immediate)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "begin immediate")
		return nil, err
	}

	md := c.currentMetadata()
	return &InProgress{
		ctx:          ctx,
		tx:           tx,
		conn:         c,
		ft:           c.ft,
		generation:   md.Generation,
		partitionMap: md.PartitionMap,
		schema:       md.Schema.Clone(),
	}, nil
}

// Transact parses transactionText, opens a writer transaction, applies
// it, and commits -- the Go counterpart of conn.rs's Conn::transact.
// Parsing happens outside any substrate transaction: malformed input
// never causes even a DEFERRED transaction to open, and in a race for the
// writer lock this connection is less likely to hold it unnecessarily
// (spec.md §7).
func (c *Connection) Transact(ctx context.Context, sub substrate.Substrate, transactionText string) (*core.TxReport, error) {
	entities, err := parseTxText(transactionText)
	if err != nil {
		return nil, err
	}

	ip, err := c.BeginTransaction(ctx, sub)
	if err != nil {
		return nil, err
	}
	if err := ip.TransactEntities(entities); err != nil {
		_ = ip.Rollback()
		return nil, err
	}
	report, err := ip.Commit()
	if err != nil {
		return nil, err
	}
	if report == nil {
		return nil, fmt.Errorf("commit produced no report")
	}
	return report, nil
}

func parseTxText(text string) ([]ednlite.Entity, error) {
	parsed, err := ednlite.ParseValue(text)
	if err != nil {
		return nil, &core.ParseError{Input: text, Err: err}
	}
	entities, err := ednlite.ParseTx(parsed)
	if err != nil {
		return nil, &core.TxParseError{Err: err}
	}
	return entities, nil
}

// transactEntities is transactor.Transact, named locally so InProgress
// methods read as this package's own vocabulary.
func transactEntities(ctx context.Context, tx substrate.Querier, ft *fulltext.Store, pm core.PartitionMap, schema *core.Schema, entities []ednlite.Entity) (*transactor.Result, error) {
	return transactor.Transact(ctx, tx, ft, pm, schema, entities)
}
