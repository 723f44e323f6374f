// Package transactor resolves tempids and entid references, allocates new
// entids and transaction ids from the partition map, detects conflicting
// upserts, and writes the resulting datoms to the substrate. It is the Go
// counterpart of mentat_db::transact, invoked from
// internal/conn.InProgress.TransactEntities (src/conn.rs's
// transact_entities).
package transactor

import (
	"context"
	"fmt"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/ednlite"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/substrate"
)

// Result is the outcome of one Transact call: the report to hand back to
// the caller, plus the working copies of partition map and schema the
// InProgress should adopt going forward (spec.md §4.3 step 1).
type Result struct {
	Report           *core.TxReport
	PartitionMap     core.PartitionMap
	Schema           *core.Schema
	SchemaChanged    bool
}

var dbIdent = core.Keyword{Namespace: "db", Name: "ident"}

// Transact applies entities to tx (an open substrate transaction),
// allocating a new :db.part/tx entid for this transaction, resolving
// tempids and validating user-supplied entids against partitionMap,
// and returns the working partition map and schema the caller should
// install if it goes on to commit.
func Transact(
	ctx context.Context,
	tx substrate.Querier,
	ft *fulltext.Store,
	partitionMap core.PartitionMap,
	schema *core.Schema,
	entities []ednlite.Entity,
) (*Result, error) {
	pm := partitionMap.Clone()
	sch := schema.Clone()
	schemaChanged := false

	txID, err := pm.Allocate(core.PartitionTx, 1)
	if err != nil {
		return nil, err
	}

	// Validate every user-supplied entid against the partition map as it
	// stood BEFORE this transaction allocated anything. An entid equal to
	// the index about to be allocated must still be rejected: nothing has
	// formally claimed it yet, so a caller naming it is guessing, not
	// referencing (spec.md §7, §8 item 6; conn.rs
	// test_transact_does_not_collide_new_entids).
	for _, ent := range entities {
		if ent.E.HasEntid {
			e := core.Entid(ent.E.Entid)
			if !partitionMap.IsAllocated(e) {
				return nil, core.NewUnrecognizedEntidError(e)
			}
		}
	}

	tempids := make(map[string]core.Entid)
	resolveRef := func(ref ednlite.EntityRef) (core.Entid, error) {
		if ref.HasEntid {
			return core.Entid(ref.Entid), nil
		}
		if e, ok := tempids[ref.Tempid]; ok {
			return e, nil
		}
		e, err := pm.Allocate(core.PartitionUser, 1)
		if err != nil {
			return 0, err
		}
		tempids[ref.Tempid] = e
		return e, nil
	}

	// Tracks the :db/ident value assigned to each tempid so far this
	// transaction, to catch the case of one tempid asserting two
	// different idents in the same tx (conn.rs's conflicting-upsert test).
	tempidIdents := make(map[string]core.Keyword)

	type pendingDatom struct {
		e, a  core.Entid
		v     core.Value
		added bool
	}
	var pending []pendingDatom

	for _, ent := range entities {
		e, err := resolveRef(ent.E)
		if err != nil {
			return nil, err
		}

		entKeyword := core.NewKeyword(ent.A.Namespace, ent.A.Name)

		if entKeyword == dbIdent {
			if ent.V.Kind != ednlite.KindKeyword {
				return nil, core.NewSchemaViolationError(":db/ident value must be a keyword")
			}
			kw := core.NewKeyword(ent.V.Keyword.Namespace, ent.V.Keyword.Name)
			if !ent.E.HasEntid {
				if prev, ok := tempidIdents[ent.E.Tempid]; ok && prev != kw {
					return nil, core.NewNotYetImplementedError(fmt.Sprintf(
						"conflicting upsert: tempid %q assigned both :db/ident %s and %s in one transaction",
						ent.E.Tempid, prev, kw))
				}
				tempidIdents[ent.E.Tempid] = kw
			}
			sch.PutIdent(e, kw)
			schemaChanged = true
			pending = append(pending, pendingDatom{e: e, a: core.IdentIdentEntid, v: core.KeywordValue(kw), added: ent.Added})
			continue
		}

		aEntid, ok := sch.EntidForIdent(entKeyword)
		if !ok {
			// An attribute keyword nobody has installed yet is treated as a
			// fresh schema-space entid: the first transaction to mention it
			// owns its entid/ident binding. This lets ad hoc attributes
			// (e.g. :db.schema/attribute in the collision tests) work
			// without requiring a prior schema-installing transaction.
			newA, err := pm.Allocate(core.PartitionDB, 1)
			if err != nil {
				return nil, err
			}
			sch.PutIdent(newA, entKeyword)
			sch.PutAttribute(newA, core.Attribute{ValueType: valueTypeOf(ent.V), Cardinality: core.CardinalityMany})
			schemaChanged = true
			aEntid = newA
		}

		attr, _ := sch.AttributeFor(aEntid)
		val, err := convertValue(ctx, ft, ent.V, attr)
		if err != nil {
			return nil, err
		}
		pending = append(pending, pendingDatom{e: e, a: aEntid, v: val, added: ent.Added})
	}

	for _, d := range pending {
		if err := insertDatom(ctx, tx, d.e, d.a, d.v, txID, d.added); err != nil {
			return nil, err
		}
	}

	return &Result{
		Report:        &core.TxReport{TxID: txID, Tempids: tempids},
		PartitionMap:  pm,
		Schema:        sch,
		SchemaChanged: schemaChanged,
	}, nil
}

func valueTypeOf(v ednlite.Value) core.ValueType {
	switch v.Kind {
	case ednlite.KindInt:
		return core.ValueTypeLong
	case ednlite.KindFloat:
		return core.ValueTypeDouble
	case ednlite.KindKeyword:
		return core.ValueTypeKeyword
	case ednlite.KindBool:
		return core.ValueTypeBoolean
	default:
		return core.ValueTypeString
	}
}

func convertValue(ctx context.Context, ft *fulltext.Store, v ednlite.Value, attr core.Attribute) (core.Value, error) {
	switch v.Kind {
	case ednlite.KindInt:
		if attr.ValueType == core.ValueTypeRef {
			return core.RefValue(core.Entid(v.Int)), nil
		}
		return core.LongValue(v.Int), nil
	case ednlite.KindFloat:
		return core.DoubleValue(v.Float), nil
	case ednlite.KindKeyword:
		return core.KeywordValue(core.NewKeyword(v.Keyword.Namespace, v.Keyword.Name)), nil
	case ednlite.KindBool:
		return core.BooleanValue(v.Bool), nil
	case ednlite.KindString:
		if attr.Fulltext {
			if ft == nil {
				return core.Value{}, fmt.Errorf("attribute is fulltext-indexed but no fulltext store is configured")
			}
			rowid, err := ft.Intern(ctx, v.Str)
			if err != nil {
				return core.Value{}, err
			}
			return core.NewFulltextRefValue(rowid), nil
		}
		return core.StringValue(v.Str), nil
	default:
		return core.Value{}, fmt.Errorf("cannot transact value of kind %d", v.Kind)
	}
}

func insertDatom(ctx context.Context, tx substrate.Querier, e, a core.Entid, v core.Value, txID core.Entid, added bool) error {
	stored, err := core.EncodeValue(v)
	if err != nil {
		return err
	}
	addedInt := 0
	if added {
		addedInt = 1
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO datoms (e, a, v, value_type_tag, tx, added) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(e), int64(a), stored.Payload, int(stored.Tag), int64(txID), addedInt)
	return err
}
