package query

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/substrate"
)

const datomsSchemaDDL = `
CREATE TABLE IF NOT EXISTS datoms (
	e              INTEGER NOT NULL,
	a              INTEGER NOT NULL,
	v              TEXT NOT NULL,
	value_type_tag INTEGER NOT NULL,
	tx             INTEGER NOT NULL,
	added          BOOLEAN NOT NULL
);
`

func newTestSubstrateWithSchema(t *testing.T) (*substrate.SQLiteSubstrate, *core.Schema) {
	t.Helper()
	sub, err := substrate.OpenSQLite(filepath.Join(t.TempDir(), "query.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	if _, err := sub.DB().Exec(datomsSchemaDDL); err != nil {
		t.Fatalf("create datoms table: %v", err)
	}

	schema := core.BootstrapSchema()
	schema.PutIdent(100, core.NewKeyword("a", "name"))
	schema.PutAttribute(100, core.Attribute{ValueType: core.ValueTypeString, Cardinality: core.CardinalityOne})
	return sub, schema
}

func insertDatom(t *testing.T, sub *substrate.SQLiteSubstrate, e, a core.Entid, v core.Value, tx core.Entid, added bool) {
	t.Helper()
	ctx := context.Background()
	stored, err := core.EncodeValue(v)
	if err != nil {
		t.Fatalf("EncodeValue: %v", err)
	}
	_, err = sub.ExecContext(ctx,
		`INSERT INTO datoms (e, a, v, value_type_tag, tx, added) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(e), int64(a), stored.Payload, int(stored.Tag), int64(tx), added)
	if err != nil {
		t.Fatalf("insert datom: %v", err)
	}
}

func TestQOnceScalarFindsMatch(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)
	insertDatom(t, sub, 200, 100, core.StringValue("alice"), 1000, true)

	results, err := QOnce(ctx, sub, schema, `[:find ?x . :where [?x :a/name "alice"]]`)
	if err != nil {
		t.Fatalf("QOnce: %v", err)
	}
	if results.Kind != ResultScalar || results.Scalar == nil {
		t.Fatalf("expected a scalar match, got %+v", results)
	}
	if results.Scalar.Compare(core.RefValue(200)) != 0 {
		t.Fatalf("expected scalar result 200, got %+v", results.Scalar)
	}
}

func TestQOnceScalarNoMatch(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)

	results, err := QOnce(ctx, sub, schema, `[:find ?x . :where [?x :a/name "nobody"]]`)
	if err != nil {
		t.Fatalf("QOnce: %v", err)
	}
	if results.Kind != ResultScalar || results.Scalar != nil {
		t.Fatalf("expected no scalar match, got %+v", results)
	}
}

func TestQOnceCollFindsAllMatches(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)
	insertDatom(t, sub, 200, 100, core.StringValue("bob"), 1000, true)
	insertDatom(t, sub, 201, 100, core.StringValue("bob"), 1000, true)
	insertDatom(t, sub, 202, 100, core.StringValue("carol"), 1000, true)

	results, err := QOnce(ctx, sub, schema, `[:find ?x :where [?x :a/name "bob"]]`)
	if err != nil {
		t.Fatalf("QOnce: %v", err)
	}
	if results.Kind != ResultColl || len(results.Coll) != 2 {
		t.Fatalf("expected 2 coll matches, got %+v", results)
	}
}

func TestQOnceUnrecognizedAttributeErrors(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)

	if _, err := QOnce(ctx, sub, schema, `[:find ?x . :where [?x :a/nope "x"]]`); err == nil {
		t.Fatalf("expected error for unrecognized attribute")
	}
}

func TestQOnceMalformedQueryErrors(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)

	cases := []string{
		`[:findx ?x . :where [?x :a/name "x"]]`,
		`[:find ?x :notwhere [?x :a/name "x"]]`,
		`[:find ?x . :where [?x :a/name]]`,
		`not-a-vector`,
	}
	for _, c := range cases {
		if _, err := QOnce(ctx, sub, schema, c); err == nil {
			t.Errorf("expected QOnce(%q) to fail", c)
		}
	}
}

func TestLookupValueForAttributeReturnsLatestByTx(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)
	insertDatom(t, sub, 200, 100, core.StringValue("first"), 1000, true)
	insertDatom(t, sub, 200, 100, core.StringValue("second"), 1001, true)

	v, err := LookupValueForAttribute(ctx, sub, schema, 200, core.NewKeyword("a", "name"))
	if err != nil {
		t.Fatalf("LookupValueForAttribute: %v", err)
	}
	if v == nil || v.Compare(core.StringValue("second")) != 0 {
		t.Fatalf("expected \"second\" (latest tx), got %+v", v)
	}
}

func TestLookupValueForAttributeNoRowsReturnsNil(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)

	v, err := LookupValueForAttribute(ctx, sub, schema, 999, core.NewKeyword("a", "name"))
	if err != nil {
		t.Fatalf("LookupValueForAttribute: %v", err)
	}
	if v != nil {
		t.Fatalf("expected nil value for an entity with no datoms, got %+v", v)
	}
}

func TestLookupValueForAttributeUnrecognizedAttributeErrors(t *testing.T) {
	ctx := context.Background()
	sub, schema := newTestSubstrateWithSchema(t)

	if _, err := LookupValueForAttribute(ctx, sub, schema, 200, core.NewKeyword("a", "nope")); err == nil {
		t.Fatalf("expected error for unrecognized attribute")
	}
}
