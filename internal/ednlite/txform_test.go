package ednlite

import "testing"

func parseTxText(t *testing.T, text string) []Entity {
	t.Helper()
	v, err := ParseValue(text)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	entities, err := ParseTx(v)
	if err != nil {
		t.Fatalf("ParseTx: %v", err)
	}
	return entities
}

func TestParseTxVectorForm(t *testing.T) {
	entities := parseTxText(t, `[[:db/add "tempid" :a/name "value"]]`)
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity, got %d", len(entities))
	}
	e := entities[0]
	if e.E.Tempid != "tempid" || e.E.HasEntid {
		t.Fatalf("expected tempid ref, got %+v", e.E)
	}
	if e.A != (Keyword{Namespace: "a", Name: "name"}) {
		t.Fatalf("expected attribute :a/name, got %v", e.A)
	}
	if !e.Added {
		t.Fatalf("expected :db/add to assert")
	}
}

func TestParseTxRetractForm(t *testing.T) {
	entities := parseTxText(t, `[[:db/retract 100 :a/name "value"]]`)
	e := entities[0]
	if e.Added {
		t.Fatalf("expected :db/retract to retract")
	}
	if !e.E.HasEntid || e.E.Entid != 100 {
		t.Fatalf("expected entid ref 100, got %+v", e.E)
	}
}

func TestParseTxMapFormExpandsToMultipleEntities(t *testing.T) {
	entities := parseTxText(t, `[{:db/id "tempid" :a/x 1 :a/y 2}]`)
	if len(entities) != 2 {
		t.Fatalf("expected 2 entities from a 2-attribute map form, got %d", len(entities))
	}
	for _, e := range entities {
		if e.E.Tempid != "tempid" {
			t.Fatalf("expected all expanded entities to share the map's entity ref, got %+v", e.E)
		}
		if !e.Added {
			t.Fatalf("map forms are add-only")
		}
	}
}

func TestParseTxMapFormSchemaAttributeAliasesEntityRef(t *testing.T) {
	entities := parseTxText(t, `[{:db.schema/attribute "three", :db/ident :a/keyword1}]`)
	if len(entities) != 1 {
		t.Fatalf("expected 1 entity (the :db.schema/attribute pair names the entity, not a datom), got %d", len(entities))
	}
	e := entities[0]
	if e.E.Tempid != "three" || e.E.HasEntid {
		t.Fatalf("expected the map's entity ref to be tempid \"three\", got %+v", e.E)
	}
	if e.A != (Keyword{Namespace: "db", Name: "ident"}) {
		t.Fatalf("expected the remaining pair's attribute to be :db/ident, got %v", e.A)
	}
}

func TestParseTxMapFormMissingDbIDErrors(t *testing.T) {
	v, err := ParseValue(`[{:a/x 1}]`)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if _, err := ParseTx(v); err == nil {
		t.Fatalf("expected error for map form missing :db/id")
	}
}

func TestParseTxVectorFormBadArityErrors(t *testing.T) {
	v, err := ParseValue(`[[:db/add "tempid" :a/name]]`)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if _, err := ParseTx(v); err == nil {
		t.Fatalf("expected error for wrong-arity vector form")
	}
}

func TestParseTxUnrecognizedOperatorErrors(t *testing.T) {
	v, err := ParseValue(`[[:db/frobnicate "tempid" :a/name "value"]]`)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if _, err := ParseTx(v); err == nil {
		t.Fatalf("expected error for unrecognized operator")
	}
}

func TestParseTxTopLevelMustBeVector(t *testing.T) {
	v, err := ParseValue(`{:db/id "x"}`)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if _, err := ParseTx(v); err == nil {
		t.Fatalf("expected error when top-level transaction data is not a vector")
	}
}

func TestParseTxEntityRefMustBeStringOrInt(t *testing.T) {
	v, err := ParseValue(`[[:db/add :not/valid :a/name "value"]]`)
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if _, err := ParseTx(v); err == nil {
		t.Fatalf("expected error for non-string/int entity ref")
	}
}
