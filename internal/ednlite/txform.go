package ednlite

import "fmt"

// TxFormError indicates data-notation that parsed as EDN-lite but is not a
// valid transaction form (wrong arity, missing :db/id on a map form, an
// operator that isn't :db/add or :db/retract).
type TxFormError struct {
	Msg string
}

func (e *TxFormError) Error() string { return "tx form error: " + e.Msg }

// EntityRef names either a previously-resolved entid or a tempid string
// that the transactor must resolve during this transaction.
type EntityRef struct {
	Tempid   string
	Entid    int64
	HasEntid bool
}

func (r EntityRef) String() string {
	if r.HasEntid {
		return fmt.Sprintf("%d", r.Entid)
	}
	return fmt.Sprintf("%q", r.Tempid)
}

// Entity is one (e, a, v, added) assertion or retraction parsed from a
// transaction's data-notation input, mirroring mentat_tx::entities::Entity.
type Entity struct {
	E     EntityRef
	A     Keyword
	V     Value
	Added bool
}

var dbAdd = Keyword{Namespace: "db", Name: "add"}
var dbRetract = Keyword{Namespace: "db", Name: "retract"}
var dbID = Keyword{Namespace: "db", Name: "id"}

// dbSchemaAttribute doubles as an entity-ref key in map forms, the way
// :db/id does, when a map declares a new schema attribute without an
// explicit :db/id: {:db.schema/attribute "tempid", :db/ident :a/k, ...}
// names the attribute entity being defined by its :db.schema/attribute
// value rather than requiring a separate :db/id key. In vector forms
// (:db/add e :db.schema/attribute v) it is an ordinary attribute.
var dbSchemaAttribute = Keyword{Namespace: "db.schema", Name: "attribute"}

// ParseTx turns a parsed top-level vector of transaction forms into a flat
// list of entities. Each element is either a 4-tuple vector form
// [:db/add e a v] / [:db/retract e a v], or a map form
// {:db/id e, :attr val, ...} that expands into one Entity per non-:db/id
// key, all sharing the map's entity reference and all asserted (map forms
// are add-only; use vector forms to retract).
func ParseTx(v Value) ([]Entity, error) {
	if v.Kind != KindVector {
		return nil, &TxFormError{Msg: "top-level transaction data must be a vector of forms"}
	}
	var entities []Entity
	for _, form := range v.Vector {
		switch form.Kind {
		case KindVector:
			e, err := parseVectorForm(form)
			if err != nil {
				return nil, err
			}
			entities = append(entities, e)
		case KindMap:
			es, err := parseMapForm(form)
			if err != nil {
				return nil, err
			}
			entities = append(entities, es...)
		default:
			return nil, &TxFormError{Msg: "transaction form must be a vector or map"}
		}
	}
	return entities, nil
}

func parseVectorForm(form Value) (Entity, error) {
	if len(form.Vector) != 4 {
		return Entity{}, &TxFormError{Msg: "vector form must have exactly 4 elements: [:db/add|:db/retract e a v]"}
	}
	op := form.Vector[0]
	if op.Kind != KindKeyword {
		return Entity{}, &TxFormError{Msg: "vector form's first element must be :db/add or :db/retract"}
	}
	var added bool
	switch op.Keyword {
	case dbAdd:
		added = true
	case dbRetract:
		added = false
	default:
		return Entity{}, &TxFormError{Msg: "unrecognized operator " + op.Keyword.String()}
	}

	ref, err := parseEntityRef(form.Vector[1])
	if err != nil {
		return Entity{}, err
	}
	aVal := form.Vector[2]
	if aVal.Kind != KindKeyword {
		return Entity{}, &TxFormError{Msg: "attribute position must be a keyword"}
	}
	return Entity{E: ref, A: aVal.Keyword, V: form.Vector[3], Added: added}, nil
}

func parseMapForm(form Value) ([]Entity, error) {
	var ref EntityRef
	haveRef := false
	var entities []Entity
	for _, pair := range form.Pairs {
		if pair.Key.Kind != KindKeyword {
			return nil, &TxFormError{Msg: "map form keys must be keywords"}
		}
		if pair.Key.Keyword == dbID || (!haveRef && pair.Key.Keyword == dbSchemaAttribute) {
			r, err := parseEntityRef(pair.Value)
			if err != nil {
				return nil, err
			}
			ref = r
			haveRef = true
			continue
		}
		entities = append(entities, Entity{A: pair.Key.Keyword, V: pair.Value, Added: true})
	}
	if !haveRef {
		return nil, &TxFormError{Msg: "map form must include :db/id"}
	}
	for i := range entities {
		entities[i].E = ref
	}
	return entities, nil
}

func parseEntityRef(v Value) (EntityRef, error) {
	switch v.Kind {
	case KindString:
		return EntityRef{Tempid: v.Str}, nil
	case KindInt:
		return EntityRef{Entid: v.Int, HasEntid: true}, nil
	default:
		return EntityRef{}, &TxFormError{Msg: "entity position must be a tempid string or an integer entid"}
	}
}
