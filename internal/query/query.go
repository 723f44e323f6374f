// Package query implements the two read entry points the core exposes
// directly against a substrate handle and a schema snapshot: a minimal
// q_once query evaluator and single-attribute value lookup. This is a
// deliberately small fragment of mentat's Datalog query engine (query.rs),
// scoped to what spec.md's InProgress/Connection operations need: the
// exact scalar-find pattern conn.rs's own tests exercise
// ([:find ?x . :where [?x :attr val]]) and attribute lookups by entity.
package query

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/ednlite"
	"github.com/factbase/factbase/internal/substrate"
)

// ResultKind discriminates the shape of a QueryResults value, mirroring
// mentat_db::QueryResults' Scalar/Coll/Tuple/Rel variants; this core only
// ever produces Scalar or Coll, since those are the shapes its own
// operations need.
type ResultKind int

const (
	ResultScalar ResultKind = iota
	ResultColl
)

// Results is the outcome of a q_once call.
type Results struct {
	Kind   ResultKind
	Scalar *core.Value
	Coll   []core.Value
}

// ParseError indicates a query string that is not one of the supported
// find-pattern shapes.
type ParseError struct {
	Msg string
}

func (e *ParseError) Error() string { return "query parse error: " + e.Msg }

// QOnce evaluates a query against committed (or in-progress, if tx is an
// open transaction) state. It supports the two find-pattern shapes this
// core's operations require:
//
//	[:find ?x . :where [?x :attr "value"]]       -> scalar: one ref or none
//	[:find ?x :where [?x :attr "value"]]          -> coll: every matching ref
func QOnce(ctx context.Context, tx substrate.Querier, schema *core.Schema, queryText string) (Results, error) {
	parsed, err := ednlite.ParseValue(queryText)
	if err != nil {
		return Results{}, &ParseError{Msg: err.Error()}
	}
	pattern, scalar, err := parseFindPattern(parsed)
	if err != nil {
		return Results{}, err
	}

	attr, ok := schema.EntidForIdent(pattern.attr)
	if !ok {
		return Results{}, &ParseError{Msg: "unrecognized attribute " + pattern.attr.String()}
	}
	val, err := attributeValueToCore(pattern.value, schema, attr)
	if err != nil {
		return Results{}, err
	}
	stored, err := core.EncodeValue(val)
	if err != nil {
		return Results{}, err
	}

	rows, err := tx.QueryContext(ctx,
		`SELECT e FROM datoms WHERE a = ? AND v = ? AND value_type_tag = ? ORDER BY e ASC`,
		int64(attr), stored.Payload, int(stored.Tag))
	if err != nil {
		return Results{}, core.NewSubstrateError("q_once", err)
	}
	defer rows.Close()

	var matches []core.Value
	for rows.Next() {
		var e int64
		if err := rows.Scan(&e); err != nil {
			return Results{}, core.NewSubstrateError("q_once scan", err)
		}
		matches = append(matches, core.RefValue(core.Entid(e)))
	}
	if err := rows.Err(); err != nil {
		return Results{}, core.NewSubstrateError("q_once rows", err)
	}

	if scalar {
		if len(matches) == 0 {
			return Results{Kind: ResultScalar}, nil
		}
		v := matches[0]
		return Results{Kind: ResultScalar, Scalar: &v}, nil
	}
	return Results{Kind: ResultColl, Coll: matches}, nil
}

// LookupValueForAttribute returns the single value entity carries for
// attribute, if any, the Go counterpart of lookup_value_for_attribute in
// query.rs / conn.rs.
func LookupValueForAttribute(ctx context.Context, tx substrate.Querier, schema *core.Schema, entity core.Entid, attribute core.Keyword) (*core.Value, error) {
	attr, ok := schema.EntidForIdent(attribute)
	if !ok {
		return nil, &ParseError{Msg: "unrecognized attribute " + attribute.String()}
	}

	row := tx.QueryRowContext(ctx,
		`SELECT v, value_type_tag FROM datoms WHERE e = ? AND a = ? ORDER BY tx DESC LIMIT 1`,
		int64(entity), int64(attr))
	var payload string
	var tag int
	if err := row.Scan(&payload, &tag); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, core.NewSubstrateError("lookup_value_for_attribute", err)
	}
	v, err := core.DecodeValue(core.ValueType(tag), payload)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

type findPattern struct {
	attr  core.Keyword
	value ednlite.Value
}

// parseFindPattern recognizes
// "[:find ?x . :where [?x <attr> <value>]]" (scalar, trailing '.') and
// "[:find ?x :where [?x <attr> <value>]]" (coll).
func parseFindPattern(v ednlite.Value) (findPattern, bool, error) {
	if v.Kind != ednlite.KindVector || len(v.Vector) < 3 {
		return findPattern{}, false, &ParseError{Msg: "query must be a vector starting with :find"}
	}
	if v.Vector[0].Kind != ednlite.KindKeyword || v.Vector[0].Keyword != (ednlite.Keyword{Name: "find"}) {
		return findPattern{}, false, &ParseError{Msg: "query must start with :find"}
	}
	if v.Vector[1].Kind != ednlite.KindSymbol {
		return findPattern{}, false, &ParseError{Msg: ":find must name a single variable"}
	}

	idx := 2
	scalar := false
	if idx < len(v.Vector) && v.Vector[idx].Kind == ednlite.KindSymbol && v.Vector[idx].Symbol == "." {
		scalar = true
		idx++
	}
	if idx >= len(v.Vector) || v.Vector[idx].Kind != ednlite.KindKeyword || v.Vector[idx].Keyword != (ednlite.Keyword{Name: "where"}) {
		return findPattern{}, false, &ParseError{Msg: "query must contain :where"}
	}
	idx++
	if idx >= len(v.Vector) || v.Vector[idx].Kind != ednlite.KindVector {
		return findPattern{}, false, &ParseError{Msg: ":where must be followed by a clause vector"}
	}
	clause := v.Vector[idx].Vector
	if len(clause) != 3 {
		return findPattern{}, false, &ParseError{Msg: "only single-clause [?x attr value] patterns are supported"}
	}
	if clause[1].Kind != ednlite.KindKeyword {
		return findPattern{}, false, &ParseError{Msg: "where clause's attribute position must be a keyword"}
	}
	attr := core.NewKeyword(clause[1].Keyword.Namespace, clause[1].Keyword.Name)
	return findPattern{attr: attr, value: clause[2]}, scalar, nil
}

func attributeValueToCore(v ednlite.Value, schema *core.Schema, attr core.Entid) (core.Value, error) {
	switch v.Kind {
	case ednlite.KindString:
		return core.StringValue(v.Str), nil
	case ednlite.KindInt:
		return core.LongValue(v.Int), nil
	case ednlite.KindFloat:
		return core.DoubleValue(v.Float), nil
	case ednlite.KindKeyword:
		return core.KeywordValue(core.NewKeyword(v.Keyword.Namespace, v.Keyword.Name)), nil
	case ednlite.KindBool:
		return core.BooleanValue(v.Bool), nil
	default:
		return core.Value{}, fmt.Errorf("unsupported query value kind %d", v.Kind)
	}
}
