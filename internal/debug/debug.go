// Package debug provides low-level store inspection for tests and the
// dump CLI command: enumerating datoms and transaction history in
// deterministic order, and rendering them as EDN-lite for
// human-comparable golden output. Grounded in db/src/debug.rs's
// Datom/Datoms/Transactions/FulltextValues types and datoms_after /
// transactions_after functions.
package debug

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/factbase/factbase/internal/core"
	"github.com/factbase/factbase/internal/fulltext"
	"github.com/factbase/factbase/internal/substrate"
)

// ftResolver is the narrow slice of *fulltext.Store this package needs,
// so a caller with no fulltext attributes in play can pass nil.
type ftResolver interface {
	Resolve(ctx context.Context, rowid int64) (string, error)
}

var _ ftResolver = (*fulltext.Store)(nil)

// numericValueOrder is an ORDER BY term that compares the text-encoded v
// column numerically for ref, long and fulltext-ref (integer) and double
// tags, so those values sort the way core.Value.Compare orders them
// rather than lexically ("10" before "9").
const numericValueOrder = `CASE WHEN value_type_tag IN (0, 3, 9) THEN CAST(v AS INTEGER) WHEN value_type_tag = 4 THEN CAST(v AS REAL) END ASC`

// Datom is one rendered datom: e and a are shown as idents when the
// schema has one registered, otherwise as raw entids, mirroring
// debug.rs's to_entid/ToIdent.
type Datom struct {
	E     core.Entid
	EIdnt *core.Keyword
	A     core.Entid
	AIdnt *core.Keyword
	V     core.Value
	Tx    core.Entid
	Added *bool
}

func identOrEntid(schema *core.Schema, e core.Entid) *core.Keyword {
	if k, ok := schema.IdentForEntid(e); ok {
		return &k
	}
	return nil
}

// mapValueIdent turns a ValueTypeRef value into a keyword when the
// schema has an ident for it, mirroring ToIdent::map_ident.
func mapValueIdent(schema *core.Schema, v core.Value) core.Value {
	if v.Tag != core.ValueTypeRef {
		return v
	}
	if k, ok := schema.IdentForEntid(v.Ref()); ok {
		return core.KeywordValue(k)
	}
	return v
}

// DatomsAfter fetches every datom with tx greater than afterTx, in the
// canonical snapshot ordering (e, a, (tag, v), tx). No rows are
// excluded: this core has no :db/txInstant attribute, so the txInstant
// filter debug.rs's datoms_after applies has nothing to act on here. ft
// resolves fulltext surrogate values back to text (spec.md §3, §4.4,
// §8 item 8); pass nil if no fulltext attribute is in play.
func DatomsAfter(ctx context.Context, q substrate.Querier, schema *core.Schema, ft ftResolver, afterTx core.Entid) ([]Datom, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT e, a, v, value_type_tag, tx FROM datoms WHERE tx > ? ORDER BY e ASC, a ASC, value_type_tag ASC, `+numericValueOrder+`, v ASC, tx ASC`,
		int64(afterTx))
	if err != nil {
		return nil, core.NewSubstrateError("datoms_after", err)
	}
	defer rows.Close()

	var out []Datom
	for rows.Next() {
		var e, a, tx int64
		var payload string
		var tag int
		if err := rows.Scan(&e, &a, &payload, &tag, &tx); err != nil {
			return nil, core.NewSubstrateError("datoms_after scan", err)
		}
		v, err := core.DecodeValue(core.ValueType(tag), payload)
		if err != nil {
			return nil, err
		}
		v, err = normalizeFulltext(ctx, ft, v)
		if err != nil {
			return nil, err
		}
		out = append(out, Datom{
			E:     core.Entid(e),
			EIdnt: identOrEntid(schema, core.Entid(e)),
			A:     core.Entid(a),
			AIdnt: identOrEntid(schema, core.Entid(a)),
			V:     mapValueIdent(schema, v),
			Tx:    core.Entid(tx),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewSubstrateError("datoms_after rows", err)
	}
	return out, nil
}

// Datoms fetches the full current datom set, in snapshot order.
func Datoms(ctx context.Context, q substrate.Querier, schema *core.Schema, ft ftResolver) ([]Datom, error) {
	return DatomsAfter(ctx, q, schema, ft, core.TX0-1)
}

// normalizeFulltext resolves a fulltext surrogate value to the text it
// points at, reporting it with the semantic ValueTypeString tag rather
// than the internal surrogate tag (spec.md §3: "readers must normalize
// this on the way out"). Non-fulltext values pass through unchanged.
func normalizeFulltext(ctx context.Context, ft ftResolver, v core.Value) (core.Value, error) {
	if !core.IsFulltextRef(v) {
		return v, nil
	}
	if ft == nil {
		return v, fmt.Errorf("datom carries a fulltext value but no fulltext store was supplied")
	}
	text, err := ft.Resolve(ctx, core.FulltextRefRowid(v))
	if err != nil {
		return core.Value{}, core.NewSubstrateError("resolve fulltext value", err)
	}
	return core.StringValue(text), nil
}

// TransactionsAfter fetches every datom (assertion or retraction) with tx
// greater than afterTx, grouped by transaction and ordered within each
// group by (tx, e, a, (tag, v), added), mirroring transactions_after's
// "group by tx, retractions before assertions" view.
func TransactionsAfter(ctx context.Context, q substrate.Querier, schema *core.Schema, ft ftResolver, afterTx core.Entid) ([][]Datom, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT e, a, v, value_type_tag, tx, added FROM datoms WHERE tx > ? ORDER BY tx ASC, e ASC, a ASC, value_type_tag ASC, `+numericValueOrder+`, v ASC, added ASC`,
		int64(afterTx))
	if err != nil {
		return nil, core.NewSubstrateError("transactions_after", err)
	}
	defer rows.Close()

	var flat []Datom
	for rows.Next() {
		var e, a, tx int64
		var payload string
		var tag, addedInt int
		if err := rows.Scan(&e, &a, &payload, &tag, &tx, &addedInt); err != nil {
			return nil, core.NewSubstrateError("transactions_after scan", err)
		}
		v, err := core.DecodeValue(core.ValueType(tag), payload)
		if err != nil {
			return nil, err
		}
		v, err = normalizeFulltext(ctx, ft, v)
		if err != nil {
			return nil, err
		}
		added := addedInt != 0
		flat = append(flat, Datom{
			E:     core.Entid(e),
			EIdnt: identOrEntid(schema, core.Entid(e)),
			A:     core.Entid(a),
			AIdnt: identOrEntid(schema, core.Entid(a)),
			V:     mapValueIdent(schema, v),
			Tx:    core.Entid(tx),
			Added: &added,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, core.NewSubstrateError("transactions_after rows", err)
	}

	var groups [][]Datom
	var currentTx core.Entid
	var current []Datom
	for i, d := range flat {
		if i == 0 || d.Tx != currentTx {
			if len(current) > 0 {
				groups = append(groups, current)
			}
			current = nil
			currentTx = d.Tx
		}
		current = append(current, d)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}
	return groups, nil
}

// SortDatoms sorts datoms in place by the snapshot (e, a, (tag, v), tx)
// ordering, for callers that built a []Datom outside DatomsAfter.
func SortDatoms(datoms []Datom) {
	sort.Slice(datoms, func(i, j int) bool {
		return core.CompareDatoms(toCoreDatom(datoms[i]), toCoreDatom(datoms[j])) < 0
	})
}

func toCoreDatom(d Datom) core.Datom {
	return core.Datom{E: d.E, A: d.A, V: d.V, Tx: d.Tx, Added: d.Added}
}

// RenderEDN renders a slice of Datoms as an EDN-lite vector of vectors:
// [[e a v] ...] for snapshot datoms, [[e a v tx added] ...] once Added is
// populated, matching debug.rs's Datom::into_edn / Datoms::into_edn.
func RenderEDN(datoms []Datom) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, d := range datoms {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteByte('[')
		sb.WriteString(renderEntidOrIdent(d.E, d.EIdnt))
		sb.WriteByte(' ')
		sb.WriteString(renderEntidOrIdent(d.A, d.AIdnt))
		sb.WriteByte(' ')
		sb.WriteString(renderValue(d.V))
		if d.Added != nil {
			sb.WriteByte(' ')
			sb.WriteString(fmt.Sprintf("%d", d.Tx))
			sb.WriteByte(' ')
			sb.WriteString(fmt.Sprintf("%t", *d.Added))
		}
		sb.WriteByte(']')
	}
	sb.WriteByte(']')
	return sb.String()
}

func renderEntidOrIdent(e core.Entid, ident *core.Keyword) string {
	if ident != nil {
		return ident.String()
	}
	return fmt.Sprintf("%d", e)
}

func renderValue(v core.Value) string {
	switch v.Tag {
	case core.ValueTypeRef:
		return fmt.Sprintf("%d", v.Ref())
	case core.ValueTypeLong:
		return fmt.Sprintf("%d", v.Long())
	case core.ValueTypeDouble:
		return fmt.Sprintf("%g", v.Double())
	case core.ValueTypeBoolean:
		return fmt.Sprintf("%t", v.Bool())
	case core.ValueTypeInstant:
		return fmt.Sprintf("#inst %q", v.Instant().Format("2006-01-02T15:04:05.000Z"))
	case core.ValueTypeKeyword:
		return v.AsKeyword().String()
	case core.ValueTypeUUID:
		return fmt.Sprintf("#uuid %q", v.AsUUID().String())
	case core.ValueTypeString, core.ValueTypeURI:
		return fmt.Sprintf("%q", v.Str())
	default:
		return fmt.Sprintf("%d", v.Long())
	}
}
