// Package core defines the fact store's foundational types: entids,
// namespaced keyword idents, typed values and datoms, the schema (the
// attribute definitions and the entid<->ident bijection), the partition
// map entids are allocated from, and the metadata that bundles a
// partition map with a schema. It has no dependency on how those types
// are stored or transacted; internal/conn and internal/transactor build
// on top of it.
package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Entid is a signed 64-bit identifier for an entity, attribute, or
// transaction. Some entids are also idents (namespaced keywords).
type Entid int64

// Keyword is a namespaced keyword of the form "namespace/name".
type Keyword struct {
	Namespace string
	Name      string
}

// NewKeyword builds a Keyword from its namespace and name parts.
func NewKeyword(namespace, name string) Keyword {
	return Keyword{Namespace: namespace, Name: name}
}

// ParseKeyword parses ":namespace/name" or ":name" into a Keyword.
// It does not validate character classes beyond requiring the leading colon.
func ParseKeyword(s string) (Keyword, error) {
	if !strings.HasPrefix(s, ":") {
		return Keyword{}, fmt.Errorf("keyword %q must start with ':'", s)
	}
	body := s[1:]
	if body == "" {
		return Keyword{}, fmt.Errorf("keyword %q has empty body", s)
	}
	if i := strings.IndexByte(body, '/'); i >= 0 {
		ns, name := body[:i], body[i+1:]
		if ns == "" || name == "" {
			return Keyword{}, fmt.Errorf("keyword %q has empty namespace or name", s)
		}
		return Keyword{Namespace: ns, Name: name}, nil
	}
	return Keyword{Name: body}, nil
}

// String renders the keyword in its ":namespace/name" form.
func (k Keyword) String() string {
	if k.Namespace == "" {
		return ":" + k.Name
	}
	return ":" + k.Namespace + "/" + k.Name
}

// ValueType enumerates the value types a schema attribute may carry.
// Numeric values are the internal ordering tags; they are part of the
// deterministic-ordering contract (spec.md §4.4) and must never change
// once assigned, since they participate in on-disk sort order.
type ValueType int

const (
	ValueTypeRef ValueType = iota
	ValueTypeBoolean
	ValueTypeInstant
	ValueTypeLong
	ValueTypeDouble
	ValueTypeString
	ValueTypeKeyword
	ValueTypeUUID
	ValueTypeURI
	// valueTypeFulltextRef is the tag persisted for fulltext-flagged
	// attributes: the value stored in `datoms` is a fulltext_values
	// rowid, not a real long, but schema.Attribute.Fulltext routes
	// readers to treat it as ValueTypeLong (the semantic tag).
	valueTypeFulltextRef
)

// String returns the canonical name of the value type.
func (t ValueType) String() string {
	switch t {
	case ValueTypeRef:
		return "ref"
	case ValueTypeBoolean:
		return "boolean"
	case ValueTypeInstant:
		return "instant"
	case ValueTypeLong:
		return "long"
	case ValueTypeDouble:
		return "double"
	case ValueTypeString:
		return "string"
	case ValueTypeKeyword:
		return "keyword"
	case ValueTypeUUID:
		return "uuid"
	case ValueTypeURI:
		return "uri"
	case valueTypeFulltextRef:
		return "fulltext-ref"
	default:
		return fmt.Sprintf("valuetype(%d)", int(t))
	}
}

// Value is a typed datom value: exactly one of its fields is
// meaningful, selected by Tag.
type Value struct {
	Tag ValueType

	ref     Entid
	long    int64
	double  float64
	str     string
	boolean bool
	instant time.Time
	keyword Keyword
	uid     uuid.UUID
}

// RefValue builds a ValueTypeRef value.
func RefValue(e Entid) Value { return Value{Tag: ValueTypeRef, ref: e} }

// LongValue builds a ValueTypeLong value.
func LongValue(n int64) Value { return Value{Tag: ValueTypeLong, long: n} }

// DoubleValue builds a ValueTypeDouble value.
func DoubleValue(f float64) Value { return Value{Tag: ValueTypeDouble, double: f} }

// StringValue builds a ValueTypeString value.
func StringValue(s string) Value { return Value{Tag: ValueTypeString, str: s} }

// BooleanValue builds a ValueTypeBoolean value.
func BooleanValue(b bool) Value { return Value{Tag: ValueTypeBoolean, boolean: b} }

// InstantValue builds a ValueTypeInstant value.
func InstantValue(t time.Time) Value { return Value{Tag: ValueTypeInstant, instant: t.UTC()} }

// KeywordValue builds a ValueTypeKeyword value.
func KeywordValue(k Keyword) Value { return Value{Tag: ValueTypeKeyword, keyword: k} }

// UUIDValue builds a ValueTypeUUID value.
func UUIDValue(u uuid.UUID) Value { return Value{Tag: ValueTypeUUID, uid: u} }

// URIValue builds a ValueTypeURI value. Its text is held in the same field
// a ValueTypeString value uses, but the value keeps (and is persisted
// with) its own ValueTypeURI tag.
func URIValue(s string) Value { return Value{Tag: ValueTypeURI, str: s} }

// fulltextRefValue builds the internal surrogate value stored in `datoms`
// for a fulltext attribute: a pointer (by rowid) into fulltext_values.
func fulltextRefValue(rowid int64) Value { return Value{Tag: valueTypeFulltextRef, long: rowid} }

// Ref returns the entid for a ValueTypeRef value.
func (v Value) Ref() Entid { return v.ref }

// Long returns the integer for a ValueTypeLong (or fulltext surrogate) value.
func (v Value) Long() int64 { return v.long }

// Double returns the float for a ValueTypeDouble value.
func (v Value) Double() float64 { return v.double }

// Str returns the string for a ValueTypeString/ValueTypeURI value.
func (v Value) Str() string { return v.str }

// Bool returns the boolean for a ValueTypeBoolean value.
func (v Value) Bool() bool { return v.boolean }

// Instant returns the time for a ValueTypeInstant value.
func (v Value) Instant() time.Time { return v.instant }

// AsKeyword returns the keyword for a ValueTypeKeyword value.
func (v Value) AsKeyword() Keyword { return v.keyword }

// AsUUID returns the uuid for a ValueTypeUUID value.
func (v Value) AsUUID() uuid.UUID { return v.uid }

// Equal reports whether two values have the same tag and payload.
func (v Value) Equal(other Value) bool {
	return v.Compare(other) == 0
}

// Compare orders values by (tag, payload), matching the `(value_type_tag, v)`
// component of the datom ordering tuple in spec.md §4.4.
func (v Value) Compare(other Value) int {
	if v.Tag != other.Tag {
		if v.Tag < other.Tag {
			return -1
		}
		return 1
	}
	switch v.Tag {
	case ValueTypeRef:
		return compareInt64(int64(v.ref), int64(other.ref))
	case ValueTypeBoolean:
		return compareBool(v.boolean, other.boolean)
	case ValueTypeInstant:
		return compareInt64(v.instant.UnixNano(), other.instant.UnixNano())
	case ValueTypeLong, valueTypeFulltextRef:
		return compareInt64(v.long, other.long)
	case ValueTypeDouble:
		return compareFloat64(v.double, other.double)
	case ValueTypeString, ValueTypeURI:
		return strings.Compare(v.str, other.str)
	case ValueTypeKeyword:
		return strings.Compare(v.keyword.String(), other.keyword.String())
	case ValueTypeUUID:
		return strings.Compare(v.uid.String(), other.uid.String())
	default:
		return 0
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareFloat64(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func compareBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}

// Datom is an assertion or retraction tuple (e, a, v, tx, added?).
// Added is nil in snapshot form (the plain `datoms` view) and non-nil in
// history form (the `transactions` view), per spec.md §3.
type Datom struct {
	E     Entid
	A     Entid
	V     Value
	Tx    Entid
	Added *bool
}

// CompareDatoms orders datoms by (e, a, (tag, v), tx), the snapshot-view
// ordering required by spec.md §4.4 and §8 item 7.
func CompareDatoms(a, b Datom) int {
	if c := compareInt64(int64(a.E), int64(b.E)); c != 0 {
		return c
	}
	if c := compareInt64(int64(a.A), int64(b.A)); c != 0 {
		return c
	}
	if c := a.V.Compare(b.V); c != 0 {
		return c
	}
	return compareInt64(int64(a.Tx), int64(b.Tx))
}

// CompareHistoryDatoms orders datoms by (tx, e, a, (tag, v), added), with
// retractions (added=false) sorting before assertions (added=true) on ties,
// the history-view ordering required by spec.md §4.4 and §8 item 7.
func CompareHistoryDatoms(a, b Datom) int {
	if c := compareInt64(int64(a.Tx), int64(b.Tx)); c != 0 {
		return c
	}
	if c := compareInt64(int64(a.E), int64(b.E)); c != 0 {
		return c
	}
	if c := compareInt64(int64(a.A), int64(b.A)); c != 0 {
		return c
	}
	if c := a.V.Compare(b.V); c != 0 {
		return c
	}
	aAdded := a.Added != nil && *a.Added
	bAdded := b.Added != nil && *b.Added
	return compareBool(aAdded, bAdded)
}
