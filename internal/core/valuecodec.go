package core

import (
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// StoredValue is what is physically written into a datoms row for one
// value: the tag actually persisted (which, for a fulltext attribute, is
// the valueTypeFulltextRef surrogate tag rather than the semantic
// ValueTypeString/ValueTypeLong a reader sees) and its text encoding.
type StoredValue struct {
	Tag     ValueType
	Payload string
}

// EncodeValue converts a Value into its on-disk (tag, payload) form; it
// takes no attribute. Fulltext attributes are handled by the caller: it
// is expected to have already resolved the string to a fulltext_values
// rowid and call EncodeValue with a fulltextRefValue-shaped Value.
func EncodeValue(v Value) (StoredValue, error) {
	switch v.Tag {
	case ValueTypeRef:
		return StoredValue{Tag: ValueTypeRef, Payload: strconv.FormatInt(int64(v.Ref()), 10)}, nil
	case ValueTypeLong, valueTypeFulltextRef:
		return StoredValue{Tag: v.Tag, Payload: strconv.FormatInt(v.Long(), 10)}, nil
	case ValueTypeDouble:
		return StoredValue{Tag: ValueTypeDouble, Payload: strconv.FormatFloat(v.Double(), 'g', -1, 64)}, nil
	case ValueTypeBoolean:
		return StoredValue{Tag: ValueTypeBoolean, Payload: strconv.FormatBool(v.Bool())}, nil
	case ValueTypeInstant:
		return StoredValue{Tag: ValueTypeInstant, Payload: v.Instant().Format(time.RFC3339Nano)}, nil
	case ValueTypeKeyword:
		return StoredValue{Tag: ValueTypeKeyword, Payload: v.AsKeyword().String()}, nil
	case ValueTypeUUID:
		return StoredValue{Tag: ValueTypeUUID, Payload: v.AsUUID().String()}, nil
	case ValueTypeString, ValueTypeURI:
		return StoredValue{Tag: v.Tag, Payload: v.Str()}, nil
	default:
		return StoredValue{}, fmt.Errorf("cannot encode value of tag %s", v.Tag)
	}
}

// DecodeValue converts a persisted (tag, payload) pair back into a Value.
// For valueTypeFulltextRef it returns the raw surrogate rowid as a
// fulltextRefValue; resolving that rowid to text is the fulltext store's
// job (internal/fulltext), not this codec's.
func DecodeValue(tag ValueType, payload string) (Value, error) {
	switch tag {
	case ValueTypeRef:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode ref value %q: %w", payload, err)
		}
		return RefValue(Entid(n)), nil
	case ValueTypeLong:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode long value %q: %w", payload, err)
		}
		return LongValue(n), nil
	case valueTypeFulltextRef:
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode fulltext ref value %q: %w", payload, err)
		}
		return fulltextRefValue(n), nil
	case ValueTypeDouble:
		f, err := strconv.ParseFloat(payload, 64)
		if err != nil {
			return Value{}, fmt.Errorf("decode double value %q: %w", payload, err)
		}
		return DoubleValue(f), nil
	case ValueTypeBoolean:
		b, err := strconv.ParseBool(payload)
		if err != nil {
			return Value{}, fmt.Errorf("decode boolean value %q: %w", payload, err)
		}
		return BooleanValue(b), nil
	case ValueTypeInstant:
		t, err := time.Parse(time.RFC3339Nano, payload)
		if err != nil {
			return Value{}, fmt.Errorf("decode instant value %q: %w", payload, err)
		}
		return InstantValue(t), nil
	case ValueTypeKeyword:
		k, err := ParseKeyword(payload)
		if err != nil {
			return Value{}, fmt.Errorf("decode keyword value %q: %w", payload, err)
		}
		return KeywordValue(k), nil
	case ValueTypeUUID:
		u, err := uuid.Parse(payload)
		if err != nil {
			return Value{}, fmt.Errorf("decode uuid value %q: %w", payload, err)
		}
		return UUIDValue(u), nil
	case ValueTypeString:
		return StringValue(payload), nil
	case ValueTypeURI:
		return URIValue(payload), nil
	default:
		return Value{}, fmt.Errorf("cannot decode value of tag %s", tag)
	}
}

// FulltextRefRowid returns the surrogate fulltext_values rowid carried by
// a valueTypeFulltextRef Value.
func FulltextRefRowid(v Value) int64 { return v.Long() }

// IsFulltextRef reports whether v carries the internal fulltext surrogate
// tag (a fulltext_values rowid) rather than a semantic value. Callers that
// read raw datoms rows (internal/debug) use this to decide whether to
// resolve the value through the fulltext store before showing it to a
// reader, per spec.md §3's "readers must normalize this on the way out".
func IsFulltextRef(v Value) bool { return v.Tag == valueTypeFulltextRef }

// NewFulltextRefValue builds the surrogate Value stored in `datoms` for a
// fulltext attribute, pointing at fulltext_values row rowid.
func NewFulltextRefValue(rowid int64) Value { return fulltextRefValue(rowid) }
