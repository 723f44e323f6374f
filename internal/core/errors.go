package core

import (
	"errors"
	"fmt"
)

// ErrLostTransactRace is returned by InProgress.Commit when the observed
// generation no longer matches the Connection's current generation
// (spec.md §4.3 step 2, §7). Per design this should never trigger in
// practice, since a competing writer's IMMEDIATE acquisition would have
// failed first; it exists as a belt-and-braces check, not a retry signal.
var ErrLostTransactRace = errors.New("lost the transact race: another writer advanced the generation")

// SubstrateError wraps a failure surfaced by the relational substrate
// (open, prepare, bind, step, commit). It is returned largely unchanged,
// per spec.md §7's propagation policy.
type SubstrateError struct {
	Op  string
	Err error
}

func (e *SubstrateError) Error() string {
	return fmt.Sprintf("substrate error during %s: %v", e.Op, e.Err)
}

func (e *SubstrateError) Unwrap() error { return e.Err }

// NewSubstrateError wraps err with the operation that produced it. Returns
// nil if err is nil.
func NewSubstrateError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SubstrateError{Op: op, Err: err}
}

// ParseError indicates malformed data-notation input. Parse errors are
// raised before any substrate transaction is opened (spec.md §7).
type ParseError struct {
	Input string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// TxParseError indicates data-notation that parses but is not a valid
// transaction form.
type TxParseError struct {
	Err error
}

func (e *TxParseError) Error() string {
	return fmt.Sprintf("transaction form parse error: %v", e.Err)
}

func (e *TxParseError) Unwrap() error { return e.Err }

// DbErrorKind discriminates the DbError subkinds named in spec.md §7.
type DbErrorKind int

const (
	// DbErrorUnrecognizedEntid: the caller named an entid outside any
	// partition's allocated range, even if it equals the next-to-allocate
	// index (spec.md §7, §8 item 6).
	DbErrorUnrecognizedEntid DbErrorKind = iota
	// DbErrorNotYetImplemented: valid-shaped input the transactor cannot
	// yet handle (e.g. conflicting upsert resolution).
	DbErrorNotYetImplemented
	// DbErrorConflictingUpsert: two tempids in one transaction both try
	// to upsert onto the same unique attribute value but resolve to
	// different existing entities.
	DbErrorConflictingUpsert
	// DbErrorSchemaViolation: an asserted datom is incompatible with the
	// declared schema (wrong value type, missing attribute, etc).
	DbErrorSchemaViolation
)

func (k DbErrorKind) String() string {
	switch k {
	case DbErrorUnrecognizedEntid:
		return "UnrecognizedEntid"
	case DbErrorNotYetImplemented:
		return "NotYetImplemented"
	case DbErrorConflictingUpsert:
		return "ConflictingUpsert"
	case DbErrorSchemaViolation:
		return "SchemaViolation"
	default:
		return "DbError"
	}
}

// DbError is a typed transactor/store error with a kind and, for kinds
// that carry one, an associated entid.
type DbError struct {
	Kind   DbErrorKind
	Entid  Entid
	Detail string
}

func (e *DbError) Error() string {
	switch e.Kind {
	case DbErrorUnrecognizedEntid:
		return fmt.Sprintf("UnrecognizedEntid(%d): entid is not in any allocated partition range", e.Entid)
	default:
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
		}
		return e.Kind.String()
	}
}

// NewUnrecognizedEntidError builds the DbError for an out-of-range
// user-supplied entid (spec.md §7).
func NewUnrecognizedEntidError(e Entid) error {
	return &DbError{Kind: DbErrorUnrecognizedEntid, Entid: e}
}

// NewNotYetImplementedError builds the DbError for valid-shaped input the
// transactor cannot yet resolve.
func NewNotYetImplementedError(detail string) error {
	return &DbError{Kind: DbErrorNotYetImplemented, Detail: detail}
}

// NewConflictingUpsertError builds the DbError for two tempids that upsert
// to incompatible existing entities.
func NewConflictingUpsertError(detail string) error {
	return &DbError{Kind: DbErrorConflictingUpsert, Detail: detail}
}

// NewSchemaViolationError builds the DbError for a datom incompatible with
// the declared schema.
func NewSchemaViolationError(detail string) error {
	return &DbError{Kind: DbErrorSchemaViolation, Detail: detail}
}

// AsDbError reports whether err is (or wraps) a *DbError of the given kind.
func AsDbError(err error, kind DbErrorKind) (*DbError, bool) {
	var dbErr *DbError
	if errors.As(err, &dbErr) && dbErr.Kind == kind {
		return dbErr, true
	}
	return nil, false
}
