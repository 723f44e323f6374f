package substrate

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrSubstrateBusy indicates another IMMEDIATE or EXCLUSIVE transaction is
// already in flight on the substrate (spec.md §4.2). begin_transaction
// surfaces this unchanged; the core never retries it (spec.md §7) — the
// caller decides whether to retry. What begin does retry internally, via
// retryBusy, is the substrate's own transient SQLITE_BUSY
// (lock not yet released, not another logical writer), the same
// distinction the teacher draws between busy_timeout and the higher-level
// "someone else is writing" case.
var ErrSubstrateBusy = errors.New("substrate busy: another writer transaction is already open")

const immediateBeginMaxElapsed = 2 * time.Second

func newImmediateBeginBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 10 * time.Millisecond
	bo.MaxInterval = 200 * time.Millisecond
	bo.MaxElapsedTime = immediateBeginMaxElapsed
	return bo
}

// isBusyError reports whether err looks like a transient SQLITE_BUSY /
// "database is locked" condition worth a bounded retry, as opposed to a
// structural failure that should surface immediately.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "busy") ||
		strings.Contains(msg, "sqlite_busy")
}

// retryBusy runs op, retrying with bounded exponential backoff while op
// fails with a transient busy error. A non-busy error stops retrying
// immediately. This mirrors dolt.DoltStore.withRetry's shape but is scoped
// to the narrow "begin IMMEDIATE raced with a just-finishing writer" case,
// not general substrate-error recovery.
func retryBusy(ctx context.Context, op func() error) error {
	bo := newImmediateBeginBackoff()
	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isBusyError(err) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(bo, ctx))
}
