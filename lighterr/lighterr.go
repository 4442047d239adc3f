// Package lighterr defines the error taxonomy shared by the cache,
// mono-task, and task-manager layers (spec §7). It wraps provider-reported
// errors with github.com/pkg/errors so a final errors.Cause recovers the
// original error while intermediate layers (retry, dispatch) can attach
// context — grounded on the pkg/errors usage in dgraph-io/ristretto and
// joeycumines-go-utilpkg/sql's go.mod.
package lighterr

import "github.com/pkg/errors"

// Sentinel errors for the non-provider failure kinds of spec §7.
var (
	// ErrEvictedByPriorityStrategy is returned to a caller whose pending
	// key was displaced (LIFO, queue full) or rejected (FIFO, queue
	// full) before a provider ever ran for it.
	ErrEvictedByPriorityStrategy = errors.New("evictedByPriorityStrategy")

	// ErrExecutionCancelled is returned to MonoTask waiters that were
	// registered at the moment ClearResult(Cancel) was invoked.
	ErrExecutionCancelled = errors.New("executionCancelledDueToClearResult")

	// ErrInvalidConfiguration identifies structurally invalid options
	// (e.g. a negative capacity). The constructors in this module do not
	// validate their options and never return it.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// WrapProvider tags an error returned by a user-supplied data provider so
// it is distinguishable (via Is/As) from the structural failures above,
// while errors.Cause(wrapped) still recovers the original provider error
// verbatim, per spec §6 ("Data-provider error... verbatim").
func WrapProvider(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, "data provider failed")
}

// Is reports whether err is, or wraps, target — a thin re-export of
// pkg/errors' Is so callers outside this package don't need a second
// error-handling import for the common case.
func Is(err, target error) bool { return errors.Is(err, target) }

// Cause unwraps err to its root cause (the original provider error, for
// WrapProvider-wrapped errors).
func Cause(err error) error { return errors.Cause(err) }
