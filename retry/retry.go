// Package retry implements the declarative retry policy of spec §4.7: a
// tagged sum of {never, finite(count, delay), infinite(delay)} with pure
// Next() transitions, backed by fixed/exponential/hybrid delay strategies
// with overflow-safe progression.
//
// Krishna8167-tempuscache has no retry concept; this package is built
// directly from spec §3/§4.7's value-semantics description, informed by
// grafana-grafana-app-sdk's RetryProcessor (operator/retry_processor.go)
// attempt-counting shape (RetryRequest.Attempt) — kept as a pure value
// type rather than that package's queue-based processor, since the
// maxRunningTasks-bounded worker loop in kvtasks already owns scheduling
// (see SPEC_FULL.md's DOMAIN STACK note on C9).
package retry

import (
	"math"
	"time"
)

// maxFiniteDelay is the saturation ceiling for exponential backoff growth
// (spec §4.7: "overflow of delay saturates at the platform max finite").
const maxFiniteDelay = time.Duration(math.MaxInt64)

// Delay is a pure value describing how long to wait before the next retry
// attempt, and how it evolves on each subsequent failure.
type Delay interface {
	// Interval returns the current delay.
	Interval() time.Duration
	// Next returns the delay strategy for the following attempt.
	Next() Delay
}

// Fixed is a delay strategy that never changes.
type Fixed struct{ D time.Duration }

func (f Fixed) Interval() time.Duration { return f.D }
func (f Fixed) Next() Delay             { return f }

// Exponential multiplies its interval by scale (floored at 1.0) on every
// Next(), saturating at maxFiniteDelay instead of overflowing.
type Exponential struct {
	Initial time.Duration
	current time.Duration
	Scale   float64
}

// NewExponential constructs an Exponential delay starting at initial with
// the given growth scale.
func NewExponential(initial time.Duration, scale float64) Exponential {
	return Exponential{Initial: initial, current: initial, Scale: scale}
}

func (e Exponential) Interval() time.Duration {
	if e.current == 0 && e.Initial != 0 {
		return e.Initial
	}
	return e.current
}

func (e Exponential) Next() Delay {
	cur := e.Interval()
	scale := e.Scale
	if scale < 1.0 {
		scale = 1.0
	}
	next := saturatingMul(cur, scale)
	return Exponential{Initial: e.Initial, current: next, Scale: e.Scale}
}

func saturatingMul(d time.Duration, scale float64) time.Duration {
	product := float64(d) * scale
	if product >= float64(maxFiniteDelay) || math.IsInf(product, 1) {
		return maxFiniteDelay
	}
	return time.Duration(product)
}

// ExponentialThenFixed grows exponentially for remainingExp transitions,
// then switches to a fixed delay (base) for the remainder, exactly once.
type ExponentialThenFixed struct {
	exp          Exponential
	base         time.Duration
	remainingExp int
}

// NewExponentialThenFixed constructs the hybrid strategy described above.
func NewExponentialThenFixed(initial time.Duration, base time.Duration, remainingExp int, scale float64) ExponentialThenFixed {
	return ExponentialThenFixed{exp: NewExponential(initial, scale), base: base, remainingExp: remainingExp}
}

func (h ExponentialThenFixed) Interval() time.Duration {
	if h.remainingExp <= 0 {
		return h.base
	}
	return h.exp.Interval()
}

func (h ExponentialThenFixed) Next() Delay {
	if h.remainingExp <= 0 {
		return Fixed{D: h.base}
	}
	return ExponentialThenFixed{exp: h.exp.Next().(Exponential), base: h.base, remainingExp: h.remainingExp - 1}
}

// FixedThenExponential holds a fixed delay for remainingFixed transitions,
// then switches to exponential growth (from base), exactly once.
type FixedThenExponential struct {
	initial        time.Duration
	base           time.Duration
	remainingFixed int
	scale          float64
}

// NewFixedThenExponential constructs the hybrid strategy described above.
func NewFixedThenExponential(initial time.Duration, base time.Duration, remainingFixed int, scale float64) FixedThenExponential {
	return FixedThenExponential{initial: initial, base: base, remainingFixed: remainingFixed, scale: scale}
}

func (h FixedThenExponential) Interval() time.Duration {
	if h.remainingFixed > 0 {
		return h.initial
	}
	return h.base
}

func (h FixedThenExponential) Next() Delay {
	if h.remainingFixed > 0 {
		return FixedThenExponential{initial: h.initial, base: h.base, remainingFixed: h.remainingFixed - 1, scale: h.scale}
	}
	return NewExponential(h.base, h.scale).Next()
}

// Policy is the tagged sum {never, finite(n, delay), infinite(delay)} of
// spec §3/§4.7.
type Policy struct {
	kind  kind
	count int
	delay Delay
}

type kind int

const (
	kindNever kind = iota
	kindFinite
	kindInfinite
)

// Never is the retry policy that never retries.
func Never() Policy { return Policy{kind: kindNever} }

// Finite retries up to n times (n must be >= 1 to retry at all) with the
// given delay strategy between attempts.
func Finite(n int, delay Delay) Policy {
	if n <= 0 {
		return Never()
	}
	return Policy{kind: kindFinite, count: n, delay: delay}
}

// Infinite retries forever with the given delay strategy.
func Infinite(delay Delay) Policy {
	return Policy{kind: kindInfinite, delay: delay}
}

// FromCount implements spec §4.7's "integer-literal construction": 0 maps
// to Never, n>0 maps to Finite(n, Fixed(0)).
func FromCount(n int) Policy {
	if n <= 0 {
		return Never()
	}
	return Finite(n, Fixed{D: 0})
}

// ShouldRetry reports whether another attempt should be made after a
// failure.
func (p Policy) ShouldRetry() bool {
	switch p.kind {
	case kindFinite:
		return p.count > 0
	case kindInfinite:
		return true
	default:
		return false
	}
}

// TimeInterval returns the delay to wait before the next attempt. It is
// meaningless (and returns 0) when ShouldRetry is false.
func (p Policy) TimeInterval() time.Duration {
	if !p.ShouldRetry() || p.delay == nil {
		return 0
	}
	return p.delay.Interval()
}

// Next returns the policy for the following attempt, per spec §4.7's
// transition rules:
//   - never -> never
//   - finite(1, s) -> never
//   - finite(n>1, s) -> finite(n-1, s.next())
//   - infinite(s) -> infinite(s.next())
func (p Policy) Next() Policy {
	switch p.kind {
	case kindFinite:
		if p.count <= 1 {
			return Never()
		}
		return Policy{kind: kindFinite, count: p.count - 1, delay: p.delay.Next()}
	case kindInfinite:
		return Policy{kind: kindInfinite, delay: p.delay.Next()}
	default:
		return Never()
	}
}

// RemainingAttempts returns the number of retries still permitted under a
// finite policy. It returns 0 for both Never and Infinite; use
// IsInfinite to tell those two apart.
func (p Policy) RemainingAttempts() int {
	if p.kind != kindFinite {
		return 0
	}
	return p.count
}

// IsInfinite reports whether the policy retries without bound.
func (p Policy) IsInfinite() bool { return p.kind == kindInfinite }
