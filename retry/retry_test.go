package retry

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNeverNeverRetries(t *testing.T) {
	p := Never()
	require.False(t, p.ShouldRetry(), "never policy should not retry")
	require.False(t, p.Next().ShouldRetry(), "never policy should remain never")
}

func TestFiniteCountsDownToNever(t *testing.T) {
	p := Finite(2, Fixed{D: time.Second})
	require.True(t, p.ShouldRetry())
	require.Equal(t, 2, p.RemainingAttempts())

	p = p.Next()
	require.True(t, p.ShouldRetry())
	require.Equal(t, 1, p.RemainingAttempts())

	p = p.Next()
	require.False(t, p.ShouldRetry(), "expected policy to be exhausted")
}

func TestFiniteZeroCollapsesToNever(t *testing.T) {
	p := Finite(0, Fixed{D: time.Second})
	require.False(t, p.ShouldRetry(), "finite(0) should behave as never")
}

func TestFromCountMapsZeroAndPositive(t *testing.T) {
	require.False(t, FromCount(0).ShouldRetry())

	p := FromCount(3)
	require.True(t, p.ShouldRetry())
	require.Equal(t, 3, p.RemainingAttempts())
	require.Zero(t, p.TimeInterval(), "FromCount should use a zero fixed delay")
}

func TestInfiniteNeverExhausts(t *testing.T) {
	p := Infinite(Fixed{D: time.Millisecond})
	for i := 0; i < 100; i++ {
		require.Truef(t, p.ShouldRetry(), "infinite policy exhausted at iteration %d", i)
		p = p.Next()
	}
	require.True(t, p.IsInfinite())
}

func TestExponentialDelayGrowsBySale(t *testing.T) {
	d := NewExponential(time.Second, 2.0)
	require.Equal(t, time.Second, d.Interval())

	d2 := d.Next()
	require.Equal(t, 2*time.Second, d2.Interval())

	d3 := d2.Next()
	require.Equal(t, 4*time.Second, d3.Interval())
}

func TestExponentialDelaySaturatesInsteadOfOverflowing(t *testing.T) {
	d := NewExponential(time.Hour, 1e18)
	next := d.Next()
	require.Equal(t, maxFiniteDelay, next.Interval())

	// must not panic or wrap negative on a further Next().
	next2 := next.Next()
	require.GreaterOrEqual(t, next2.Interval(), time.Duration(0))
}

func TestExponentialThenFixedSwitchesOnce(t *testing.T) {
	h := NewExponentialThenFixed(time.Second, 30*time.Second, 2, 2.0)
	require.Equal(t, time.Second, h.Interval())

	h1 := h.Next()
	require.Equal(t, 2*time.Second, h1.Interval())

	h2 := h1.Next()
	require.Equal(t, 30*time.Second, h2.Interval(), "should switch to the fixed leg after exhausting exponential")

	h3 := h2.Next()
	require.Equal(t, 30*time.Second, h3.Interval(), "fixed leg should persist")
}

func TestFixedThenExponentialSwitchesOnce(t *testing.T) {
	h := NewFixedThenExponential(time.Second, 2*time.Second, 1, 2.0)
	require.Equal(t, time.Second, h.Interval())

	h1 := h.Next()
	require.Equal(t, 2*time.Second, h1.Interval(), "should switch to the exponential base after the fixed leg")

	h2 := h1.Next()
	require.Equal(t, 4*time.Second, h2.Interval())
}

func TestPolicyTimeIntervalIsZeroWhenExhausted(t *testing.T) {
	p := Finite(1, Fixed{D: 5 * time.Second})
	require.Equal(t, 5*time.Second, p.TimeInterval())

	p = p.Next()
	require.Zero(t, p.TimeInterval(), "exhausted policy should report 0 interval")
}
