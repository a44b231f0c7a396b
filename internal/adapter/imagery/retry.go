package imagery

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
)

// RetryPolicy bounds the fetch loop. After failed attempt n the client waits
// clamp(Multiplier * 2^(n-1), Min, Max) before trying again.
type RetryPolicy struct {
	MaxAttempts int
	Multiplier  time.Duration
	Min         time.Duration
	Max         time.Duration
}

// DefaultRetryPolicy is three attempts with waits clamped to [4s, 10s].
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 3,
	Multiplier:  time.Second,
	Min:         4 * time.Second,
	Max:         10 * time.Second,
}

// Wait returns the delay after the n-th failed attempt (n starts at 1).
func (p RetryPolicy) Wait(n int) time.Duration {
	if n < 1 {
		n = 1
	}
	d := p.Max
	if n <= 32 {
		d = p.Multiplier * time.Duration(uint64(1)<<(n-1))
	}
	if d < 0 || d > p.Max {
		return p.Max
	}
	return max(d, p.Min)
}

// clampedExponential adapts RetryPolicy to backoff.BackOff. The attempt cap
// is applied by backoff.WithMaxRetries.
type clampedExponential struct {
	policy RetryPolicy
	failed int
}

func (b *clampedExponential) NextBackOff() time.Duration {
	b.failed++
	return b.policy.Wait(b.failed)
}

func (b *clampedExponential) Reset() { b.failed = 0 }

// clockTimer drives backoff waits from a clockwork clock so tests can
// advance time instead of sleeping.
type clockTimer struct {
	clock clockwork.Clock
	timer clockwork.Timer
}

func (t *clockTimer) Start(d time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.NewTimer(d)
		return
	}
	t.timer.Reset(d)
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.Chan()
}

var _ backoff.Timer = (*clockTimer)(nil)
