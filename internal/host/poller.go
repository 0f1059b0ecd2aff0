package host

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
)

// Poller re-evaluates a condition on a fixed interval. It stops after
// MaxAttempts re-evaluations or once Timeout has elapsed, whichever limit is
// set and reached first. A zero limit is not enforced.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
	Timeout     time.Duration
	Clock       clockwork.Clock
}

// Run checks once immediately and then once per interval. It returns the
// number of re-evaluations made and whether check was satisfied. A cancelled
// ctx ends the loop unsatisfied.
func (p Poller) Run(ctx context.Context, check func() bool) (int, bool) {
	clock := p.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if check() {
		return 0, true
	}
	if p.Interval <= 0 {
		return 0, false
	}

	start := clock.Now()
	attempts := 0
	for {
		if p.MaxAttempts > 0 && attempts >= p.MaxAttempts {
			return attempts, false
		}
		wait := p.Interval
		if p.Timeout > 0 {
			remaining := p.Timeout - clock.Now().Sub(start)
			if remaining <= 0 {
				return attempts, false
			}
			if remaining < wait {
				wait = remaining
			}
		}

		select {
		case <-ctx.Done():
			return attempts, false
		case <-clock.After(wait):
		}

		attempts++
		if check() {
			return attempts, true
		}
	}
}
