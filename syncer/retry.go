package syncer

import "time"

// RetryPolicy is the tick failure budget: a small counter with a one-shot
// retry delay. It holds no timers so scheduling stays testable; the engine
// owns the clock.
type RetryPolicy struct {
	max   int
	delay time.Duration
	count int
}

// NewRetryPolicy creates a policy allowing max-1 delayed retries before the
// counter auto-resets.
func NewRetryPolicy(max int, delay time.Duration) *RetryPolicy {
	return &RetryPolicy{max: max, delay: delay}
}

// Decision tells the scheduler what to do after a failed tick.
type Decision struct {
	// Retry requests a one-shot retry after Delay.
	Retry bool
	Delay time.Duration
	// Exhausted reports that the budget was spent; the counter has been
	// reset and the regular cadence simply continues.
	Exhausted bool
}

// Failure records one failed tick and returns the scheduling decision.
// Failures are throttled, never fatal: spending the whole budget resets the
// counter to zero rather than stopping anything.
func (p *RetryPolicy) Failure() Decision {
	p.count++
	if p.count < p.max {
		return Decision{Retry: true, Delay: p.delay}
	}
	p.count = 0
	return Decision{Exhausted: true}
}

// Success resets the counter.
func (p *RetryPolicy) Success() {
	p.count = 0
}

// Count is the current consecutive failure count.
func (p *RetryPolicy) Count() int {
	return p.count
}
