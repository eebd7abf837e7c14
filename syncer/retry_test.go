package syncer

import (
	"testing"
	"time"
)

func TestRetryPolicyBudget(t *testing.T) {
	p := NewRetryPolicy(5, 30*time.Second)

	for attempt := 1; attempt <= 4; attempt++ {
		d := p.Failure()
		if !d.Retry || d.Exhausted {
			t.Fatalf("attempt %d: decision = %+v, want retry", attempt, d)
		}
		if d.Delay != 30*time.Second {
			t.Fatalf("attempt %d: delay = %v", attempt, d.Delay)
		}
		if p.Count() != attempt {
			t.Fatalf("attempt %d: count = %d", attempt, p.Count())
		}
	}

	// The fifth consecutive failure spends the budget and auto-resets.
	d := p.Failure()
	if d.Retry || !d.Exhausted {
		t.Fatalf("fifth failure: decision = %+v, want exhausted", d)
	}
	if p.Count() != 0 {
		t.Fatalf("count after exhaustion = %d, want 0", p.Count())
	}
}

func TestRetryPolicySuccessResets(t *testing.T) {
	p := NewRetryPolicy(5, time.Second)

	p.Failure()
	p.Failure()
	if p.Count() != 2 {
		t.Fatalf("count = %d, want 2", p.Count())
	}

	p.Success()
	if p.Count() != 0 {
		t.Fatalf("count after success = %d, want 0", p.Count())
	}

	// A fresh failure run starts the budget over.
	if d := p.Failure(); !d.Retry {
		t.Fatalf("decision after reset = %+v, want retry", d)
	}
}
