package identity

import (
	"testing"
	"time"
)

func TestSubmissionLimiterAllowsUpToTwoPerWindow(t *testing.T) {
	limiter := NewSubmissionLimiter()
	visitor := mustVisitorID(t, "visitor-1")
	base := time.Unix(1700000000, 0).UTC()

	first := limiter.CheckAndRecord(visitor, base)
	if !first.Allowed {
		t.Fatalf("expected first submission to be allowed")
	}
	second := limiter.CheckAndRecord(visitor, base.Add(500*time.Millisecond))
	if !second.Allowed {
		t.Fatalf("expected second submission to be allowed")
	}

	third := limiter.CheckAndRecord(visitor, base.Add(1000*time.Millisecond))
	if third.Allowed {
		t.Fatalf("expected third submission within the window to be throttled")
	}
	if third.RetryAfterSeconds != 2 {
		t.Fatalf("expected retry after 2 seconds, got %d", third.RetryAfterSeconds)
	}
}

func TestSubmissionLimiterResetsAfterWindowElapses(t *testing.T) {
	limiter := NewSubmissionLimiter()
	visitor := mustVisitorID(t, "visitor-1")
	base := time.Unix(1700000000, 0).UTC()

	limiter.CheckAndRecord(visitor, base)
	limiter.CheckAndRecord(visitor, base.Add(500*time.Millisecond))

	late := limiter.CheckAndRecord(visitor, base.Add(3100*time.Millisecond))
	if !late.Allowed {
		t.Fatalf("expected submission after the window to be allowed")
	}

	// The window restarted at t=3100, so two more quick submissions fit.
	if decision := limiter.CheckAndRecord(visitor, base.Add(3200*time.Millisecond)); !decision.Allowed {
		t.Fatalf("expected second submission of fresh window to be allowed")
	}
	if decision := limiter.CheckAndRecord(visitor, base.Add(3300*time.Millisecond)); decision.Allowed {
		t.Fatalf("expected third submission of fresh window to be throttled")
	}
}

func TestSubmissionLimiterTracksVisitorsIndependently(t *testing.T) {
	limiter := NewSubmissionLimiter()
	base := time.Unix(1700000000, 0).UTC()
	first := mustVisitorID(t, "visitor-1")
	second := mustVisitorID(t, "visitor-2")

	limiter.CheckAndRecord(first, base)
	limiter.CheckAndRecord(first, base)
	if decision := limiter.CheckAndRecord(first, base.Add(time.Second)); decision.Allowed {
		t.Fatalf("expected first visitor to be throttled")
	}
	if decision := limiter.CheckAndRecord(second, base.Add(time.Second)); !decision.Allowed {
		t.Fatalf("expected second visitor to be unaffected")
	}
}

func TestSubmissionLimiterRetryAfterRoundsUp(t *testing.T) {
	limiter := NewSubmissionLimiter()
	visitor := mustVisitorID(t, "visitor-1")
	base := time.Unix(1700000000, 0).UTC()

	limiter.CheckAndRecord(visitor, base)
	limiter.CheckAndRecord(visitor, base)

	decision := limiter.CheckAndRecord(visitor, base.Add(2900*time.Millisecond))
	if decision.Allowed {
		t.Fatalf("expected throttle just before the window closes")
	}
	if decision.RetryAfterSeconds != 1 {
		t.Fatalf("expected 100ms remainder to round up to 1 second, got %d", decision.RetryAfterSeconds)
	}
}
