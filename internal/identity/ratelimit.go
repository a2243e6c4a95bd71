package identity

import (
	"sync"
	"time"
)

const (
	defaultWindowSize   = 3 * time.Second
	defaultMaxPerWindow = 2
)

// Decision reports whether a submission may proceed.
type Decision struct {
	Allowed           bool
	RetryAfterSeconds int
}

type window struct {
	startedAt time.Time
	count     int
}

// SubmissionLimiter bounds how frequently one visitor identity may submit
// messages: at most maxPerWindow submissions within any rolling windowSize.
// State is held server-side per visitor so a modified client cannot bypass it.
type SubmissionLimiter struct {
	mu           sync.Mutex
	windows      map[VisitorID]window
	windowSize   time.Duration
	maxPerWindow int
}

// NewSubmissionLimiter constructs a limiter with the default policy
// (2 submissions per rolling 3 second window).
func NewSubmissionLimiter() *SubmissionLimiter {
	return &SubmissionLimiter{
		windows:      make(map[VisitorID]window),
		windowSize:   defaultWindowSize,
		maxPerWindow: defaultMaxPerWindow,
	}
}

// CheckAndRecord evaluates a submission attempt by visitorID at the given
// instant. An allowed attempt is recorded against the visitor's window;
// a rejected attempt reports how long until the window reopens.
func (l *SubmissionLimiter) CheckAndRecord(visitorID VisitorID, now time.Time) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, seen := l.windows[visitorID]
	elapsed := now.Sub(state.startedAt)
	if !seen || elapsed >= l.windowSize {
		l.windows[visitorID] = window{startedAt: now, count: 1}
		return Decision{Allowed: true}
	}
	if state.count < l.maxPerWindow {
		state.count++
		l.windows[visitorID] = state
		return Decision{Allowed: true}
	}

	remaining := l.windowSize - elapsed
	retryAfter := int((remaining + time.Second - 1) / time.Second)
	return Decision{Allowed: false, RetryAfterSeconds: retryAfter}
}

// Reset forgets all recorded windows.
func (l *SubmissionLimiter) Reset() {
	l.mu.Lock()
	l.windows = make(map[VisitorID]window)
	l.mu.Unlock()
}
