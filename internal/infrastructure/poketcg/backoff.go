package poketcg

import (
	"net/http"
	"time"
)

// RequestState tracks one resolution request through its retry lifecycle:
// PENDING -> (SUCCESS | RETRYABLE_FAILURE -> backoff -> PENDING | FATAL_FAILURE).
type RequestState int

const (
	StatePending RequestState = iota
	StateSuccess
	StateRetryableFailure
	StateFatalFailure
)

func (s RequestState) String() string {
	switch s {
	case StatePending:
		return "PENDING"
	case StateSuccess:
		return "SUCCESS"
	case StateRetryableFailure:
		return "RETRYABLE_FAILURE"
	case StateFatalFailure:
		return "FATAL_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// DefaultBackoffSchedule is the fixed escalating wait schedule applied
// between retryable failures. The schedule is pure data; exhausting it
// escalates to a fatal failure.
var DefaultBackoffSchedule = []time.Duration{
	200 * time.Millisecond,
	1 * time.Second,
	3 * time.Second,
}

// Backoff is the per-request finite-state machine. It owns no timers; the
// caller performs the waits it hands out, keeping all delays explicit on
// the calling path.
type Backoff struct {
	schedule []time.Duration
	attempt  int
	state    RequestState
}

// NewBackoff starts a request in PENDING with the given schedule.
func NewBackoff(schedule []time.Duration) *Backoff {
	if len(schedule) == 0 {
		schedule = DefaultBackoffSchedule
	}
	return &Backoff{schedule: schedule}
}

// State returns the current request state.
func (b *Backoff) State() RequestState { return b.state }

// Succeed marks the request complete.
func (b *Backoff) Succeed() { b.state = StateSuccess }

// Fail records a failure. For a retryable failure with schedule remaining it
// returns the wait to perform and moves the machine back to PENDING;
// otherwise it moves to FATAL_FAILURE and returns false.
func (b *Backoff) Fail(retryable bool) (time.Duration, bool) {
	if !retryable || b.attempt >= len(b.schedule) {
		b.state = StateFatalFailure
		return 0, false
	}
	delay := b.schedule[b.attempt]
	b.attempt++
	b.state = StatePending
	return delay, true
}

// Attempts returns how many retries have been consumed.
func (b *Backoff) Attempts() int { return b.attempt }

// retryableStatus reports whether an HTTP status is a transient failure:
// the rate-limit code or the server-error class.
func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}
