package agent

import "time"

// Backoff tracks reconnect state explicitly (attempt count, next-retry time)
// so retry policy is testable without sleeping.
type Backoff struct {
	interval time.Duration
	attempts int
	nextTry  time.Time
	now      func() time.Time
}

func NewBackoff(interval time.Duration) *Backoff {
	return &Backoff{interval: interval, now: time.Now}
}

// Failure records a failed attempt and pushes the next retry out by the
// backoff interval.
func (b *Backoff) Failure() {
	b.attempts++
	b.nextTry = b.now().Add(b.interval)
}

// Ready reports whether enough time has passed to try again.
func (b *Backoff) Ready() bool {
	return !b.now().Before(b.nextTry)
}

// Reset clears the failure state after a successful attempt.
func (b *Backoff) Reset() {
	b.attempts = 0
	b.nextTry = time.Time{}
}

// Attempts returns the number of consecutive failures so far.
func (b *Backoff) Attempts() int {
	return b.attempts
}
