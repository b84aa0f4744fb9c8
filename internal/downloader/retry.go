package downloader

import "time"

const (
	DefaultMaxAttempts       = 3
	DefaultRetryWait         = 15 * time.Second
	DefaultProgressThreshold = 1024
)

// RetryState is the retry budget of one request. Attempts that move the file forward
// by more than Threshold bytes refill the budget, so a flaky but progressing source
// is never starved while a dead one runs out after Max attempts.
type RetryState struct {
	Remaining    int
	Max          int
	Wait         time.Duration
	LastProgress int64
	Threshold    int64
}

func NewRetryState(maxAttempts int, wait time.Duration) *RetryState {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	return &RetryState{
		Remaining: maxAttempts,
		Max:       maxAttempts,
		Wait:      wait,
		Threshold: DefaultProgressThreshold,
	}
}

// Attempt records an unsuccessful attempt that left progress bytes on disk. It reports
// whether the budget was refilled.
func (s *RetryState) Attempt(progress int64) bool {
	if progress-s.LastProgress > s.Threshold {
		s.Remaining = s.Max
		s.LastProgress = progress

		return true
	}

	s.Remaining--

	return false
}

// Exhausted reports whether no attempts remain.
func (s *RetryState) Exhausted() bool {
	return s.Remaining <= 0
}
