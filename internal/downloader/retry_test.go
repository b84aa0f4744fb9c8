package downloader

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryState_BoundedWithoutProgress(t *testing.T) {
	state := NewRetryState(3, time.Second)

	attempts := 0
	for !state.Exhausted() {
		attempts++
		assert.False(t, state.Attempt(0))
	}

	assert.Equal(t, 3, attempts)
}

func TestRetryState_ProgressResetsBudget(t *testing.T) {
	tests := []struct {
		name          string
		progress      []int64
		wantRemaining []int
	}{
		{
			name:          "every attempt moves more than the threshold",
			progress:      []int64{2048, 4096, 8192, 16384},
			wantRemaining: []int{3, 3, 3, 3},
		},
		{
			name:          "jitter below the threshold decrements",
			progress:      []int64{2048, 2560, 3072, 3584},
			wantRemaining: []int{3, 2, 1, 3},
		},
		{
			name:          "exactly the threshold is not progress",
			progress:      []int64{1024, 2048},
			wantRemaining: []int{2, 3},
		},
		{
			name:          "a restarted non-resumable attempt does not count",
			progress:      []int64{4096, 2048, 0},
			wantRemaining: []int{3, 2, 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewRetryState(3, time.Second)

			for i, p := range tt.progress {
				state.Attempt(p)
				assert.Equal(t, tt.wantRemaining[i], state.Remaining, "after attempt %d", i+1)
			}
		})
	}
}

func TestNewRetryState_Defaults(t *testing.T) {
	state := NewRetryState(0, DefaultRetryWait)

	assert.Equal(t, DefaultMaxAttempts, state.Max)
	assert.Equal(t, DefaultMaxAttempts, state.Remaining)
	assert.Equal(t, int64(DefaultProgressThreshold), state.Threshold)
}
