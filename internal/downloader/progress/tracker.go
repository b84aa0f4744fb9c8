package progress

import (
	"context"
	"log/slog"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/italolelis/mocap_installer/internal/logctx"
)

type entry struct {
	name    string
	total   int64
	lastLog int64
}

// LogTracker is a transfer.ProgressSink that writes progress to the context logger
// every step bytes. It never blocks the caller on anything but a mutex.
type LogTracker struct {
	logger *slog.Logger
	step   int64

	mu      sync.Mutex
	entries map[string]*entry
}

// NewLogTracker creates a tracker logging every step bytes; step <= 0 logs only
// start and finish.
func NewLogTracker(ctx context.Context, step int64) *LogTracker {
	return &LogTracker{
		logger:  logctx.LoggerFromContext(ctx),
		step:    step,
		entries: make(map[string]*entry),
	}
}

func (t *LogTracker) Start(id, name string, total int64) {
	t.mu.Lock()
	t.entries[id] = &entry{name: name, total: total}
	t.mu.Unlock()

	t.logger.Debug("progress started", "id", id, "name", name, "total", humanize.Bytes(uint64(max(total, 0))))
}

func (t *LogTracker) Update(id string, completed, total int64) {
	t.mu.Lock()

	e, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()

		return
	}

	if total > 0 {
		e.total = total
	}

	due := t.step > 0 && completed-e.lastLog >= t.step
	if due {
		e.lastLog = completed
	}

	name, known := e.name, e.total
	t.mu.Unlock()

	if !due {
		return
	}

	if known > 0 {
		t.logger.Info("progress",
			"name", name,
			"completed", humanize.Bytes(uint64(completed)),
			"total", humanize.Bytes(uint64(known)),
			"percent", humanize.FtoaWithDigits(float64(completed)*100/float64(known), 2))

		return
	}

	t.logger.Info("progress", "name", name, "completed", humanize.Bytes(uint64(completed)))
}

func (t *LogTracker) Done(id string) {
	t.mu.Lock()
	e, ok := t.entries[id]
	delete(t.entries, id)
	t.mu.Unlock()

	if ok {
		t.logger.Debug("progress finished", "id", id, "name", e.name)
	}
}

// Active returns the number of entries started but not yet done.
func (t *LogTracker) Active() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.entries)
}
