package downloader

import (
	"context"
	"sync"

	"github.com/italolelis/mocap_installer/internal/telemetry"
	"golang.org/x/sync/semaphore"
)

const DefaultMaxParallel = 2

// Gate bounds how many artifact resolutions run at once. A slot is held for a whole
// resolution including its retries, not per daemon job. Waiters are admitted in FIFO
// order.
type Gate struct {
	sem       *semaphore.Weighted
	wg        sync.WaitGroup
	telemetry *telemetry.Telemetry

	mu     sync.Mutex
	active int
	peak   int
}

func NewGate(size int, tel *telemetry.Telemetry) *Gate {
	if size <= 0 {
		size = DefaultMaxParallel
	}

	return &Gate{sem: semaphore.NewWeighted(int64(size)), telemetry: tel}
}

// Slot is one admission into the gate.
type Slot struct {
	gate *Gate
	ctx  context.Context
	once sync.Once
}

// Release gives the slot back. It is safe to call more than once.
func (s *Slot) Release() {
	s.once.Do(func() {
		s.gate.leave(s.ctx)
		s.gate.sem.Release(1)
	})
}

// Acquire blocks until a slot is free or ctx is done.
func (g *Gate) Acquire(ctx context.Context) (*Slot, error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	g.enter(ctx)

	return &Slot{gate: g, ctx: context.WithoutCancel(ctx)}, nil
}

// Go waits for a slot and runs fn in a new goroutine that holds it until fn returns.
// It returns ctx's error, without running fn, when ctx ends before admission.
func (g *Gate) Go(ctx context.Context, fn func(ctx context.Context)) error {
	g.wg.Add(1)

	slot, err := g.Acquire(ctx)
	if err != nil {
		g.wg.Done()

		return err
	}

	go func() {
		defer g.wg.Done()
		defer slot.Release()

		fn(ctx)
	}()

	return nil
}

// AwaitAll blocks until every run started with Go has returned, or ctx is done.
func (g *Gate) AwaitAll(ctx context.Context) error {
	done := make(chan struct{})

	go func() {
		g.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Active returns the number of slots currently held.
func (g *Gate) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.active
}

// Peak returns the highest number of slots ever held at once.
func (g *Gate) Peak() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.peak
}

func (g *Gate) enter(ctx context.Context) {
	g.mu.Lock()
	g.active++
	g.peak = max(g.peak, g.active)
	g.mu.Unlock()

	g.telemetry.AddGateSlots(ctx, 1)
}

func (g *Gate) leave(ctx context.Context) {
	g.mu.Lock()
	g.active--
	g.mu.Unlock()

	g.telemetry.AddGateSlots(ctx, -1)
}
