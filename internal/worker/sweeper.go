package worker

import (
	"context"
	"log"
	"time"

	"github.com/makeasinger/fxgateway/internal/store"
)

// Sweeper periodically removes task records past their retention window
type Sweeper struct {
	store    store.TaskStore
	interval time.Duration
	now      func() time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(taskStore store.TaskStore, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &Sweeper{store: taskStore, interval: interval, now: time.Now}
}

// Run sweeps on every tick until ctx is cancelled
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Printf("[Sweeper] running every %s", s.interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce performs a single pass and returns the number of records removed
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	removed, err := s.store.Sweep(ctx, s.now())
	if err != nil {
		log.Printf("[Sweeper] sweep failed: %v", err)
		return 0
	}
	if removed > 0 {
		log.Printf("[Sweeper] removed %d expired tasks", removed)
	}
	return removed
}
