package consolidation

import (
	"context"
	"log"
	"time"
)

// Scheduler runs consolidation passes on a fixed interval until stopped.
type Scheduler struct {
	consolidator *Consolidator
	interval     time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(c *Consolidator, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultConfig().Interval
	}
	return &Scheduler{consolidator: c, interval: interval}
}

// Start launches the background loop. The first pass runs after one full
// interval, not immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("consolidation: scheduler started, interval %s", s.interval)
		for {
			select {
			case <-ctx.Done():
				log.Printf("consolidation: scheduler stopped")
				return
			case <-ticker.C:
				reports, err := s.consolidator.RunAll(ctx)
				if err != nil {
					log.Printf("consolidation: pass failed: %v", err)
					continue
				}
				log.Printf("consolidation: pass complete, %d owners processed", len(reports))
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (s *Scheduler) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}
