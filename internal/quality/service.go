package quality

import (
	"context"
	"log"
	"time"
)

// ServiceConfig tunes the background scoring loop.
type ServiceConfig struct {
	// Interval is the pause between scoring passes.
	Interval time.Duration

	// StartupDelay postpones the first pass so a fresh process does not
	// hammer the evaluator on boot.
	StartupDelay time.Duration

	// ErrorBackoff is the extra wait after a failed pass.
	ErrorBackoff time.Duration
}

// DefaultServiceConfig returns the production loop timing.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Interval:     30 * time.Minute,
		StartupDelay: 30 * time.Minute,
		ErrorBackoff: 60 * time.Second,
	}
}

// Service runs the scoring pipeline periodically over every owner.
type Service struct {
	pipeline *Pipeline
	owners   OwnerLister
	cfg      ServiceConfig

	cancel context.CancelFunc
	done   chan struct{}
}

// OwnerLister yields the owner IDs to score. The memory store satisfies it.
type OwnerLister interface {
	ListOwners(ctx context.Context) ([]string, error)
}

func NewService(pipeline *Pipeline, owners OwnerLister, cfg ServiceConfig) *Service {
	if cfg.Interval <= 0 {
		cfg = DefaultServiceConfig()
	}
	return &Service{pipeline: pipeline, owners: owners, cfg: cfg}
}

// Start launches the background loop.
func (s *Service) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		log.Printf("quality: service started, first pass in %s", s.cfg.StartupDelay)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.cfg.StartupDelay):
		}

		for {
			if err := s.runOnce(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				log.Printf("quality: pass failed: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(s.cfg.ErrorBackoff):
				}
				continue
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.cfg.Interval):
			}
		}
	}()
}

// Stop cancels the loop and waits for the in-flight pass to finish.
func (s *Service) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	<-s.done
}

func (s *Service) runOnce(ctx context.Context) error {
	owners, err := s.owners.ListOwners(ctx)
	if err != nil {
		return err
	}
	for _, owner := range owners {
		stats, err := s.pipeline.ScorePending(ctx, owner)
		if err != nil {
			return err
		}
		if stats.Processed > 0 {
			log.Printf("quality: owner %s: processed=%d cached=%d evaluated=%d failed=%d",
				owner, stats.Processed, stats.Cached, stats.Evaluated, stats.Failed)
		}
	}
	return nil
}
