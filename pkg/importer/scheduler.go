package importer

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Scheduler periodically runs incremental imports in the background.
type Scheduler interface {
	Start(ctx context.Context) error
	Stop() error
	// LastSummary returns the summary of the most recent completed pass.
	LastSummary() *Summary
}

// Compile-time interface check.
var _ Scheduler = (*scheduler)(nil)

type scheduler struct {
	log      logrus.FieldLogger
	importer *Importer
	interval time.Duration
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	mu   sync.Mutex
	last *Summary
}

// NewScheduler creates a Scheduler running im every interval. Passes never
// overlap; a pass that outlasts the interval delays the next one.
func NewScheduler(
	log logrus.FieldLogger, im *Importer, interval time.Duration,
) Scheduler {
	return &scheduler{
		log:      log.WithField("component", "scheduler"),
		importer: im,
		interval: interval,
		done:     make(chan struct{}),
	}
}

// Start runs one pass immediately and then ticks at the configured
// interval, all on a background goroutine.
func (s *scheduler) Start(ctx context.Context) error {
	s.log.WithField("interval", s.interval.String()).
		Info("Starting import scheduler")

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.runPass(ctx)

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				s.runPass(ctx)
			case <-s.done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Stop signals the scheduler goroutine to stop and waits for the current
// pass to finish. Calls after the first are no-ops.
func (s *scheduler) Stop() error {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()

		s.log.Info("Import scheduler stopped")
	})

	return nil
}

func (s *scheduler) LastSummary() *Summary {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

func (s *scheduler) runPass(ctx context.Context) {
	select {
	case <-s.done:
		return
	default:
	}

	sum, err := s.importer.Run(ctx, false)
	if err != nil {
		s.log.WithError(err).Warn("Scheduled import failed")

		return
	}

	s.mu.Lock()
	s.last = sum
	s.mu.Unlock()
}
