package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GrantSweeper deletes expired grants
type GrantSweeper interface {
	SweepExpired(ctx context.Context, now time.Time) (int, error)
}

// ExpirySweeper periodically removes expired grants. Expired grants are
// already ignored by permission checks; sweeping only reclaims storage.
type ExpirySweeper struct {
	sweeper  GrantSweeper
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewExpirySweeper creates a sweeper running every interval
func NewExpirySweeper(sweeper GrantSweeper, interval time.Duration, logger *zap.Logger) *ExpirySweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ExpirySweeper{
		sweeper:  sweeper,
		interval: interval,
		now:      time.Now,
		logger:   logger,
	}
}

// Name returns the worker name for identification
func (s *ExpirySweeper) Name() string {
	return "ExpirySweeper"
}

// Start launches the sweep loop; the first sweep runs immediately
func (s *ExpirySweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("expiry sweeper is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("ExpirySweeper started", zap.Duration("interval", s.interval))

	go s.loop(runCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (s *ExpirySweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.cancel()
	done := s.done
	s.mu.Unlock()

	<-done
	s.logger.Info("ExpirySweeper stopped")
	return nil
}

func (s *ExpirySweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

// SweepOnce runs one sweep and returns the number of grants removed
func (s *ExpirySweeper) SweepOnce(ctx context.Context) (int, error) {
	return s.sweeper.SweepExpired(ctx, s.now())
}

func (s *ExpirySweeper) sweep(ctx context.Context) {
	n, err := s.SweepOnce(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("Expired grant sweep failed", zap.Error(err))
		}
		return
	}
	if n > 0 {
		s.logger.Info("Expired grants swept", zap.Int("count", n))
	}
}
