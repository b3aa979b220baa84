package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/logger"
)

var errSweeperRunning = errors.New("sweeper already started")

// Sweeper runs the escalation sweep once at start and then on every interval.
type Sweeper struct {
	runner   SweepRunner
	clock    clock.Clock
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(runner SweepRunner, clk clock.Clock, interval time.Duration, log *logger.Logger) *Sweeper {
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		runner:   runner,
		clock:    clk,
		interval: interval,
		log:      log,
	}
}

// Start launches the sweep loop. The loop ends when ctx is cancelled or Stop
// is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errSweeperRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	ticker := s.clock.NewTicker(s.interval)
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx, ticker, s.done)
	s.log.Info("escalation sweeper started", "interval", s.interval.String())
	return nil
}

// Stop cancels the loop and waits for it to exit. A sweep in progress
// finishes the lead it is working on and then stops.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if done == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("escalation sweeper stopped")
}

func (s *Sweeper) loop(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	s.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	res, err := s.runner.RunEscalationSweep(ctx, service.TriggerSchedule)
	switch {
	case apperr.Is(err, apperr.KindConflict):
		s.log.Info("scheduled sweep skipped, another sweep is running")
	case err != nil:
		s.log.Warn("scheduled sweep failed", "error", err)
	case res.Stopped:
		s.log.Info("scheduled sweep interrupted", "processed", res.Processed)
	}
}
