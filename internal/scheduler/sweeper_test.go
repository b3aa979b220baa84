package scheduler

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/logger"
)

type fakeRunner struct {
	calls chan string
	block bool
	err   error
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{calls: make(chan string, 16)}
}

func (r *fakeRunner) RunEscalationSweep(ctx context.Context, trigger string) (service.SweepResult, error) {
	r.calls <- trigger
	if r.block {
		<-ctx.Done()
		return service.SweepResult{Stopped: true}, nil
	}
	return service.SweepResult{Processed: 1}, r.err
}

func expectCall(t *testing.T, r *fakeRunner) string {
	t.Helper()
	select {
	case trigger := <-r.calls:
		return trigger
	case <-time.After(2 * time.Second):
		t.Fatalf("expected a sweep to run")
		return ""
	}
}

func expectNoCall(t *testing.T, r *fakeRunner) {
	t.Helper()
	select {
	case <-r.calls:
		t.Fatalf("unexpected sweep")
	case <-time.After(50 * time.Millisecond):
	}
}

var testStart = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func TestSweeperRunsOnStartAndEveryInterval(t *testing.T) {
	clk := clock.NewFake(testStart)
	runner := newFakeRunner()
	s := NewSweeper(runner, clk, 24*time.Hour, logger.Discard())

	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := expectCall(t, runner); got != service.TriggerSchedule {
		t.Fatalf("expected schedule trigger, got %q", got)
	}

	clk.Advance(12 * time.Hour)
	expectNoCall(t, runner)

	clk.Advance(12 * time.Hour)
	expectCall(t, runner)

	clk.Advance(24 * time.Hour)
	expectCall(t, runner)

	s.Stop()
	if n := clk.Tickers(); n != 0 {
		t.Fatalf("expected ticker to be stopped, %d live", n)
	}
	clk.Advance(48 * time.Hour)
	expectNoCall(t, runner)
}

func TestSweeperStartTwiceFails(t *testing.T) {
	s := NewSweeper(newFakeRunner(), clock.NewFake(testStart), time.Hour, logger.Discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected second start to fail")
	}
}

func TestSweeperStopInterruptsRunningSweep(t *testing.T) {
	runner := newFakeRunner()
	runner.block = true
	s := NewSweeper(runner, clock.NewFake(testStart), time.Hour, logger.Discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	expectCall(t, runner)

	stopped := make(chan struct{})
	go func() {
		s.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return")
	}

	// Stop is idempotent.
	s.Stop()
}

func TestSweeperKeepsRunningAfterConflict(t *testing.T) {
	clk := clock.NewFake(testStart)
	runner := newFakeRunner()
	runner.err = apperr.Conflict("a sweep is already running")
	s := NewSweeper(runner, clk, time.Hour, logger.Discard())
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer s.Stop()

	expectCall(t, runner)
	clk.Advance(time.Hour)
	expectCall(t, runner)
}
