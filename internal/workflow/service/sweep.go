package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/platform/apperr"

	"golang.org/x/sync/errgroup"
)

// Sweep triggers, used in logs and metrics.
const (
	TriggerSchedule = "schedule"
	TriggerManual   = "manual"
	TriggerTask     = "task"
)

// SweepResult aggregates one sweep run.
type SweepResult struct {
	Processed  int
	Reminded   int
	Escalated  int
	Errors     int
	Stopped    bool
	StartedAt  time.Time
	FinishedAt time.Time
}

type sweepCounters struct {
	mu  sync.Mutex
	res SweepResult
}

func (c *sweepCounters) add(kind domain.ActionKind, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.res.Processed++
	switch {
	case err != nil:
		c.res.Errors++
	case kind == domain.ActionRemind:
		c.res.Reminded++
	case kind == domain.ActionEscalate:
		c.res.Escalated++
	}
}

// RunEscalationSweep evaluates every active workflow once and applies any
// reminder or escalation that is due. A failure on one lead is logged and
// counted without stopping the others. Cancelling ctx stops the sweep between
// leads; a lead already being processed is finished first.
func (s *Service) RunEscalationSweep(ctx context.Context, trigger string) (SweepResult, error) {
	if !s.sweepMu.TryLock() {
		return SweepResult{}, apperr.Conflict(ErrSweepInProgress.Error()).WithOp(opSweep)
	}
	defer s.sweepMu.Unlock()

	if s.guard != nil {
		release, err := s.guard.Acquire(ctx)
		if errors.Is(err, ErrSweepInProgress) {
			return SweepResult{}, apperr.Conflict(err.Error()).WithOp(opSweep)
		}
		if err != nil {
			return SweepResult{}, apperr.Persistence(opSweep, err)
		}
		defer release()
	}

	log := s.log.WithContext(ctx)
	counters := &sweepCounters{res: SweepResult{StartedAt: s.clock.Now()}}
	started := time.Now()

	states, err := s.repo.ListActive(ctx)
	if err != nil {
		s.metrics.recordSweep(ctx, trigger, "failed", time.Since(started))
		return SweepResult{}, s.translate(opSweep, err)
	}

	stopped := false
	g := new(errgroup.Group)
	g.SetLimit(s.sweepConcurrency)
	for _, state := range states {
		if ctx.Err() != nil {
			stopped = true
			break
		}
		leadID := state.LeadID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			kind, err := s.sweepLead(ctx, leadID)
			if err != nil {
				log.WithLead(leadID).Error("escalation sweep failed for lead", "error", err)
				s.metrics.recordSweepLead(ctx, "error")
			} else {
				s.metrics.recordSweepLead(ctx, string(kind))
			}
			counters.add(kind, err)
			return nil
		})
	}
	_ = g.Wait()

	res := counters.res
	res.Stopped = stopped || res.Processed < len(states)
	res.FinishedAt = s.clock.Now()
	took := time.Since(started)

	outcome := "completed"
	if res.Stopped {
		outcome = "stopped"
	}
	s.metrics.recordSweep(ctx, trigger, outcome, took)
	log.SweepCompleted(trigger, res.Processed, res.Reminded, res.Escalated, res.Errors, took)
	return res, nil
}

// sweepLead re-reads one workflow under its lock and applies the evaluator's
// decision. The caller's cancellation is detached so a stop never lands
// mid-mutation; the lead timeout still bounds the work.
func (s *Service) sweepLead(ctx context.Context, leadID string) (domain.ActionKind, error) {
	leadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.leadTimeout)
	defer cancel()

	var (
		action domain.Action
		res    Result
		from   domain.Stage
	)
	err := s.repo.WithinLeadTx(leadCtx, leadID, func(tx repository.LeadTx) error {
		current, err := tx.Get(leadCtx)
		if err != nil {
			return err
		}
		now := s.clock.Now()
		action, err = domain.Evaluate(current, now, s.policy)
		if err != nil || action.Kind == domain.ActionNone {
			return err
		}
		from = current.CurrentStage
		res, err = s.applyIntent(leadCtx, tx, current, action.Intent, now)
		return err
	})
	if err != nil {
		return domain.ActionNone, s.translate(opSweepLead, err)
	}
	if action.Kind != domain.ActionNone {
		s.afterCommit(leadCtx, action.Intent, from, res)
	}
	return action.Kind, nil
}
