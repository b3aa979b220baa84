package scheduler

import (
	"context"
	"fmt"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// SweepRunner runs one escalation sweep.
type SweepRunner interface {
	RunEscalationSweep(ctx context.Context, trigger string) (service.SweepResult, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sweeps SweepRunner
	sender email.Sender
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sweeps SweepRunner, sender email.Sender, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server: server,
		mux:    mux,
		sweeps: sweeps,
		sender: sender,
		log:    log,
	}

	mux.HandleFunc(TaskWorkflowSweep, w.handleWorkflowSweep)
	mux.HandleFunc(TaskEmailSend, w.handleEmailSend)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (w *Worker) handleWorkflowSweep(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseWorkflowSweepPayload(task)
	if err != nil {
		return fmt.Errorf("parse sweep payload: %v: %w", err, asynq.SkipRetry)
	}

	res, err := w.sweeps.RunEscalationSweep(ctx, service.TriggerTask)
	if apperr.Is(err, apperr.KindConflict) {
		w.log.Info("queued sweep skipped, another sweep is running", "requestedBy", payload.RequestedBy)
		return nil
	}
	if err != nil {
		return err
	}

	w.log.Info("queued sweep finished",
		"requestedBy", payload.RequestedBy,
		"processed", res.Processed,
		"errors", res.Errors,
	)
	return nil
}

func (w *Worker) handleEmailSend(ctx context.Context, task *asynq.Task) error {
	msg, err := ParseEmailSendPayload(task)
	if err != nil {
		return fmt.Errorf("parse email payload: %v: %w", err, asynq.SkipRetry)
	}
	if w.sender == nil {
		return nil
	}
	return w.sender.SendWorkflowEmail(ctx, msg)
}
