package scheduler

import (
	"context"
	"errors"
	"testing"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

type captureSender struct {
	sent []email.Message
}

func (s *captureSender) SendWorkflowEmail(_ context.Context, msg email.Message) error {
	s.sent = append(s.sent, msg)
	return nil
}

func TestHandleWorkflowSweepUsesTaskTrigger(t *testing.T) {
	runner := newFakeRunner()
	w := &Worker{sweeps: runner, log: logger.Discard()}

	task, err := NewWorkflowSweepTask(WorkflowSweepPayload{RequestedBy: "P1"})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := w.handleWorkflowSweep(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if got := <-runner.calls; got != service.TriggerTask {
		t.Fatalf("expected task trigger, got %q", got)
	}
}

func TestHandleWorkflowSweepSwallowsConflict(t *testing.T) {
	runner := newFakeRunner()
	runner.err = apperr.Conflict("a sweep is already running")
	w := &Worker{sweeps: runner, log: logger.Discard()}

	task, _ := NewWorkflowSweepTask(WorkflowSweepPayload{})
	if err := w.handleWorkflowSweep(context.Background(), task); err != nil {
		t.Fatalf("expected conflict to be swallowed, got %v", err)
	}
}

func TestHandleEmailSendDeliversPayload(t *testing.T) {
	sender := &captureSender{}
	w := &Worker{sender: sender, log: logger.Discard()}

	task, err := NewEmailSendTask(email.Message{Kind: email.KindReminder, LeadID: "L-1", To: "r1@corp.example.com", Cc: []string{"p1@corp.example.com"}})
	if err != nil {
		t.Fatalf("new task: %v", err)
	}
	if err := w.handleEmailSend(context.Background(), task); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].To != "r1@corp.example.com" || len(sender.sent[0].Cc) != 1 {
		t.Fatalf("unexpected delivery %+v", sender.sent)
	}
}

func TestMalformedPayloadIsNotRetried(t *testing.T) {
	w := &Worker{sender: &captureSender{}, sweeps: newFakeRunner(), log: logger.Discard()}
	bad := asynq.NewTask(TaskEmailSend, []byte("{"))

	if err := w.handleEmailSend(context.Background(), bad); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
	if err := w.handleWorkflowSweep(context.Background(), asynq.NewTask(TaskWorkflowSweep, []byte("{"))); !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("expected SkipRetry, got %v", err)
	}
}
