package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/platform/logger"
)

type testEmailConfig struct {
	identityDomain string
}

func (testEmailConfig) GetEmailEnabled() bool            { return true }
func (testEmailConfig) GetSMTPHost() string              { return "smtp.example.com" }
func (testEmailConfig) GetSMTPPort() int                 { return 587 }
func (testEmailConfig) GetSMTPUsername() string          { return "" }
func (testEmailConfig) GetSMTPPassword() string          { return "" }
func (testEmailConfig) GetEmailFromName() string         { return "Lead Desk" }
func (testEmailConfig) GetEmailFromAddress() string      { return "leads@example.com" }
func (c testEmailConfig) GetEmailIdentityDomain() string { return c.identityDomain }
func (testEmailConfig) GetAppBaseURL() string            { return "https://app.example.com/" }

type testSender struct {
	mu   sync.Mutex
	sent []email.Message
	err  error
}

func (s *testSender) SendWorkflowEmail(_ context.Context, msg email.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

type testQueue struct {
	queued []email.Message
	err    error
}

func (q *testQueue) EnqueueEmail(_ context.Context, msg email.Message) error {
	if q.err != nil {
		return q.err
	}
	q.queued = append(q.queued, msg)
	return nil
}

var testTime = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestModule(sender email.Sender) (*Module, *events.InMemoryBus) {
	bus := events.NewInMemoryBus(logger.Discard())
	m := New(sender, testEmailConfig{identityDomain: "corp.example.com"}, logger.Discard())
	m.RegisterHandlers(bus)
	return m, bus
}

func TestEscalationEmailAddressesRMAndCopiesPSM(t *testing.T) {
	sender := &testSender{}
	_, bus := newTestModule(sender)

	err := bus.PublishSync(context.Background(), events.WorkflowEscalated{
		BaseEvent: events.NewBaseEvent(testTime),
		LeadID:    "L-7",
		Level:     1,
		Stage:     string(domain.StageEscalation1),
		Message: events.Message{
			RecipientID: "R1",
			CcIDs:       []string{"P1", domain.SystemActorID, "R1"},
			Subject:     "Escalation level 1: L-7",
			Body:        "no progress",
		},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected one email, got %d", len(sender.sent))
	}
	msg := sender.sent[0]
	if msg.Kind != email.KindEscalation || msg.To != "R1@corp.example.com" {
		t.Fatalf("unexpected message %+v", msg)
	}
	if len(msg.Cc) != 1 || msg.Cc[0] != "P1@corp.example.com" {
		t.Fatalf("expected only the PSM on cc, got %v", msg.Cc)
	}
	if msg.LeadURL != "https://app.example.com/leads/L-7" {
		t.Fatalf("unexpected lead url %q", msg.LeadURL)
	}
}

func TestQueueIsPreferredOverInlineSend(t *testing.T) {
	sender := &testSender{}
	queue := &testQueue{}
	m, bus := newTestModule(sender)
	m.SetEmailQueue(queue)

	err := bus.PublishSync(context.Background(), events.WorkflowAssigned{
		BaseEvent: events.NewBaseEvent(testTime),
		LeadID:    "L-1",
		RMID:      "R1",
		PSMID:     "P1",
		Message:   events.Message{RecipientID: "R1", Subject: "New lead assigned: L-1"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(queue.queued) != 1 || len(sender.sent) != 0 {
		t.Fatalf("expected queued delivery, got queued=%d sent=%d", len(queue.queued), len(sender.sent))
	}
}

func TestQueueFailureFallsBackToInlineSend(t *testing.T) {
	sender := &testSender{}
	m, bus := newTestModule(sender)
	m.SetEmailQueue(&testQueue{err: errors.New("redis down")})

	err := bus.PublishSync(context.Background(), events.ReminderIssued{
		BaseEvent: events.NewBaseEvent(testTime),
		LeadID:    "L-2",
		Message:   events.Message{RecipientID: "R1"},
	})
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if len(sender.sent) != 1 || sender.sent[0].Kind != email.KindReminder {
		t.Fatalf("expected inline reminder, got %+v", sender.sent)
	}
}

func TestUndeliverableRecipientsAreSkipped(t *testing.T) {
	tests := []struct {
		name      string
		domain    string
		recipient string
	}{
		{"system actor", "corp.example.com", domain.SystemActorID},
		{"unassigned", "corp.example.com", domain.UnassignedID},
		{"no identity domain", "", "R1"},
	}

	for _, tc := range tests {
		sender := &testSender{}
		m := New(sender, testEmailConfig{identityDomain: tc.domain}, logger.Discard())
		err := m.Handle(context.Background(), events.WorkflowReassigned{
			BaseEvent: events.NewBaseEvent(testTime),
			LeadID:    "L-3",
			Message:   events.Message{RecipientID: tc.recipient},
		})
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if len(sender.sent) != 0 {
			t.Errorf("%s: expected no email, got %d", tc.name, len(sender.sent))
		}
	}
}

func TestSendFailureIsReturned(t *testing.T) {
	boom := errors.New("smtp down")
	m := New(&testSender{err: boom}, testEmailConfig{identityDomain: "corp.example.com"}, logger.Discard())
	err := m.Handle(context.Background(), events.WorkflowSentBack{
		BaseEvent: events.NewBaseEvent(testTime),
		LeadID:    "L-4",
		PSMID:     "P1",
		Message:   events.Message{RecipientID: "R1", Body: "please call again"},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}
}

func TestFullAddressIdentityIsUsedAsIs(t *testing.T) {
	m := New(nil, testEmailConfig{}, logger.Discard())
	addr, ok := m.addressFor("rm.jansen@partner.example.org")
	if !ok || addr != "rm.jansen@partner.example.org" {
		t.Fatalf("unexpected address %q %v", addr, ok)
	}
}
