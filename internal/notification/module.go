// Package notification turns workflow events into emails for the people who
// own the lead. Domain modules publish events and never talk to mail
// providers directly.
package notification

import (
	"context"
	"fmt"
	"strings"

	"leadflow_backend/internal/email"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// EmailQueue hands an email to a background worker.
type EmailQueue interface {
	EnqueueEmail(ctx context.Context, msg email.Message) error
}

// Module handles the workflow event subscriptions.
type Module struct {
	sender email.Sender
	queue  EmailQueue
	cfg    config.EmailConfig
	log    *logger.Logger
}

// New creates a new notification module. Without a queue, emails are sent
// from the event handler itself.
func New(sender email.Sender, cfg config.EmailConfig, log *logger.Logger) *Module {
	if sender == nil {
		sender = email.NoopSender{}
	}
	return &Module{sender: sender, cfg: cfg, log: log}
}

// SetEmailQueue routes deliveries through a background queue.
func (m *Module) SetEmailQueue(q EmailQueue) { m.queue = q }

// Name returns the module identifier.
func (m *Module) Name() string { return "notification" }

// RegisterHandlers subscribes the module to every workflow event that sends mail.
func (m *Module) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.WorkflowAssigned{}.EventName(), m)
	bus.Subscribe(events.ReminderIssued{}.EventName(), m)
	bus.Subscribe(events.WorkflowEscalated{}.EventName(), m)
	bus.Subscribe(events.WorkflowSentBack{}.EventName(), m)
	bus.Subscribe(events.WorkflowReassigned{}.EventName(), m)
}

// Handle implements events.Handler.
func (m *Module) Handle(ctx context.Context, event events.Event) error {
	var (
		kind   email.Kind
		leadID string
		msg    events.Message
	)
	switch e := event.(type) {
	case events.WorkflowAssigned:
		kind, leadID, msg = email.KindAssignment, e.LeadID, e.Message
	case events.ReminderIssued:
		kind, leadID, msg = email.KindReminder, e.LeadID, e.Message
	case events.WorkflowEscalated:
		kind, leadID, msg = email.KindEscalation, e.LeadID, e.Message
	case events.WorkflowSentBack:
		kind, leadID, msg = email.KindSentBack, e.LeadID, e.Message
	case events.WorkflowReassigned:
		kind, leadID, msg = email.KindReassignment, e.LeadID, e.Message
	default:
		return nil
	}

	out, ok := m.buildMessage(kind, leadID, msg)
	if !ok {
		m.log.WithContext(ctx).Debug("notification skipped: no deliverable recipient",
			"event", event.EventName(), "leadId", leadID, "recipient", msg.RecipientID)
		return nil
	}
	return m.deliver(ctx, out)
}

func (m *Module) buildMessage(kind email.Kind, leadID string, msg events.Message) (email.Message, bool) {
	to, ok := m.addressFor(msg.RecipientID)
	if !ok {
		return email.Message{}, false
	}

	cc := make([]string, 0, len(msg.CcIDs))
	for _, id := range msg.CcIDs {
		if addr, ok := m.addressFor(id); ok && addr != to {
			cc = append(cc, addr)
		}
	}

	return email.Message{
		Kind:    kind,
		LeadID:  leadID,
		To:      to,
		Cc:      cc,
		Subject: msg.Subject,
		Body:    msg.Body,
		LeadURL: m.leadURL(leadID),
	}, true
}

func (m *Module) deliver(ctx context.Context, msg email.Message) error {
	log := m.log.WithContext(ctx).WithLead(msg.LeadID)
	if m.queue != nil {
		err := m.queue.EnqueueEmail(ctx, msg)
		if err == nil {
			return nil
		}
		log.Warn("email enqueue failed, sending inline", "kind", msg.Kind, "error", err)
	}

	if err := m.sender.SendWorkflowEmail(ctx, msg); err != nil {
		return fmt.Errorf("send %s email for lead %s: %w", msg.Kind, msg.LeadID, err)
	}
	log.Info("workflow email sent", "kind", msg.Kind, "to", msg.To, "cc", len(msg.Cc))
	return nil
}

// addressFor maps an identity to its mailbox. System actors and the
// unassigned placeholder have no mailbox.
func (m *Module) addressFor(id string) (string, bool) {
	id = strings.TrimSpace(id)
	if id == "" || id == domain.SystemActorID || id == domain.UnassignedID {
		return "", false
	}
	if strings.Contains(id, "@") {
		return id, true
	}
	domainName := strings.TrimPrefix(strings.TrimSpace(m.cfg.GetEmailIdentityDomain()), "@")
	if domainName == "" {
		return "", false
	}
	return id + "@" + domainName, true
}

func (m *Module) leadURL(leadID string) string {
	base := strings.TrimRight(m.cfg.GetAppBaseURL(), "/")
	if base == "" || leadID == "" {
		return ""
	}
	return base + "/leads/" + leadID
}
