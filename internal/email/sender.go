// Package email renders and delivers workflow notification mail.
package email

import (
	"context"
)

// Kind selects the heading and call to action of a workflow email.
type Kind string

const (
	KindAssignment   Kind = "assignment"
	KindReminder     Kind = "reminder"
	KindEscalation   Kind = "escalation"
	KindSentBack     Kind = "sent_back"
	KindReassignment Kind = "reassignment"
)

// Message is one workflow email ready to send.
type Message struct {
	Kind    Kind     `json:"kind"`
	LeadID  string   `json:"leadId"`
	To      string   `json:"to"`
	Cc      []string `json:"cc,omitempty"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
	LeadURL string   `json:"leadUrl,omitempty"`
}

type Sender interface {
	SendWorkflowEmail(ctx context.Context, msg Message) error
}

// NoopSender drops every message. It is used when email is disabled.
type NoopSender struct{}

func (NoopSender) SendWorkflowEmail(context.Context, Message) error {
	return nil
}
