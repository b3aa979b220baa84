// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// InMemoryBus is the process-local Bus used by every binary.
type InMemoryBus = events.InMemoryBus

// Re-export platform functions
var NewBaseEvent = events.NewBaseEvent

// NewInMemoryBus creates the process-local bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// Message is the outbound communication an event asks to deliver. It mirrors
// the ledger entry written with the transition.
type Message struct {
	CommunicationID uuid.UUID `json:"communicationId"`
	RecipientID     string    `json:"recipientId"`
	CcIDs           []string  `json:"ccIds,omitempty"`
	Subject         string    `json:"subject"`
	Body            string    `json:"body"`
}

// =============================================================================
// Workflow Domain Events
// =============================================================================

// WorkflowAssigned is published when a new lead is assigned to an RM.
type WorkflowAssigned struct {
	BaseEvent
	WorkflowID uuid.UUID `json:"workflowId"`
	LeadID     string    `json:"leadId"`
	RMID       string    `json:"rmId"`
	PSMID      string    `json:"psmId"`
	Message    Message   `json:"message"`
}

func (e WorkflowAssigned) EventName() string { return "workflow.assigned" }

// ReminderIssued is published when the sweep reminds an RM before escalation.
type ReminderIssued struct {
	BaseEvent
	WorkflowID uuid.UUID `json:"workflowId"`
	LeadID     string    `json:"leadId"`
	Message    Message   `json:"message"`
}

func (e ReminderIssued) EventName() string { return "workflow.reminder.issued" }

// WorkflowEscalated is published when the sweep raises a lead's escalation level.
type WorkflowEscalated struct {
	BaseEvent
	WorkflowID uuid.UUID `json:"workflowId"`
	LeadID     string    `json:"leadId"`
	Level      int       `json:"level"`
	Stage      string    `json:"stage"`
	Message    Message   `json:"message"`
}

func (e WorkflowEscalated) EventName() string { return "workflow.escalated" }

// WorkflowSentBack is published when a PSM returns a lead to its RM with a note.
type WorkflowSentBack struct {
	BaseEvent
	WorkflowID uuid.UUID `json:"workflowId"`
	LeadID     string    `json:"leadId"`
	PSMID      string    `json:"psmId"`
	Message    Message   `json:"message"`
}

func (e WorkflowSentBack) EventName() string { return "workflow.sent_back" }

// WorkflowReassigned is published when a lead goes back to an RM after a PSM
// reassignment or an admin review.
type WorkflowReassigned struct {
	BaseEvent
	WorkflowID uuid.UUID `json:"workflowId"`
	LeadID     string    `json:"leadId"`
	ActorID    string    `json:"actorId"`
	Message    Message   `json:"message"`
}

func (e WorkflowReassigned) EventName() string { return "workflow.reassigned" }
