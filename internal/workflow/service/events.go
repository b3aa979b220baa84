package service

import (
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/workflow/domain"
)

// eventFor returns the notification event a committed transition raises, or
// nil when nobody needs to be told.
func eventFor(intent domain.Intent, res Result) events.Event {
	state, entry := res.State, res.Communication
	base := events.NewBaseEvent(entry.OccurredAt)
	msg := events.Message{
		CommunicationID: entry.ID,
		RecipientID:     entry.RecipientID,
		CcIDs:           entry.CcIDs,
		Subject:         entry.Title,
		Body:            entry.Body,
	}

	switch in := intent.(type) {
	case domain.Assign:
		return events.WorkflowAssigned{BaseEvent: base, WorkflowID: state.ID, LeadID: state.LeadID, RMID: state.RMID, PSMID: state.PSMID, Message: msg}
	case domain.Remind:
		return events.ReminderIssued{BaseEvent: base, WorkflowID: state.ID, LeadID: state.LeadID, Message: msg}
	case domain.Escalate:
		return events.WorkflowEscalated{BaseEvent: base, WorkflowID: state.ID, LeadID: state.LeadID, Level: state.EscalationLevel, Stage: string(state.CurrentStage), Message: msg}
	case domain.PSMDecision:
		switch in.Kind {
		case domain.PSMSendBackToRM:
			return events.WorkflowSentBack{BaseEvent: base, WorkflowID: state.ID, LeadID: state.LeadID, PSMID: entry.SenderID, Message: msg}
		case domain.PSMReassign:
			return events.WorkflowReassigned{BaseEvent: base, WorkflowID: state.ID, LeadID: state.LeadID, ActorID: entry.SenderID, Message: msg}
		}
	case domain.ResumeFromAdminReview, domain.AssignToPSM:
		return events.WorkflowReassigned{BaseEvent: base, WorkflowID: state.ID, LeadID: state.LeadID, ActorID: entry.SenderID, Message: msg}
	}
	return nil
}
