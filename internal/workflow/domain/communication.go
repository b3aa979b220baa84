package domain

import (
	"time"

	"github.com/google/uuid"
)

// CommunicationType classifies a ledger entry.
type CommunicationType string

const (
	CommAssignmentEmail  CommunicationType = "assignment_email"
	CommRMReply          CommunicationType = "rm_reply"
	CommSystemReminder   CommunicationType = "system_reminder"
	CommSystemEscalation CommunicationType = "system_escalation"
	CommPSMReassign      CommunicationType = "psm_reassign"
	CommPSMDrop          CommunicationType = "psm_drop"
	CommPSMSendBack      CommunicationType = "psm_send_back"
	CommPSMClose         CommunicationType = "psm_close"
	CommStageUpdate      CommunicationType = "stage_update"
	CommAIAssessment     CommunicationType = "ai_assessment"
	CommNote             CommunicationType = "note"
)

// SenderType identifies who authored a ledger entry.
type SenderType string

const (
	SenderSystem SenderType = "System"
	SenderRM     SenderType = "RM"
	SenderPSM    SenderType = "PSM"
	SenderUser   SenderType = "User"
)

// ParseSenderType validates a sender type from the API or storage.
func ParseSenderType(raw string) (SenderType, bool) {
	switch SenderType(raw) {
	case SenderSystem, SenderRM, SenderPSM, SenderUser:
		return SenderType(raw), true
	}
	return "", false
}

// Attachment is a reference to a stored file. The engine never reads the
// content.
type Attachment struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
	Type string `json:"type,omitempty"`
	URL  string `json:"url"`
}

// CommunicationRecord is one immutable ledger entry. Seq orders entries that
// share a timestamp and is assigned by storage.
type CommunicationRecord struct {
	ID                     uuid.UUID
	Seq                    int64
	LeadID                 string
	OccurredAt             time.Time
	Type                   CommunicationType
	Title                  string
	Body                   string
	SenderType             SenderType
	SenderID               string
	RecipientID            string
	CcIDs                  []string
	AISummary              string
	AIDecision             Decision
	AITokensConsumed       int
	Attachments            []Attachment
	RelatedWorkflowStateID uuid.UUID
}

func newEntry(s WorkflowState, now time.Time, kind CommunicationType, sender SenderType, senderID string) CommunicationRecord {
	return CommunicationRecord{
		ID:                     uuid.New(),
		LeadID:                 s.LeadID,
		OccurredAt:             now,
		Type:                   kind,
		SenderType:             sender,
		SenderID:               senderID,
		RelatedWorkflowStateID: s.ID,
	}
}
