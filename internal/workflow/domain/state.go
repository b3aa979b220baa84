package domain

import (
	"time"

	"github.com/google/uuid"
)

// WorkflowState is the live workflow record of one lead. RMID is the RM the
// lead was assigned to and survives PSM escalation so a reassignment or a
// send-back knows who to hand the lead back to.
type WorkflowState struct {
	ID                  uuid.UUID
	LeadID              string
	CurrentStage        Stage
	AssigneeType        AssigneeType
	AssigneeID          string
	RMID                string
	PSMID               string
	LastStageChangeAt   time.Time
	LastCommunicationAt time.Time
	NextFollowUpAt      *time.Time
	LastReminderAt      *time.Time
	EscalationLevel     int
	DroppedReason       string
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// NewWorkflowState builds the record created on assignment, before the
// assignment transition moves it on.
func NewWorkflowState(leadID, rmID, psmID string, now time.Time) WorkflowState {
	return WorkflowState{
		ID:                  uuid.New(),
		LeadID:              leadID,
		CurrentStage:        StageAssignmentEmailPending,
		AssigneeType:        AssigneeRM,
		AssigneeID:          rmID,
		RMID:                rmID,
		PSMID:               psmID,
		LastStageChangeAt:   now,
		LastCommunicationAt: now,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// Flag projects the current stage.
func (s WorkflowState) Flag() Flag {
	f, _ := FlagFor(s.CurrentStage)
	return f
}

// Patch is the set of field changes a transition makes. Nil fields are left
// untouched.
type Patch struct {
	Stage               *Stage
	AssigneeType        *AssigneeType
	AssigneeID          *string
	RMID                *string
	LastStageChangeAt   *time.Time
	LastCommunicationAt *time.Time
	NextFollowUpAt      *time.Time
	LastReminderAt      *time.Time
	EscalationLevel     *int
	DroppedReason       *string
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

// ApplyTo returns a copy of s with the patch applied. UpdatedAt is set to now
// when anything changed.
func (p Patch) ApplyTo(s WorkflowState, now time.Time) WorkflowState {
	if p.IsEmpty() {
		return s
	}
	if p.Stage != nil {
		s.CurrentStage = *p.Stage
	}
	if p.AssigneeType != nil {
		s.AssigneeType = *p.AssigneeType
	}
	if p.AssigneeID != nil {
		s.AssigneeID = *p.AssigneeID
	}
	if p.RMID != nil {
		s.RMID = *p.RMID
	}
	if p.LastStageChangeAt != nil {
		s.LastStageChangeAt = *p.LastStageChangeAt
	}
	if p.LastCommunicationAt != nil {
		s.LastCommunicationAt = *p.LastCommunicationAt
	}
	if p.NextFollowUpAt != nil {
		t := *p.NextFollowUpAt
		s.NextFollowUpAt = &t
	}
	if p.LastReminderAt != nil {
		t := *p.LastReminderAt
		s.LastReminderAt = &t
	}
	if p.EscalationLevel != nil {
		s.EscalationLevel = *p.EscalationLevel
	}
	if p.DroppedReason != nil {
		s.DroppedReason = *p.DroppedReason
	}
	s.UpdatedAt = now
	return s
}

func (p *Patch) moveTo(stage Stage, now time.Time) {
	p.Stage = &stage
	p.LastStageChangeAt = &now
}

func (p *Patch) assignTo(kind AssigneeType, id string) {
	p.AssigneeType = &kind
	p.AssigneeID = &id
}

func (p *Patch) followUpAt(t time.Time) {
	p.NextFollowUpAt = &t
}
