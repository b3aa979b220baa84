package domain

import "fmt"

// Intent is a request to move a workflow. Each concrete intent carries only
// the fields its transition needs.
type Intent interface {
	Name() string
	isIntent()
}

// Assign completes the assignment of a freshly created workflow.
type Assign struct{}

// RMReply records a reply from the RM, optionally classified.
type RMReply struct {
	RMID        string
	Text        string
	Assessment  *AIAssessment
	Attachments []Attachment
}

// PSMDecisionKind is the action a PSM takes on a lead.
type PSMDecisionKind string

const (
	PSMReassign     PSMDecisionKind = "reassign"
	PSMDrop         PSMDecisionKind = "drop"
	PSMClose        PSMDecisionKind = "close"
	PSMSendBackToRM PSMDecisionKind = "sendBackToRM"
)

// DefaultDropReason is recorded when a PSM drops a lead without a reason.
const DefaultDropReason = "Dropped by PSM"

// ParsePSMDecisionKind validates a decision name from the API.
func ParsePSMDecisionKind(raw string) (PSMDecisionKind, error) {
	switch PSMDecisionKind(raw) {
	case PSMReassign, PSMDrop, PSMClose, PSMSendBackToRM:
		return PSMDecisionKind(raw), nil
	}
	return "", fmt.Errorf("unknown PSM decision %q", raw)
}

// PSMDecision records a PSM action.
type PSMDecision struct {
	PSMID string
	Kind  PSMDecisionKind
	Note  string
}

// ResumeFromAdminReview returns a lead parked for admin review to an RM.
// An empty RMID hands it back to the RM it was assigned to.
type ResumeFromAdminReview struct {
	ReviewerID string
	RMID       string
	Note       string
}

// AssignToPSM hands a lead to the PSM for direct handling.
type AssignToPSM struct {
	ActorID string
	Note    string
}

// AddNote appends a free-form note without moving the workflow.
type AddNote struct {
	AuthorType SenderType
	AuthorID   string
	Body       string
}

// Remind sends the RM a reminder before the first escalation.
type Remind struct{}

// Escalate raises the escalation level by one.
type Escalate struct {
	ToLevel int
}

func (Assign) Name() string                { return "assign" }
func (RMReply) Name() string               { return "rm_reply" }
func (d PSMDecision) Name() string         { return "psm_" + string(d.Kind) }
func (ResumeFromAdminReview) Name() string { return "resume" }
func (AssignToPSM) Name() string           { return "assign_psm" }
func (AddNote) Name() string               { return "note" }
func (Remind) Name() string                { return "reminder" }
func (Escalate) Name() string              { return "escalate" }

func (Assign) isIntent()                {}
func (RMReply) isIntent()               {}
func (PSMDecision) isIntent()           {}
func (ResumeFromAdminReview) isIntent() {}
func (AssignToPSM) isIntent()           {}
func (AddNote) isIntent()               {}
func (Remind) isIntent()                {}
func (Escalate) isIntent()              {}
