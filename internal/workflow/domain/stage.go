// Package domain provides the core business rules for the lead workflow:
// stages, ownership, the transition rules and the escalation evaluator.
// Nothing in this package performs I/O.
package domain

import "fmt"

// Stage is a lead's position in the RM/PSM workflow.
type Stage string

const (
	StageAssignmentEmailPending   Stage = "AssignmentEmailPending"
	StageAwaitingRMReply          Stage = "AwaitingRMReply"
	StageReassignmentEmailPending Stage = "ReassignmentEmailPending"
	StageEscalation1              Stage = "Escalation1"
	StageEscalation2              Stage = "Escalation2"
	StagePSMReviewPending         Stage = "PSM_ReviewPending"
	StagePSMAssigned              Stage = "PSM_Assigned"
	StagePSMAwaitingAction        Stage = "PSM_AwaitingAction"
	StageAdminReviewPending       Stage = "AdminReviewPending"
	StageDropped                  Stage = "Dropped"
	StageClosedLead               Stage = "ClosedLead"
)

// AllStages lists every stage in workflow order.
var AllStages = []Stage{
	StageAssignmentEmailPending,
	StageAwaitingRMReply,
	StageReassignmentEmailPending,
	StageEscalation1,
	StageEscalation2,
	StagePSMReviewPending,
	StagePSMAssigned,
	StagePSMAwaitingAction,
	StageAdminReviewPending,
	StageDropped,
	StageClosedLead,
}

// TerminalStages are archived; no transition or sweep applies to them.
var TerminalStages = []Stage{StageDropped, StageClosedLead}

// IsTerminal reports whether no further transitions apply.
func (s Stage) IsTerminal() bool {
	return s == StageDropped || s == StageClosedLead
}

// IsKnown reports whether s is one of the defined stages.
func (s Stage) IsKnown() bool {
	for _, known := range AllStages {
		if s == known {
			return true
		}
	}
	return false
}

// ParseStage validates a persisted stage value.
func ParseStage(raw string) (Stage, error) {
	s := Stage(raw)
	if !s.IsKnown() {
		return "", fmt.Errorf("unknown workflow stage %q", raw)
	}
	return s, nil
}

// AssigneeType identifies who currently owns the next action.
type AssigneeType string

const (
	AssigneeRM     AssigneeType = "RM"
	AssigneePSM    AssigneeType = "PSM"
	AssigneeSystem AssigneeType = "System"
)

// ParseAssigneeType validates a persisted assignee type.
func ParseAssigneeType(raw string) (AssigneeType, error) {
	switch AssigneeType(raw) {
	case AssigneeRM, AssigneePSM, AssigneeSystem:
		return AssigneeType(raw), nil
	}
	return "", fmt.Errorf("unknown assignee type %q", raw)
}

const (
	// UnassignedID is the owner sentinel while a lead waits for a human reviewer.
	UnassignedID = "unassigned"
	// SystemActorID is the sender id for entries produced by the engine itself.
	SystemActorID = "system"
)

// MaxEscalationLevel is the last automatic escalation (PSM review).
const MaxEscalationLevel = 3
