package domain

import (
	"fmt"
	"time"
)

// ActionKind is what the evaluator decided for one workflow.
type ActionKind string

const (
	ActionNone     ActionKind = "none"
	ActionRemind   ActionKind = "remind"
	ActionEscalate ActionKind = "escalate"
)

// Action is the evaluator's decision. Intent is nil for ActionNone.
type Action struct {
	Kind   ActionKind
	Intent Intent
}

var noAction = Action{Kind: ActionNone}

// Evaluate decides whether a workflow is due a reminder or an escalation at
// now. It is pure: the same state, time and policy always give the same
// action.
func Evaluate(s WorkflowState, now time.Time, p Policy) (Action, error) {
	if s.EscalationLevel < 0 || s.EscalationLevel > MaxEscalationLevel {
		return noAction, fmt.Errorf("%w: lead %s has escalation level %d", ErrInconsistentState, s.LeadID, s.EscalationLevel)
	}
	if s.CurrentStage.IsTerminal() || s.AssigneeType != AssigneeRM || s.CurrentStage == StagePSMReviewPending {
		return noAction, nil
	}

	days := elapsedDays(s.LastStageChangeAt, now)

	switch s.EscalationLevel {
	case 0:
		if days >= p.ReminderStartDays && days < p.ReminderEndDays && !remindedSinceStageChange(s) {
			return Action{Kind: ActionRemind, Intent: Remind{}}, nil
		}
		if days >= p.Level1Days {
			return escalateTo(1), nil
		}
	case 1:
		if days >= p.Level2Days {
			return escalateTo(2), nil
		}
	case 2:
		if days >= p.Level3Days {
			return escalateTo(3), nil
		}
	}
	// Level 3 leads handed back to an RM stay at level 3.
	return noAction, nil
}

func escalateTo(level int) Action {
	return Action{Kind: ActionEscalate, Intent: Escalate{ToLevel: level}}
}

func remindedSinceStageChange(s WorkflowState) bool {
	return s.LastReminderAt != nil && !s.LastReminderAt.Before(s.LastStageChangeAt)
}

// CheckConsistency reports a violation of the stage/level/owner invariants.
func CheckConsistency(s WorkflowState) error {
	fail := func(format string, args ...any) error {
		return fmt.Errorf("%w: lead %s: %s", ErrInconsistentState, s.LeadID, fmt.Sprintf(format, args...))
	}

	if !s.CurrentStage.IsKnown() {
		return fail("unknown stage %q", s.CurrentStage)
	}
	if s.EscalationLevel < 0 || s.EscalationLevel > MaxEscalationLevel {
		return fail("escalation level %d out of range", s.EscalationLevel)
	}
	switch s.CurrentStage {
	case StageEscalation1:
		if s.EscalationLevel != 1 {
			return fail("stage %s with level %d", s.CurrentStage, s.EscalationLevel)
		}
	case StageEscalation2:
		if s.EscalationLevel != 2 {
			return fail("stage %s with level %d", s.CurrentStage, s.EscalationLevel)
		}
	case StagePSMReviewPending:
		if s.EscalationLevel != MaxEscalationLevel || s.AssigneeType != AssigneePSM {
			return fail("stage %s with level %d owned by %s", s.CurrentStage, s.EscalationLevel, s.AssigneeType)
		}
	case StageDropped:
		if s.DroppedReason == "" {
			return fail("dropped without a reason")
		}
	}
	if s.CurrentStage != StageDropped && s.DroppedReason != "" {
		return fail("dropped reason set on stage %s", s.CurrentStage)
	}
	return nil
}
