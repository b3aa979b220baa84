package domain

import (
	"fmt"
	"strings"
	"time"
)

// Outcome is the result of a transition: a patch to the workflow and the one
// ledger entry that explains it.
type Outcome struct {
	Patch Patch
	Entry CommunicationRecord
}

// Apply validates intent against the current state and returns the resulting
// patch and ledger entry. It never mutates s.
func Apply(s WorkflowState, intent Intent, now time.Time, p Policy) (Outcome, error) {
	if s.CurrentStage.IsTerminal() {
		return Outcome{}, fmt.Errorf("%w: %s on %s", ErrTerminalStage, intent.Name(), s.CurrentStage)
	}

	switch in := intent.(type) {
	case Assign:
		return applyAssign(s, now, p)
	case RMReply:
		return applyRMReply(s, in, now, p)
	case PSMDecision:
		return applyPSMDecision(s, in, now, p)
	case ResumeFromAdminReview:
		return applyResume(s, in, now, p)
	case AssignToPSM:
		return applyAssignToPSM(s, in, now)
	case AddNote:
		return applyNote(s, in, now)
	case Remind:
		return applyRemind(s, now, p)
	case Escalate:
		return applyEscalate(s, in, now, p)
	default:
		return Outcome{}, fmt.Errorf("%w: unknown intent %T", ErrNotApplicable, intent)
	}
}

func notApplicable(intent Intent, s WorkflowState) error {
	return fmt.Errorf("%w: %s on %s", ErrNotApplicable, intent.Name(), s.CurrentStage)
}

func applyAssign(s WorkflowState, now time.Time, p Policy) (Outcome, error) {
	if s.CurrentStage != StageAssignmentEmailPending {
		return Outcome{}, notApplicable(Assign{}, s)
	}

	var patch Patch
	patch.moveTo(StageAwaitingRMReply, now)
	patch.followUpAt(p.afterDays(now, p.InitialFollowUpDays))
	patch.LastCommunicationAt = &now

	entry := newEntry(s, now, CommAssignmentEmail, SenderSystem, SystemActorID)
	entry.Title = "New lead assigned: " + s.LeadID
	entry.Body = fmt.Sprintf("Lead %s has been assigned to you. Please contact the dealer and record your reply within %d days.",
		s.LeadID, p.InitialFollowUpDays)
	entry.RecipientID = s.RMID
	entry.CcIDs = ccOf(s.PSMID)
	return Outcome{Patch: patch, Entry: entry}, nil
}

func applyRMReply(s WorkflowState, in RMReply, now time.Time, p Policy) (Outcome, error) {
	rmID := strings.TrimSpace(in.RMID)
	if rmID == "" {
		return Outcome{}, ErrMissingIdentity
	}
	if rmID != s.RMID && !(s.AssigneeType == AssigneeRM && s.AssigneeID == rmID) {
		return Outcome{}, fmt.Errorf("%w: %s is not the RM of lead %s", ErrNotOwner, rmID, s.LeadID)
	}
	text := strings.TrimSpace(in.Text)
	if text == "" && len(in.Attachments) == 0 {
		return Outcome{}, ErrEmptyReply
	}

	decision := DecisionUnclassified
	if in.Assessment != nil {
		decision = in.Assessment.Decision
	}

	patch := Patch{LastCommunicationAt: &now}
	switch decision {
	case DecisionNotInterested:
		patch.moveTo(StageDropped, now)
		reason := "Dealer not interested"
		if summary := strings.TrimSpace(in.Assessment.Summary); summary != "" {
			reason += ": " + summary
		}
		patch.DroppedReason = &reason
	case DecisionNeedsAdminReview:
		patch.moveTo(StageAdminReviewPending, now)
		patch.assignTo(AssigneeSystem, UnassignedID)
	case DecisionFollowUp:
		patch.moveTo(StageAwaitingRMReply, now)
		patch.assignTo(AssigneeRM, s.RMID)
		patch.followUpAt(p.afterDays(now, p.ReplyFollowUpDays))
	case DecisionUnclassified:
	default:
		return Outcome{}, fmt.Errorf("%w: unknown reply decision %q", ErrNotApplicable, decision)
	}

	entry := newEntry(s, now, CommRMReply, SenderRM, rmID)
	entry.Title = "RM reply"
	entry.Body = text
	entry.RecipientID = s.PSMID
	entry.Attachments = in.Attachments
	if in.Assessment != nil {
		entry.AISummary = in.Assessment.Summary
		entry.AIDecision = in.Assessment.Decision
		entry.AITokensConsumed = in.Assessment.TokensConsumed
	}
	return Outcome{Patch: patch, Entry: entry}, nil
}

func applyPSMDecision(s WorkflowState, in PSMDecision, now time.Time, p Policy) (Outcome, error) {
	psmID := strings.TrimSpace(in.PSMID)
	if psmID == "" {
		return Outcome{}, ErrMissingIdentity
	}
	if psmID != s.PSMID {
		return Outcome{}, fmt.Errorf("%w: %s is not the PSM of lead %s", ErrNotOwner, psmID, s.LeadID)
	}
	note := strings.TrimSpace(in.Note)

	patch := Patch{LastCommunicationAt: &now}
	var entry CommunicationRecord

	switch in.Kind {
	case PSMReassign:
		patch.moveTo(StageReassignmentEmailPending, now)
		patch.assignTo(AssigneeRM, s.RMID)
		patch.followUpAt(p.afterDays(now, p.InitialFollowUpDays))
		entry = newEntry(s, now, CommPSMReassign, SenderPSM, psmID)
		entry.Title = "Lead reassigned to RM"
		entry.Body = note
		if entry.Body == "" {
			entry.Body = fmt.Sprintf("Lead %s has been reassigned to you by the PSM.", s.LeadID)
		}
		entry.RecipientID = s.RMID
	case PSMDrop:
		patch.moveTo(StageDropped, now)
		reason := note
		if reason == "" {
			reason = DefaultDropReason
		}
		patch.DroppedReason = &reason
		entry = newEntry(s, now, CommPSMDrop, SenderPSM, psmID)
		entry.Title = "Lead dropped"
		entry.Body = reason
		entry.RecipientID = s.RMID
	case PSMClose:
		patch.moveTo(StageClosedLead, now)
		entry = newEntry(s, now, CommPSMClose, SenderPSM, psmID)
		entry.Title = "Lead closed"
		entry.Body = note
		entry.RecipientID = s.RMID
	case PSMSendBackToRM:
		if note == "" {
			return Outcome{}, fmt.Errorf("%w: send back to RM", ErrNoteRequired)
		}
		patch.moveTo(StageAwaitingRMReply, now)
		patch.assignTo(AssigneeRM, s.RMID)
		patch.followUpAt(p.afterDays(now, p.InitialFollowUpDays))
		entry = newEntry(s, now, CommPSMSendBack, SenderPSM, psmID)
		entry.Title = "Lead sent back to RM"
		entry.Body = fmt.Sprintf("The PSM has sent lead %s back to you with the following note:\n\n%s", s.LeadID, note)
		entry.RecipientID = s.RMID
	default:
		return Outcome{}, fmt.Errorf("%w: unknown PSM decision %q", ErrNotApplicable, in.Kind)
	}

	return Outcome{Patch: patch, Entry: entry}, nil
}

func applyResume(s WorkflowState, in ResumeFromAdminReview, now time.Time, p Policy) (Outcome, error) {
	reviewer := strings.TrimSpace(in.ReviewerID)
	if reviewer == "" {
		return Outcome{}, ErrMissingIdentity
	}
	if s.CurrentStage != StageAdminReviewPending {
		return Outcome{}, notApplicable(in, s)
	}

	rmID := strings.TrimSpace(in.RMID)
	if rmID == "" {
		rmID = s.RMID
	}

	patch := Patch{LastCommunicationAt: &now, RMID: &rmID}
	patch.moveTo(StageAwaitingRMReply, now)
	patch.assignTo(AssigneeRM, rmID)
	patch.followUpAt(p.afterDays(now, p.InitialFollowUpDays))

	entry := newEntry(s, now, CommStageUpdate, SenderUser, reviewer)
	entry.Title = "Admin review completed"
	entry.Body = strings.TrimSpace(in.Note)
	if entry.Body == "" {
		entry.Body = fmt.Sprintf("Lead %s is back with you after admin review.", s.LeadID)
	}
	entry.RecipientID = rmID
	entry.CcIDs = ccOf(s.PSMID)
	return Outcome{Patch: patch, Entry: entry}, nil
}

func applyAssignToPSM(s WorkflowState, in AssignToPSM, now time.Time) (Outcome, error) {
	actor := strings.TrimSpace(in.ActorID)
	if actor == "" {
		return Outcome{}, ErrMissingIdentity
	}
	if s.CurrentStage == StagePSMAssigned {
		return Outcome{}, notApplicable(in, s)
	}

	patch := Patch{LastCommunicationAt: &now}
	patch.moveTo(StagePSMAssigned, now)
	patch.assignTo(AssigneePSM, s.PSMID)

	entry := newEntry(s, now, CommStageUpdate, SenderUser, actor)
	entry.Title = "Lead assigned to PSM"
	entry.Body = strings.TrimSpace(in.Note)
	if entry.Body == "" {
		entry.Body = fmt.Sprintf("Lead %s has been assigned to you for direct handling.", s.LeadID)
	}
	entry.RecipientID = s.PSMID
	entry.CcIDs = ccOf(s.RMID)
	return Outcome{Patch: patch, Entry: entry}, nil
}

func applyNote(s WorkflowState, in AddNote, now time.Time) (Outcome, error) {
	author := strings.TrimSpace(in.AuthorID)
	if author == "" {
		return Outcome{}, ErrMissingIdentity
	}
	body := strings.TrimSpace(in.Body)
	if body == "" {
		return Outcome{}, ErrNoteRequired
	}
	senderType := in.AuthorType
	if _, ok := ParseSenderType(string(senderType)); !ok {
		senderType = SenderUser
	}

	entry := newEntry(s, now, CommNote, senderType, author)
	entry.Title = "Note"
	entry.Body = body
	return Outcome{Patch: Patch{LastCommunicationAt: &now}, Entry: entry}, nil
}

func applyRemind(s WorkflowState, now time.Time, p Policy) (Outcome, error) {
	if s.EscalationLevel != 0 || s.AssigneeType != AssigneeRM {
		return Outcome{}, notApplicable(Remind{}, s)
	}

	patch := Patch{LastReminderAt: &now}
	patch.followUpAt(p.afterDays(now, p.ReminderAdvanceDays))

	days := elapsedDays(s.LastStageChangeAt, now)
	entry := newEntry(s, now, CommSystemReminder, SenderSystem, SystemActorID)
	entry.Title = "Reminder: lead awaiting your reply"
	entry.Body = fmt.Sprintf("No update has been recorded on lead %s for %d days. Please reply before it is escalated on day %d.",
		s.LeadID, days, p.Level1Days)
	entry.RecipientID = s.AssigneeID
	return Outcome{Patch: patch, Entry: entry}, nil
}

func applyEscalate(s WorkflowState, in Escalate, now time.Time, p Policy) (Outcome, error) {
	if in.ToLevel != s.EscalationLevel+1 || in.ToLevel < 1 || in.ToLevel > MaxEscalationLevel {
		return Outcome{}, fmt.Errorf("%w: escalate from level %d to %d", ErrNotApplicable, s.EscalationLevel, in.ToLevel)
	}

	level := in.ToLevel
	patch := Patch{EscalationLevel: &level}
	entry := newEntry(s, now, CommSystemEscalation, SenderSystem, SystemActorID)
	days := elapsedDays(s.LastStageChangeAt, now)

	switch level {
	case 1:
		patch.moveTo(StageEscalation1, now)
		patch.followUpAt(p.afterDays(now, p.Level2Days))
		entry.Title = "Escalation level 1: " + s.LeadID
		entry.RecipientID = s.AssigneeID
		entry.CcIDs = ccOf(s.PSMID)
	case 2:
		patch.moveTo(StageEscalation2, now)
		patch.followUpAt(p.afterDays(now, p.Level3Days))
		entry.Title = "Escalation level 2: " + s.LeadID
		entry.RecipientID = s.AssigneeID
		entry.CcIDs = ccOf(s.PSMID)
	case 3:
		patch.moveTo(StagePSMReviewPending, now)
		patch.assignTo(AssigneePSM, s.PSMID)
		entry.Title = "Lead escalated to PSM review: " + s.LeadID
		entry.RecipientID = s.PSMID
		entry.CcIDs = ccOf(s.AssigneeID)
	}
	entry.Body = fmt.Sprintf("Lead %s has had no recorded progress for %d days and is now at escalation level %d.",
		s.LeadID, days, level)
	return Outcome{Patch: patch, Entry: entry}, nil
}

func ccOf(ids ...string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
