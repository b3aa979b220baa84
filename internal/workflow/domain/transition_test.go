package domain

import (
	"errors"
	"strings"
	"testing"
)

func TestApplyRejectsEveryIntentOnTerminalStages(t *testing.T) {
	intents := []Intent{
		Assign{},
		RMReply{RMID: "R1", Text: "hello"},
		PSMDecision{PSMID: "P1", Kind: PSMClose},
		ResumeFromAdminReview{ReviewerID: "A1"},
		AssignToPSM{ActorID: "P1"},
		AddNote{AuthorType: SenderUser, AuthorID: "U1", Body: "note"},
		Remind{},
		Escalate{ToLevel: 1},
	}

	for _, stage := range TerminalStages {
		s := assigned(t)
		s.CurrentStage = stage
		for _, in := range intents {
			if _, err := Apply(s, in, t0, DefaultPolicy()); !errors.Is(err, ErrTerminalStage) {
				t.Errorf("%s on %s: expected ErrTerminalStage, got %v", in.Name(), stage, err)
			}
		}
	}
}

func TestApplyRMReplyDecisionMapping(t *testing.T) {
	now := t0.Add(day(2))
	tests := []struct {
		label     string
		wantStage Stage
		wantOwner AssigneeType
	}{
		{"Dealer Not Interested", StageDropped, AssigneeRM},
		{"Admin Review", StageAdminReviewPending, AssigneeSystem},
		{"FollowUp", StageAwaitingRMReply, AssigneeRM},
		{"something else entirely", StageAwaitingRMReply, AssigneeRM},
	}

	for _, tc := range tests {
		s := assigned(t)
		out, err := Apply(s, RMReply{RMID: "R1", Text: "update", Assessment: &AIAssessment{Decision: ParseDecision(tc.label), Label: tc.label}}, now, DefaultPolicy())
		if err != nil {
			t.Fatalf("%s: %v", tc.label, err)
		}
		next := out.Patch.ApplyTo(s, now)
		if next.CurrentStage != tc.wantStage || next.AssigneeType != tc.wantOwner {
			t.Errorf("%s: expected %s/%s, got %s/%s", tc.label, tc.wantStage, tc.wantOwner, next.CurrentStage, next.AssigneeType)
		}
		if !next.LastCommunicationAt.Equal(now) {
			t.Errorf("%s: expected lastCommunicationAt bumped", tc.label)
		}
		if out.Entry.Type != CommRMReply || out.Entry.SenderID != "R1" {
			t.Errorf("%s: unexpected entry %+v", tc.label, out.Entry)
		}
	}
}

func TestApplyRMReplyUnclassifiedKeepsStageClock(t *testing.T) {
	s := assigned(t)
	now := t0.Add(day(2))

	out, err := Apply(s, RMReply{RMID: "R1", Text: "no decision yet"}, now, DefaultPolicy())
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	next := out.Patch.ApplyTo(s, now)
	if next.CurrentStage != s.CurrentStage || !next.LastStageChangeAt.Equal(t0) {
		t.Fatalf("expected stage and clock unchanged, got %s at %v", next.CurrentStage, next.LastStageChangeAt)
	}
}

func TestApplyFollowUpSetsShortFollowUp(t *testing.T) {
	s := assigned(t)
	now := t0.Add(day(1))

	out, err := Apply(s, RMReply{RMID: "R1", Text: "calling back", Assessment: &AIAssessment{Decision: DecisionFollowUp}}, now, DefaultPolicy())
	if err != nil {
		t.Fatalf("reply: %v", err)
	}
	next := out.Patch.ApplyTo(s, now)
	if !next.NextFollowUpAt.Equal(now.Add(day(2))) {
		t.Fatalf("expected follow-up at now+2d, got %v", next.NextFollowUpAt)
	}
}

func TestApplyRMReplyValidation(t *testing.T) {
	s := assigned(t)
	if _, err := Apply(s, RMReply{RMID: " ", Text: "x"}, t0, DefaultPolicy()); !errors.Is(err, ErrMissingIdentity) {
		t.Fatalf("expected ErrMissingIdentity, got %v", err)
	}
	if _, err := Apply(s, RMReply{RMID: "R1", Text: "  "}, t0, DefaultPolicy()); !errors.Is(err, ErrEmptyReply) {
		t.Fatalf("expected ErrEmptyReply, got %v", err)
	}
	withFile := RMReply{RMID: "R1", Attachments: []Attachment{{Name: "visit.pdf", URL: "leads/L-100/visit.pdf"}}}
	if _, err := Apply(s, withFile, t0, DefaultPolicy()); err != nil {
		t.Fatalf("attachment-only reply should be accepted: %v", err)
	}
}

func TestApplyRejectsNonOwners(t *testing.T) {
	s := assigned(t)
	now := t0.Add(day(1))

	_, err := Apply(s, RMReply{RMID: "R-OTHER", Text: "not interested", Assessment: &AIAssessment{Decision: DecisionNotInterested}}, now, DefaultPolicy())
	if !errors.Is(err, ErrNotOwner) || !IsRejection(err) {
		t.Fatalf("expected ErrNotOwner for a foreign RM, got %v", err)
	}
	if _, err := Apply(s, PSMDecision{PSMID: "P-OTHER", Kind: PSMClose}, now, DefaultPolicy()); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner for a foreign PSM, got %v", err)
	}

	out, _ := Apply(s, RMReply{RMID: "R1", Text: "needs review", Assessment: &AIAssessment{Decision: DecisionNeedsAdminReview}}, now, DefaultPolicy())
	s = out.Patch.ApplyTo(s, now)
	out, err = Apply(s, ResumeFromAdminReview{ReviewerID: "A1", RMID: "R2"}, now, DefaultPolicy())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	s = out.Patch.ApplyTo(s, now)
	if _, err := Apply(s, RMReply{RMID: "R2", Text: "on it"}, now, DefaultPolicy()); err != nil {
		t.Fatalf("expected the resumed RM to reply, got %v", err)
	}
	if _, err := Apply(s, RMReply{RMID: "R1", Text: "still here"}, now, DefaultPolicy()); !errors.Is(err, ErrNotOwner) {
		t.Fatalf("expected the replaced RM to be rejected, got %v", err)
	}
}

func TestApplyPSMDecisions(t *testing.T) {
	now := t0.Add(day(3))

	t.Run("reassign", func(t *testing.T) {
		s := assigned(t)
		out, err := Apply(s, PSMDecision{PSMID: "P1", Kind: PSMReassign}, now, DefaultPolicy())
		if err != nil {
			t.Fatalf("reassign: %v", err)
		}
		next := out.Patch.ApplyTo(s, now)
		if next.CurrentStage != StageReassignmentEmailPending || next.AssigneeType != AssigneeRM || next.AssigneeID != "R1" {
			t.Fatalf("unexpected state %s %s/%s", next.CurrentStage, next.AssigneeType, next.AssigneeID)
		}
		if out.Entry.SenderType != SenderPSM || out.Entry.Type != CommPSMReassign {
			t.Fatalf("unexpected entry %+v", out.Entry)
		}
	})

	t.Run("drop with default reason", func(t *testing.T) {
		s := assigned(t)
		out, err := Apply(s, PSMDecision{PSMID: "P1", Kind: PSMDrop, Note: "   "}, now, DefaultPolicy())
		if err != nil {
			t.Fatalf("drop: %v", err)
		}
		next := out.Patch.ApplyTo(s, now)
		if next.CurrentStage != StageDropped || next.DroppedReason != DefaultDropReason {
			t.Fatalf("expected Dropped with default reason, got %s %q", next.CurrentStage, next.DroppedReason)
		}
		if !next.LastStageChangeAt.Equal(now) {
			t.Fatalf("expected stage clock reset")
		}
	})

	t.Run("close", func(t *testing.T) {
		s := assigned(t)
		out, err := Apply(s, PSMDecision{PSMID: "P1", Kind: PSMClose}, now, DefaultPolicy())
		if err != nil {
			t.Fatalf("close: %v", err)
		}
		if next := out.Patch.ApplyTo(s, now); next.CurrentStage != StageClosedLead {
			t.Fatalf("expected ClosedLead, got %s", next.CurrentStage)
		}
	})

	t.Run("send back requires note", func(t *testing.T) {
		s := assigned(t)
		if _, err := Apply(s, PSMDecision{PSMID: "P1", Kind: PSMSendBackToRM, Note: " "}, now, DefaultPolicy()); !errors.Is(err, ErrNoteRequired) {
			t.Fatalf("expected ErrNoteRequired, got %v", err)
		}
	})

	t.Run("send back embeds note", func(t *testing.T) {
		s := assigned(t)
		s.AssigneeType = AssigneePSM
		s.AssigneeID = "P1"
		out, err := Apply(s, PSMDecision{PSMID: "P1", Kind: PSMSendBackToRM, Note: "Dealer asked for a new quote"}, now, DefaultPolicy())
		if err != nil {
			t.Fatalf("send back: %v", err)
		}
		next := out.Patch.ApplyTo(s, now)
		if next.AssigneeID != "R1" || next.CurrentStage != StageAwaitingRMReply {
			t.Fatalf("expected lead back with R1, got %s %s", next.AssigneeID, next.CurrentStage)
		}
		if !strings.Contains(out.Entry.Body, "Dealer asked for a new quote") {
			t.Fatalf("expected note in body, got %q", out.Entry.Body)
		}
	})
}

func TestApplyResumeOnlyFromAdminReview(t *testing.T) {
	s := assigned(t)
	if _, err := Apply(s, ResumeFromAdminReview{ReviewerID: "A1"}, t0, DefaultPolicy()); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected ErrNotApplicable, got %v", err)
	}

	now := t0.Add(day(1))
	out, _ := Apply(s, RMReply{RMID: "R1", Text: "needs review", Assessment: &AIAssessment{Decision: DecisionNeedsAdminReview}}, now, DefaultPolicy())
	s = out.Patch.ApplyTo(s, now)

	later := now.Add(day(1))
	out, err := Apply(s, ResumeFromAdminReview{ReviewerID: "A1", RMID: "R2"}, later, DefaultPolicy())
	if err != nil {
		t.Fatalf("resume: %v", err)
	}
	s = out.Patch.ApplyTo(s, later)
	if s.CurrentStage != StageAwaitingRMReply || s.AssigneeID != "R2" || s.RMID != "R2" {
		t.Fatalf("expected lead with R2, got %s %s rm=%s", s.CurrentStage, s.AssigneeID, s.RMID)
	}
	if out.Entry.Type != CommStageUpdate || out.Entry.SenderType != SenderUser {
		t.Fatalf("unexpected entry %+v", out.Entry)
	}
}

func TestApplyAssignToPSM(t *testing.T) {
	s := assigned(t)
	out, err := Apply(s, AssignToPSM{ActorID: "P1"}, t0, DefaultPolicy())
	if err != nil {
		t.Fatalf("assign to PSM: %v", err)
	}
	s = out.Patch.ApplyTo(s, t0)
	if s.CurrentStage != StagePSMAssigned || s.AssigneeType != AssigneePSM || s.AssigneeID != "P1" {
		t.Fatalf("unexpected state %s %s/%s", s.CurrentStage, s.AssigneeType, s.AssigneeID)
	}
	if _, err := Apply(s, AssignToPSM{ActorID: "P1"}, t0, DefaultPolicy()); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected second assignment to be rejected, got %v", err)
	}
}

func TestApplyNoteOnlyTouchesCommunicationTime(t *testing.T) {
	s := assigned(t)
	now := t0.Add(day(2))
	out, err := Apply(s, AddNote{AuthorType: SenderUser, AuthorID: "U7", Body: "Dealer on holiday"}, now, DefaultPolicy())
	if err != nil {
		t.Fatalf("note: %v", err)
	}
	if out.Patch.LastCommunicationAt == nil || !out.Patch.LastCommunicationAt.Equal(now) || out.Patch.Stage != nil {
		t.Fatalf("unexpected patch %+v", out.Patch)
	}
	if _, err := Apply(s, AddNote{AuthorID: "U7"}, now, DefaultPolicy()); !errors.Is(err, ErrNoteRequired) {
		t.Fatalf("expected ErrNoteRequired, got %v", err)
	}
}

func TestApplyEscalateMustBeNextLevel(t *testing.T) {
	s := assigned(t)
	if _, err := Apply(s, Escalate{ToLevel: 2}, t0, DefaultPolicy()); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected skipping a level to be rejected, got %v", err)
	}
	if !IsRejection(ErrNotApplicable) || IsRejection(ErrInconsistentState) {
		t.Fatalf("IsRejection misclassifies errors")
	}
}

func TestAssignOnlyFromAssignmentPending(t *testing.T) {
	s := assigned(t)
	if _, err := Apply(s, Assign{}, t0, DefaultPolicy()); !errors.Is(err, ErrNotApplicable) {
		t.Fatalf("expected ErrNotApplicable, got %v", err)
	}
}
