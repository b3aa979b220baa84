package domain

import "testing"

func TestFlagForEveryStage(t *testing.T) {
	want := map[Stage]Flag{
		StageAssignmentEmailPending:   FlagWithRM,
		StageAwaitingRMReply:          FlagWithRM,
		StageReassignmentEmailPending: FlagWithRM,
		StageEscalation1:              FlagEscalated,
		StageEscalation2:              FlagEscalated,
		StagePSMReviewPending:         FlagWithPSM,
		StagePSMAssigned:              FlagWithPSM,
		StagePSMAwaitingAction:        FlagWithPSM,
		StageAdminReviewPending:       FlagAdminReview,
		StageDropped:                  FlagDropped,
		StageClosedLead:               FlagClosed,
	}

	for _, stage := range AllStages {
		got, ok := FlagFor(stage)
		if !ok || got != want[stage] {
			t.Errorf("%s: expected %q, got %q", stage, want[stage], got)
		}
	}
	if len(FlagTable()) != len(AllStages) {
		t.Fatalf("flag table does not cover every stage")
	}
	if _, ok := FlagFor(Stage("Archived")); ok {
		t.Fatalf("unknown stage must have no flag")
	}
}

func TestParseDecisionLabels(t *testing.T) {
	tests := map[string]Decision{
		"Dealer Not Interested": DecisionNotInterested,
		"NOT_INTERESTED":        DecisionNotInterested,
		"Admin Review":          DecisionNeedsAdminReview,
		"needs-admin-review":    DecisionNeedsAdminReview,
		"FollowUp":              DecisionFollowUp,
		"follow up":             DecisionFollowUp,
		"":                      DecisionUnclassified,
		"Interested":            DecisionUnclassified,
	}
	for label, want := range tests {
		if got := ParseDecision(label); got != want {
			t.Errorf("%q: expected %s, got %s", label, want, got)
		}
	}
}
