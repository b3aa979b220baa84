package domain

// Flag is the simplified, user-facing status derived from a stage.
type Flag string

const (
	FlagWithRM      Flag = "With RM"
	FlagEscalated   Flag = "Escalated"
	FlagWithPSM     Flag = "With PSM"
	FlagAdminReview Flag = "Admin Review"
	FlagDropped     Flag = "Dropped"
	FlagClosed      Flag = "Closed"
)

var stageFlags = map[Stage]Flag{
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

// FlagFor projects a stage onto its flag. Unknown stages have no flag.
func FlagFor(s Stage) (Flag, bool) {
	f, ok := stageFlags[s]
	return f, ok
}

// FlagTable returns the full projection in stage order.
func FlagTable() []StageFlag {
	out := make([]StageFlag, 0, len(AllStages))
	for _, s := range AllStages {
		out = append(out, StageFlag{Stage: s, Flag: stageFlags[s]})
	}
	return out
}

// StageFlag is one row of the projection table.
type StageFlag struct {
	Stage Stage
	Flag  Flag
}
