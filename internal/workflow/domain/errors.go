package domain

import "errors"

var (
	// ErrTerminalStage rejects any intent against a Dropped or ClosedLead workflow.
	ErrTerminalStage = errors.New("workflow is in a terminal stage")
	// ErrNotApplicable rejects an intent the current stage does not accept.
	ErrNotApplicable = errors.New("transition not applicable to current stage")
	// ErrMissingIdentity rejects an intent without an actor identity.
	ErrMissingIdentity = errors.New("actor identity is required")
	// ErrNotOwner rejects an RM or PSM acting on a lead they do not own.
	ErrNotOwner = errors.New("actor does not own this lead")
	// ErrNoteRequired rejects a send-back or note without text.
	ErrNoteRequired = errors.New("note is required")
	// ErrEmptyReply rejects a reply with neither text nor attachments.
	ErrEmptyReply = errors.New("reply text is required")
	// ErrInconsistentState means persisted data violates a workflow invariant.
	ErrInconsistentState = errors.New("inconsistent workflow state")
)

// IsRejection reports whether err is an input or stage rejection the caller
// can correct, as opposed to an internal failure.
func IsRejection(err error) bool {
	for _, target := range []error{ErrTerminalStage, ErrNotApplicable, ErrMissingIdentity, ErrNotOwner, ErrNoteRequired, ErrEmptyReply} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
