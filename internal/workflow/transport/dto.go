package transport

import (
	"time"

	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/platform/sanitize"

	"github.com/google/uuid"
)

// =============================================================================
// Requests
// =============================================================================

type CreateWorkflowRequest struct {
	LeadID string `json:"leadId" validate:"required,identity"`
	RMID   string `json:"rmId" validate:"required,identity"`
	PSMID  string `json:"psmId" validate:"required,identity"`
}

type AttachmentDTO struct {
	Name string `json:"name" validate:"required,max=255"`
	Size int64  `json:"size" validate:"min=0"`
	Type string `json:"type" validate:"required,max=128"`
	URL  string `json:"url" validate:"required,max=2048"`
}

type AIAssessmentDTO struct {
	Summary        string `json:"summary" validate:"max=4000"`
	Decision       string `json:"decision" validate:"required,max=64"`
	TokensConsumed int    `json:"tokensConsumed" validate:"min=0"`
}

type RMReplyRequest struct {
	RMID        string           `json:"rmId" validate:"omitempty,identity"`
	Text        string           `json:"text" validate:"max=20000"`
	AIResult    *AIAssessmentDTO `json:"aiResult" validate:"omitempty"`
	Attachments []AttachmentDTO  `json:"attachments" validate:"omitempty,max=20,dive"`
}

type PSMDecisionRequest struct {
	PSMID    string `json:"psmId" validate:"omitempty,identity"`
	Decision string `json:"decision" validate:"required,oneof=reassign drop close sendBackToRM"`
	Note     string `json:"note" validate:"max=4000"`
}

type ResumeWorkflowRequest struct {
	RMID string `json:"rmId" validate:"omitempty,identity"`
	Note string `json:"note" validate:"max=4000"`
}

type AssignToPSMRequest struct {
	Note string `json:"note" validate:"max=4000"`
}

type AddNoteRequest struct {
	Body string `json:"body" validate:"required,max=4000"`
}

type PresignAttachmentRequest struct {
	FileName    string `json:"fileName" validate:"required,max=255"`
	ContentType string `json:"contentType" validate:"required,max=128"`
	SizeBytes   int64  `json:"sizeBytes" validate:"required,gt=0"`
}

// =============================================================================
// Responses
// =============================================================================

type WorkflowResponse struct {
	ID                  uuid.UUID  `json:"id"`
	LeadID              string     `json:"leadId"`
	CurrentStage        string     `json:"currentStage"`
	Flag                string     `json:"flag"`
	AssigneeType        string     `json:"assigneeType"`
	AssigneeID          string     `json:"assigneeId"`
	RMID                string     `json:"rmId"`
	PSMID               string     `json:"psmId"`
	EscalationLevel     int        `json:"escalationLevel"`
	LastStageChangeAt   time.Time  `json:"lastStageChangeAt"`
	LastCommunicationAt time.Time  `json:"lastCommunicationAt"`
	NextFollowUpAt      *time.Time `json:"nextFollowUpAt,omitempty"`
	LastReminderAt      *time.Time `json:"lastReminderAt,omitempty"`
	DroppedReason       string     `json:"droppedReason,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type CommunicationResponse struct {
	ID                     uuid.UUID       `json:"id"`
	LeadID                 string          `json:"leadId"`
	OccurredAt             time.Time       `json:"occurredAt"`
	Type                   string          `json:"type"`
	Title                  string          `json:"title"`
	Body                   string          `json:"body"`
	SenderType             string          `json:"senderType"`
	SenderID               string          `json:"senderId"`
	RecipientID            string          `json:"recipientId,omitempty"`
	CcIDs                  []string        `json:"ccIds,omitempty"`
	AISummary              string          `json:"aiSummary,omitempty"`
	AIDecision             string          `json:"aiDecision,omitempty"`
	AITokensConsumed       int             `json:"aiTokensConsumed,omitempty"`
	Attachments            []AttachmentDTO `json:"attachments,omitempty"`
	RelatedWorkflowStateID uuid.UUID       `json:"relatedWorkflowStateId"`
}

type CommunicationsResponse struct {
	Items []CommunicationResponse `json:"items"`
}

type TransitionResponse struct {
	Workflow      WorkflowResponse      `json:"workflow"`
	Communication CommunicationResponse `json:"communication"`
}

type SweepResponse struct {
	Processed  int       `json:"processed"`
	Reminded   int       `json:"reminded"`
	Escalated  int       `json:"escalated"`
	Errors     int       `json:"errors"`
	Stopped    bool      `json:"stopped"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

type SweepQueuedResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

type FlagCountResponse struct {
	Stage string `json:"stage"`
	Flag  string `json:"flag"`
	Count int    `json:"count"`
}

type FlagsResponse struct {
	Items []FlagCountResponse `json:"items"`
}

type PresignAttachmentResponse struct {
	UploadURL  string        `json:"uploadUrl"`
	ExpiresAt  time.Time     `json:"expiresAt"`
	Attachment AttachmentDTO `json:"attachment"`
}

// =============================================================================
// Mapping
// =============================================================================

func ToWorkflowResponse(s domain.WorkflowState) WorkflowResponse {
	return WorkflowResponse{
		ID:                  s.ID,
		LeadID:              s.LeadID,
		CurrentStage:        string(s.CurrentStage),
		Flag:                string(s.Flag()),
		AssigneeType:        string(s.AssigneeType),
		AssigneeID:          s.AssigneeID,
		RMID:                s.RMID,
		PSMID:               s.PSMID,
		EscalationLevel:     s.EscalationLevel,
		LastStageChangeAt:   s.LastStageChangeAt,
		LastCommunicationAt: s.LastCommunicationAt,
		NextFollowUpAt:      s.NextFollowUpAt,
		LastReminderAt:      s.LastReminderAt,
		DroppedReason:       s.DroppedReason,
		CreatedAt:           s.CreatedAt,
		UpdatedAt:           s.UpdatedAt,
	}
}

func ToCommunicationResponse(r domain.CommunicationRecord) CommunicationResponse {
	resp := CommunicationResponse{
		ID:                     r.ID,
		LeadID:                 r.LeadID,
		OccurredAt:             r.OccurredAt,
		Type:                   string(r.Type),
		Title:                  r.Title,
		Body:                   r.Body,
		SenderType:             string(r.SenderType),
		SenderID:               r.SenderID,
		RecipientID:            r.RecipientID,
		CcIDs:                  r.CcIDs,
		AISummary:              r.AISummary,
		AIDecision:             string(r.AIDecision),
		AITokensConsumed:       r.AITokensConsumed,
		RelatedWorkflowStateID: r.RelatedWorkflowStateID,
	}
	for _, a := range r.Attachments {
		resp.Attachments = append(resp.Attachments, AttachmentDTO{Name: a.Name, Size: a.Size, Type: a.Type, URL: a.URL})
	}
	return resp
}

// ToCommunicationsResponse lists entries newest first. records must be in
// ledger order.
func ToCommunicationsResponse(records []domain.CommunicationRecord) CommunicationsResponse {
	items := make([]CommunicationResponse, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		items = append(items, ToCommunicationResponse(records[i]))
	}
	return CommunicationsResponse{Items: items}
}

func (a AttachmentDTO) ToDomain() domain.Attachment {
	return domain.Attachment{Name: a.Name, Size: a.Size, Type: a.Type, URL: a.URL}
}

func (a *AIAssessmentDTO) ToDomain() *domain.AIAssessment {
	if a == nil {
		return nil
	}
	return &domain.AIAssessment{
		Summary:        sanitize.Text(a.Summary),
		Decision:       domain.ParseDecision(a.Decision),
		Label:          a.Decision,
		TokensConsumed: a.TokensConsumed,
	}
}
