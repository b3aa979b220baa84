// Package handler exposes the workflow operations over HTTP.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/internal/workflow/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/sanitize"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
)

// SweepQueue enqueues an escalation sweep for a background worker.
type SweepQueue interface {
	EnqueueSweep(ctx context.Context, requestedBy string) (string, error)
}

// AttachmentUpload is a presigned upload slot and the attachment reference
// to send with the reply once the upload is done.
type AttachmentUpload struct {
	UploadURL  string
	ExpiresAt  time.Time
	Attachment domain.Attachment
}

// AttachmentPresigner issues upload URLs for communication attachments.
type AttachmentPresigner interface {
	PresignAttachment(ctx context.Context, leadID, fileName, contentType string, sizeBytes int64) (AttachmentUpload, error)
}

// Handler handles HTTP requests for lead workflows.
type Handler struct {
	svc          *service.Service
	val          *validator.Validator
	sweepLimiter *httpkit.IPRateLimiter
	sweepQueue   SweepQueue
	presigner    AttachmentPresigner
}

// New creates a new workflow handler.
func New(svc *service.Service, val *validator.Validator, sweepLimiter *httpkit.IPRateLimiter) *Handler {
	return &Handler{svc: svc, val: val, sweepLimiter: sweepLimiter}
}

// SetSweepQueue enables ?async=true on sweep requests.
func (h *Handler) SetSweepQueue(q SweepQueue) { h.sweepQueue = q }

// SetAttachmentPresigner enables attachment upload URLs.
func (h *Handler) SetAttachmentPresigner(p AttachmentPresigner) { h.presigner = p }

// RegisterRoutes mounts the workflow routes on an authenticated group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	managers := httpkit.RequireAnyRole(httpkit.RoleAdmin, httpkit.RoleSystem)
	replyRoles := httpkit.RequireAnyRole(httpkit.RoleRM, httpkit.RoleAdmin, httpkit.RoleSystem)
	psmRoles := httpkit.RequireAnyRole(httpkit.RolePSM, httpkit.RoleAdmin, httpkit.RoleSystem)
	staff := httpkit.RequireAnyRole(httpkit.RoleRM, httpkit.RolePSM, httpkit.RoleAdmin, httpkit.RoleSystem)

	rg.POST("", managers, h.CreateWorkflow)
	rg.GET("/flags", h.ListFlags)

	sweep := []gin.HandlerFunc{managers}
	if h.sweepLimiter != nil {
		sweep = append(sweep, h.sweepLimiter.RateLimit())
	}
	rg.POST("/sweeps", append(sweep, h.RunSweep)...)

	rg.GET("/:leadId", h.GetWorkflow)
	rg.GET("/:leadId/communications", h.ListCommunications)
	rg.POST("/:leadId/replies", replyRoles, h.RecordReply)
	rg.POST("/:leadId/decisions", psmRoles, h.RecordDecision)
	rg.POST("/:leadId/resume", managers, h.Resume)
	rg.POST("/:leadId/psm-assignment", psmRoles, h.AssignToPSM)
	rg.POST("/:leadId/notes", staff, h.AddNote)
	rg.POST("/:leadId/attachments/presign", staff, h.PresignAttachment)
}

func (h *Handler) CreateWorkflow(c *gin.Context) {
	var req transport.CreateWorkflowRequest
	if !h.bind(c, &req) {
		return
	}

	state, err := h.svc.CreateWorkflow(c.Request.Context(), req.LeadID, req.RMID, req.PSMID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, transport.ToWorkflowResponse(state))
}

func (h *Handler) GetWorkflow(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	state, err := h.svc.GetWorkflow(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToWorkflowResponse(state))
}

func (h *Handler) ListCommunications(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}

	records, err := h.svc.ListCommunications(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToCommunicationsResponse(records))
}

func (h *Handler) RecordReply(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}
	var req transport.RMReplyRequest
	if !h.bind(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	rmID, ok := actingAs(c, id, req.RMID, httpkit.RoleRM)
	if !ok {
		return
	}

	in := service.RMReplyInput{
		RMID:       rmID,
		Text:       sanitize.Text(req.Text),
		Assessment: req.AIResult.ToDomain(),
	}
	for _, a := range req.Attachments {
		in.Attachments = append(in.Attachments, a.ToDomain())
	}

	res, err := h.svc.RecordRMReply(c.Request.Context(), leadID, in)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toTransition(res))
}

func (h *Handler) RecordDecision(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}
	var req transport.PSMDecisionRequest
	if !h.bind(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}
	psmID, ok := actingAs(c, id, req.PSMID, httpkit.RolePSM)
	if !ok {
		return
	}
	kind, err := domain.ParsePSMDecisionKind(req.Decision)
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	res, err := h.svc.RecordPSMDecision(c.Request.Context(), leadID, psmID, kind, sanitize.Text(req.Note))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toTransition(res))
}

func (h *Handler) Resume(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}
	var req transport.ResumeWorkflowRequest
	if !h.bind(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	res, err := h.svc.ResumeWorkflow(c.Request.Context(), leadID, id.ActorID(), req.RMID, sanitize.Text(req.Note))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toTransition(res))
}

func (h *Handler) AssignToPSM(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}
	var req transport.AssignToPSMRequest
	if !h.bind(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	res, err := h.svc.AssignToPSM(c.Request.Context(), leadID, id.ActorID(), sanitize.Text(req.Note))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toTransition(res))
}

func (h *Handler) AddNote(c *gin.Context) {
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}
	var req transport.AddNoteRequest
	if !h.bind(c, &req) {
		return
	}
	id := httpkit.MustGetIdentity(c)
	if id == nil {
		return
	}

	res, err := h.svc.AddNote(c.Request.Context(), leadID, senderTypeOf(id), id.ActorID(), sanitize.Text(req.Body))
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, toTransition(res))
}

func (h *Handler) PresignAttachment(c *gin.Context) {
	if h.presigner == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "attachment storage is not configured", nil)
		return
	}
	leadID, ok := h.leadID(c)
	if !ok {
		return
	}
	var req transport.PresignAttachmentRequest
	if !h.bind(c, &req) {
		return
	}

	if _, err := h.svc.GetWorkflow(c.Request.Context(), leadID); httpkit.HandleError(c, err) {
		return
	}
	upload, err := h.presigner.PresignAttachment(c.Request.Context(), leadID, req.FileName, req.ContentType, req.SizeBytes)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.PresignAttachmentResponse{
		UploadURL: upload.UploadURL,
		ExpiresAt: upload.ExpiresAt,
		Attachment: transport.AttachmentDTO{
			Name: upload.Attachment.Name,
			Size: upload.Attachment.Size,
			Type: upload.Attachment.Type,
			URL:  upload.Attachment.URL,
		},
	})
}

func (h *Handler) RunSweep(c *gin.Context) {
	async, _ := strconv.ParseBool(c.DefaultQuery("async", "false"))
	if async {
		h.enqueueSweep(c)
		return
	}

	res, err := h.svc.RunEscalationSweep(c.Request.Context(), service.TriggerManual)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.SweepResponse{
		Processed:  res.Processed,
		Reminded:   res.Reminded,
		Escalated:  res.Escalated,
		Errors:     res.Errors,
		Stopped:    res.Stopped,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	})
}

func (h *Handler) enqueueSweep(c *gin.Context) {
	if h.sweepQueue == nil {
		httpkit.Error(c, http.StatusServiceUnavailable, "async sweeps are not available", nil)
		return
	}

	taskID, err := h.sweepQueue.EnqueueSweep(c.Request.Context(), httpkit.GetIdentity(c).ActorID())
	if errors.Is(err, scheduler.ErrSweepAlreadyQueued) {
		httpkit.HandleError(c, apperr.Conflict(err.Error()))
		return
	}
	if err != nil {
		httpkit.HandleError(c, apperr.Persistence("workflow.EnqueueSweep", err))
		return
	}
	httpkit.JSON(c, http.StatusAccepted, transport.SweepQueuedResponse{TaskID: taskID, Status: "queued"})
}

func (h *Handler) ListFlags(c *gin.Context) {
	rows, err := h.svc.FlagSummary(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}

	items := make([]transport.FlagCountResponse, 0, len(rows))
	for _, row := range rows {
		items = append(items, transport.FlagCountResponse{Stage: string(row.Stage), Flag: string(row.Flag), Count: row.Count})
	}
	httpkit.OK(c, transport.FlagsResponse{Items: items})
}

func (h *Handler) bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return false
	}
	return true
}

func (h *Handler) leadID(c *gin.Context) (string, bool) {
	leadID := strings.TrimSpace(c.Param("leadId"))
	if err := h.val.Var(leadID, "identity"); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return "", false
	}
	return leadID, true
}

// actingAs resolves whose behalf a call is made on. Holders of role act as
// themselves; admin and system callers must name the identity explicitly.
func actingAs(c *gin.Context, id httpkit.Identity, requested, role string) (string, bool) {
	delegated := id.HasRole(httpkit.RoleAdmin) || id.HasRole(httpkit.RoleSystem)
	switch {
	case requested == "" && !delegated:
		return id.ActorID(), true
	case requested == "":
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, role+" identity is required")
		return "", false
	case requested != id.ActorID() && !delegated:
		httpkit.Error(c, http.StatusForbidden, "cannot act on behalf of another "+role, nil)
		return "", false
	}
	return requested, true
}

func senderTypeOf(id httpkit.Identity) domain.SenderType {
	switch {
	case id.HasRole(httpkit.RoleSystem):
		return domain.SenderSystem
	case id.HasRole(httpkit.RolePSM):
		return domain.SenderPSM
	case id.HasRole(httpkit.RoleRM):
		return domain.SenderRM
	}
	return domain.SenderUser
}

func toTransition(res service.Result) transport.TransitionResponse {
	return transport.TransitionResponse{
		Workflow:      transport.ToWorkflowResponse(res.State),
		Communication: transport.ToCommunicationResponse(res.Communication),
	}
}
