// Package service provides the workflow operations: assignment, replies, PSM
// decisions and the escalation sweep. Every mutation runs inside the lead's
// repository transaction and writes exactly one ledger entry.
package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/sanitize"
)

const (
	opCreate       = "workflow.Create"
	opGet          = "workflow.Get"
	opReply        = "workflow.RecordRMReply"
	opDecision     = "workflow.RecordPSMDecision"
	opResume       = "workflow.Resume"
	opAssignPSM    = "workflow.AssignToPSM"
	opNote         = "workflow.AddNote"
	opListComms    = "workflow.ListCommunications"
	opFlagSummary  = "workflow.FlagSummary"
	opSweep        = "workflow.RunEscalationSweep"
	opSweepLead    = "workflow.SweepLead"
	classifyBudget = 20 * time.Second

	defaultSweepConcurrency = 4
	defaultLeadTimeout      = 30 * time.Second
)

// ReplyClassifier turns a free-text RM reply into a decision.
type ReplyClassifier interface {
	Classify(ctx context.Context, leadID, text string) (domain.AIAssessment, error)
}

// Result is a committed transition: the workflow after the change and the
// ledger entry written with it.
type Result struct {
	State         domain.WorkflowState
	Communication domain.CommunicationRecord
}

// Service implements the workflow operations.
type Service struct {
	repo       repository.Repository
	bus        events.Bus
	clock      clock.Clock
	policy     domain.Policy
	log        *logger.Logger
	classifier ReplyClassifier
	guard      SweepGuard
	metrics    *Metrics

	sweepMu          sync.Mutex
	sweepConcurrency int
	leadTimeout      time.Duration
}

// New creates the workflow service.
func New(repo repository.Repository, bus events.Bus, clk clock.Clock, policy domain.Policy, log *logger.Logger) *Service {
	return &Service{
		repo:             repo,
		bus:              bus,
		clock:            clk,
		policy:           policy,
		log:              log,
		sweepConcurrency: defaultSweepConcurrency,
		leadTimeout:      defaultLeadTimeout,
	}
}

// SetClassifier enables automatic classification of replies that arrive
// without an AI result.
func (s *Service) SetClassifier(c ReplyClassifier) {
	s.classifier = c
}

// SetSweepGuard installs the cluster-wide single-sweep guard.
func (s *Service) SetSweepGuard(g SweepGuard) {
	s.guard = g
}

// SetMetrics installs the instruments the service records to.
func (s *Service) SetMetrics(m *Metrics) {
	s.metrics = m
}

// SetSweepLimits bounds sweep fan-out and the time spent on any single lead.
func (s *Service) SetSweepLimits(concurrency int, leadTimeout time.Duration) {
	if concurrency > 0 {
		s.sweepConcurrency = concurrency
	}
	if leadTimeout > 0 {
		s.leadTimeout = leadTimeout
	}
}

// Policy returns the thresholds the service evaluates with.
func (s *Service) Policy() domain.Policy {
	return s.policy
}

// CreateWorkflow assigns a new lead to an RM and PSM.
func (s *Service) CreateWorkflow(ctx context.Context, leadID, rmID, psmID string) (domain.WorkflowState, error) {
	leadID, rmID, psmID = strings.TrimSpace(leadID), strings.TrimSpace(rmID), strings.TrimSpace(psmID)
	if leadID == "" || rmID == "" || psmID == "" {
		return domain.WorkflowState{}, apperr.Validation("leadId, rmId and psmId are required").WithOp(opCreate)
	}

	var res Result
	err := s.repo.WithinLeadTx(ctx, leadID, func(tx repository.LeadTx) error {
		now := s.clock.Now()
		created, err := tx.Create(ctx, domain.NewWorkflowState(leadID, rmID, psmID, now))
		if err != nil {
			return err
		}
		res, err = s.applyIntent(ctx, tx, created, domain.Assign{}, now)
		return err
	})
	if err != nil {
		return domain.WorkflowState{}, s.translate(opCreate, err)
	}

	s.afterCommit(ctx, domain.Assign{}, domain.StageAssignmentEmailPending, res)
	return res.State, nil
}

// GetWorkflow returns the workflow of a lead.
func (s *Service) GetWorkflow(ctx context.Context, leadID string) (domain.WorkflowState, error) {
	state, err := s.repo.GetByLead(ctx, strings.TrimSpace(leadID))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.WorkflowState{}, apperr.NotFound("workflow not found").WithOp(opGet)
		}
		return domain.WorkflowState{}, s.translate(opGet, err)
	}
	return state, nil
}

// RMReplyInput is an RM reply. Assessment is the classifier's result when the
// caller already has one.
type RMReplyInput struct {
	RMID        string
	Text        string
	Assessment  *domain.AIAssessment
	Attachments []domain.Attachment
}

// RecordRMReply appends the reply and applies the decision it carries.
func (s *Service) RecordRMReply(ctx context.Context, leadID string, in RMReplyInput) (Result, error) {
	reply := domain.RMReply{
		RMID:        in.RMID,
		Text:        in.Text,
		Assessment:  in.Assessment,
		Attachments: in.Attachments,
	}
	if in.Assessment == nil && s.classifier != nil && strings.TrimSpace(in.Text) != "" {
		// Skip the classifier for replies the workflow would reject.
		if err := s.precheckReply(ctx, leadID, reply); err != nil {
			return Result{}, err
		}
		reply.Assessment = s.classify(ctx, leadID, in.Text)
	}
	return s.transition(ctx, opReply, leadID, reply)
}

// precheckReply applies the unclassified reply to the current state without
// committing it. The real transition re-checks under the lead's lock.
func (s *Service) precheckReply(ctx context.Context, leadID string, reply domain.RMReply) error {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return apperr.Validation("leadId is required").WithOp(opReply)
	}
	current, err := s.repo.GetByLead(ctx, leadID)
	if err != nil {
		return s.translate(opReply, err)
	}
	if _, err := domain.Apply(current, reply, s.clock.Now(), s.policy); err != nil {
		return s.translate(opReply, err)
	}
	return nil
}

// RecordPSMDecision applies a PSM decision.
func (s *Service) RecordPSMDecision(ctx context.Context, leadID, psmID string, kind domain.PSMDecisionKind, note string) (Result, error) {
	return s.transition(ctx, opDecision, leadID, domain.PSMDecision{PSMID: psmID, Kind: kind, Note: note})
}

// ResumeWorkflow hands a lead parked for admin review back to an RM.
func (s *Service) ResumeWorkflow(ctx context.Context, leadID, reviewerID, rmID, note string) (Result, error) {
	return s.transition(ctx, opResume, leadID, domain.ResumeFromAdminReview{ReviewerID: reviewerID, RMID: rmID, Note: note})
}

// AssignToPSM moves a lead to its PSM for direct handling.
func (s *Service) AssignToPSM(ctx context.Context, leadID, actorID, note string) (Result, error) {
	return s.transition(ctx, opAssignPSM, leadID, domain.AssignToPSM{ActorID: actorID, Note: note})
}

// AddNote appends a free-form note to the lead's ledger.
func (s *Service) AddNote(ctx context.Context, leadID string, authorType domain.SenderType, authorID, body string) (Result, error) {
	return s.transition(ctx, opNote, leadID, domain.AddNote{AuthorType: authorType, AuthorID: authorID, Body: body})
}

// ListCommunications returns the lead's ledger, oldest first.
func (s *Service) ListCommunications(ctx context.Context, leadID string) ([]domain.CommunicationRecord, error) {
	leadID = strings.TrimSpace(leadID)
	if _, err := s.repo.GetByLead(ctx, leadID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, apperr.NotFound("workflow not found").WithOp(opListComms)
		}
		return nil, s.translate(opListComms, err)
	}
	records, err := s.repo.ListByLead(ctx, leadID)
	if err != nil {
		return nil, s.translate(opListComms, err)
	}
	return records, nil
}

// FlagCount is one row of the flag summary.
type FlagCount struct {
	Stage domain.Stage
	Flag  domain.Flag
	Count int
}

// FlagSummary returns the stage to flag projection with the number of leads
// currently in each stage.
func (s *Service) FlagSummary(ctx context.Context) ([]FlagCount, error) {
	counts, err := s.repo.CountByStage(ctx)
	if err != nil {
		return nil, s.translate(opFlagSummary, err)
	}
	table := domain.FlagTable()
	out := make([]FlagCount, 0, len(table))
	for _, row := range table {
		out = append(out, FlagCount{Stage: row.Stage, Flag: row.Flag, Count: counts[row.Stage]})
	}
	return out, nil
}

func (s *Service) classify(ctx context.Context, leadID, text string) *domain.AIAssessment {
	cctx, cancel := context.WithTimeout(ctx, classifyBudget)
	defer cancel()

	assessment, err := s.classifier.Classify(cctx, leadID, text)
	if err != nil {
		s.log.WithContext(ctx).Warn("reply classification failed, recording unclassified", "leadId", leadID, "error", err)
		return nil
	}
	assessment.Summary = sanitize.Text(assessment.Summary)
	return &assessment
}

// transition applies one intent to a lead under its lock.
func (s *Service) transition(ctx context.Context, op, leadID string, intent domain.Intent) (Result, error) {
	leadID = strings.TrimSpace(leadID)
	if leadID == "" {
		return Result{}, apperr.Validation("leadId is required").WithOp(op)
	}

	var (
		res  Result
		from domain.Stage
	)
	err := s.repo.WithinLeadTx(ctx, leadID, func(tx repository.LeadTx) error {
		current, err := tx.Get(ctx)
		if err != nil {
			return err
		}
		from = current.CurrentStage
		res, err = s.applyIntent(ctx, tx, current, intent, s.clock.Now())
		return err
	})
	if err != nil {
		return Result{}, s.translate(op, err)
	}

	s.afterCommit(ctx, intent, from, res)
	return res, nil
}

// applyIntent runs the transition rules and writes the patch and its ledger
// entry through tx.
func (s *Service) applyIntent(ctx context.Context, tx repository.LeadTx, current domain.WorkflowState, intent domain.Intent, now time.Time) (Result, error) {
	out, err := domain.Apply(current, intent, now, s.policy)
	if err != nil {
		return Result{}, err
	}
	next, err := tx.Update(ctx, current.ID, out.Patch, now)
	if err != nil {
		return Result{}, err
	}
	if err := domain.CheckConsistency(next); err != nil {
		return Result{}, err
	}
	entry, err := tx.Append(ctx, out.Entry)
	if err != nil {
		return Result{}, err
	}
	return Result{State: next, Communication: entry}, nil
}

func (s *Service) afterCommit(ctx context.Context, intent domain.Intent, from domain.Stage, res Result) {
	s.log.WithContext(ctx).TransitionApplied(res.State.LeadID, intent.Name(), string(from), string(res.State.CurrentStage), res.State.EscalationLevel)
	s.metrics.recordTransition(ctx, intent.Name())

	if event := eventFor(intent, res); event != nil && s.bus != nil {
		s.bus.Publish(ctx, event)
	}
}

// translate maps repository and domain errors onto application errors.
// An unknown lead on a transition is a caller error, not a missing resource.
func (s *Service) translate(op string, err error) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, domain.ErrNotOwner):
		return apperr.Forbidden(err.Error()).WithOp(op)
	case domain.IsRejection(err):
		return apperr.Validation(err.Error()).WithOp(op)
	case errors.Is(err, repository.ErrNotFound):
		return apperr.Validation("unknown leadId").WithOp(op)
	case errors.Is(err, repository.ErrDuplicateLead):
		return apperr.Conflict("a workflow already exists for this lead").WithOp(op)
	case errors.Is(err, repository.ErrMissingLeadID):
		return apperr.Validation(err.Error()).WithOp(op)
	case errors.Is(err, domain.ErrInconsistentState):
		s.log.Error("inconsistent workflow state", "op", op, "error", err)
		return apperr.Wrap(apperr.KindInternal, "inconsistent workflow state", err).WithOp(op)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return apperr.Wrap(apperr.KindPersistence, "operation cancelled", err).WithOp(op)
	default:
		s.log.DatabaseError(op, err)
		return apperr.Persistence(op, err)
	}
}
