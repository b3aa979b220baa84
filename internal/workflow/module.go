// Package workflow provides the lead workflow and escalation bounded context.
// This file defines the module that wires its service and routes.
package workflow

import (
	"time"

	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/internal/workflow/handler"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"
)

// Config combines the settings the workflow module reads.
type Config interface {
	config.EscalationConfig
	GetSweepConcurrency() int
	GetSweepLeadTimeout() time.Duration
}

// Module is the workflow bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the workflow service over repo and its HTTP handler.
func NewModule(repo repository.Repository, bus events.Bus, clk clock.Clock, cfg Config, val *validator.Validator, log *logger.Logger) (*Module, error) {
	policy := PolicyFromConfig(cfg.GetEscalationThresholds())
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	svc := service.New(repo, bus, clk, policy, log)
	svc.SetSweepLimits(cfg.GetSweepConcurrency(), cfg.GetSweepLeadTimeout())

	return &Module{
		handler: handler.New(svc, val, httpkit.NewSweepRateLimiter(log)),
		service: svc,
	}, nil
}

// PolicyFromConfig converts configured thresholds into the evaluator policy.
func PolicyFromConfig(t config.EscalationThresholds) domain.Policy {
	return domain.Policy{
		InitialFollowUpDays: t.InitialFollowUpDays,
		ReplyFollowUpDays:   t.ReplyFollowUpDays,
		ReminderStartDays:   t.ReminderStartDays,
		ReminderEndDays:     t.ReminderEndDays,
		ReminderAdvanceDays: t.ReminderAdvanceDays,
		Level1Days:          t.Level1Days,
		Level2Days:          t.Level2Days,
		Level3Days:          t.Level3Days,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "workflow"
}

// Service returns the workflow service for the scheduler and the CLI.
func (m *Module) Service() *service.Service {
	return m.service
}

// SetClassifier enables reply classification.
func (m *Module) SetClassifier(c service.ReplyClassifier) { m.service.SetClassifier(c) }

// SetSweepGuard installs the cluster-wide sweep guard.
func (m *Module) SetSweepGuard(g service.SweepGuard) { m.service.SetSweepGuard(g) }

// SetMetrics installs the service instruments.
func (m *Module) SetMetrics(metrics *service.Metrics) { m.service.SetMetrics(metrics) }

// SetSweepQueue enables asynchronous sweep requests.
func (m *Module) SetSweepQueue(q handler.SweepQueue) { m.handler.SetSweepQueue(q) }

// SetAttachmentPresigner enables attachment upload URLs.
func (m *Module) SetAttachmentPresigner(p handler.AttachmentPresigner) {
	m.handler.SetAttachmentPresigner(p)
}

// RegisterRoutes mounts workflow routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Protected.Group("/workflows"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
