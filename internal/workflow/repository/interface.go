// Package repository persists workflow states and the communication ledger.
package repository

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/workflow/domain"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("workflow not found")
	ErrDuplicateLead = errors.New("workflow already exists for lead")
	ErrMissingLeadID = errors.New("communication record requires a lead id")
)

// StateReader provides read-only access to workflow states.
type StateReader interface {
	GetByLead(ctx context.Context, leadID string) (domain.WorkflowState, error)
	// ListActive returns every workflow that is not in a terminal stage.
	ListActive(ctx context.Context) ([]domain.WorkflowState, error)
	CountByStage(ctx context.Context) (map[domain.Stage]int, error)
}

// LedgerReader provides read-only access to the communication ledger.
type LedgerReader interface {
	// ListByLead returns entries in insertion order, oldest first.
	ListByLead(ctx context.Context, leadID string) ([]domain.CommunicationRecord, error)
}

// LeadTx is a unit of work holding the lock on one lead. Nothing written
// through it is visible to others until the surrounding WithinLeadTx returns
// nil.
type LeadTx interface {
	// Get returns the locked workflow or ErrNotFound.
	Get(ctx context.Context) (domain.WorkflowState, error)
	// Create inserts a new workflow for the locked lead or returns ErrDuplicateLead.
	Create(ctx context.Context, state domain.WorkflowState) (domain.WorkflowState, error)
	// Update applies patch to the workflow with id and stamps updatedAt.
	Update(ctx context.Context, id uuid.UUID, patch domain.Patch, now time.Time) (domain.WorkflowState, error)
	// Append adds a ledger entry, assigning id and timestamp when absent.
	Append(ctx context.Context, rec domain.CommunicationRecord) (domain.CommunicationRecord, error)
}

// Repository is the full persistence surface of the workflow module.
type Repository interface {
	StateReader
	LedgerReader
	// WithinLeadTx runs fn while holding the per-lead critical section. When
	// fn returns an error every write made through tx is discarded.
	WithinLeadTx(ctx context.Context, leadID string, fn func(tx LeadTx) error) error
}

// prepareRecord fills the generated fields of a ledger entry.
func prepareRecord(rec domain.CommunicationRecord, leadID string, now time.Time) (domain.CommunicationRecord, error) {
	if rec.LeadID == "" {
		return rec, ErrMissingLeadID
	}
	if rec.LeadID != leadID {
		return rec, errors.New("communication record belongs to a different lead")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.OccurredAt.IsZero() {
		rec.OccurredAt = now
	}
	return rec, nil
}
