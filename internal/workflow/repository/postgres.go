package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/workflow/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const stateColumns = `id, lead_id, current_stage, current_assignee_type, current_assignee_id, rm_id, psm_id,
	last_stage_change_at, last_communication_at, next_follow_up_at, last_reminder_at,
	escalation_level, dropped_reason, created_at, updated_at`

const recordColumns = `seq, id, lead_id, occurred_at, type, title, body, sender_type, sender_id, recipient_id,
	cc_ids, ai_summary, ai_decision, ai_tokens_consumed, attachments, related_workflow_state_id`

// PostgresStore is the pgx-backed Repository.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) GetByLead(ctx context.Context, leadID string) (domain.WorkflowState, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+stateColumns+` FROM workflow_states WHERE lead_id = $1`, leadID)
	return scanState(row)
}

func (s *PostgresStore) ListActive(ctx context.Context) ([]domain.WorkflowState, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+stateColumns+`
		FROM workflow_states
		WHERE current_stage <> ALL($1)
		ORDER BY lead_id ASC
	`, terminalStageNames())
	if err != nil {
		return nil, fmt.Errorf("list active workflows: %w", err)
	}
	defer rows.Close()

	items := make([]domain.WorkflowState, 0)
	for rows.Next() {
		state, err := scanState(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, state)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

func (s *PostgresStore) CountByStage(ctx context.Context) (map[domain.Stage]int, error) {
	rows, err := s.pool.Query(ctx, `SELECT current_stage, COUNT(*) FROM workflow_states GROUP BY current_stage`)
	if err != nil {
		return nil, fmt.Errorf("count workflows by stage: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Stage]int)
	for rows.Next() {
		var stage string
		var n int
		if err := rows.Scan(&stage, &n); err != nil {
			return nil, err
		}
		counts[domain.Stage(stage)] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStore) ListByLead(ctx context.Context, leadID string) ([]domain.CommunicationRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM communication_records
		WHERE lead_id = $1
		ORDER BY occurred_at ASC, seq ASC
	`, leadID)
	if err != nil {
		return nil, fmt.Errorf("list communications: %w", err)
	}
	defer rows.Close()

	items := make([]domain.CommunicationRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return items, nil
}

// WithinLeadTx serializes writers on leadID with a transaction-scoped advisory
// lock, which also covers leads whose row does not exist yet. Get additionally
// takes the row lock.
func (s *PostgresStore) WithinLeadTx(ctx context.Context, leadID string, fn func(tx LeadTx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin lead transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, leadID); err != nil {
		return fmt.Errorf("lock lead %s: %w", leadID, err)
	}

	if err := fn(&postgresTx{tx: tx, leadID: leadID}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit lead transaction: %w", err)
	}
	return nil
}

type postgresTx struct {
	tx     pgx.Tx
	leadID string
}

func (t *postgresTx) Get(ctx context.Context) (domain.WorkflowState, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+stateColumns+` FROM workflow_states WHERE lead_id = $1 FOR UPDATE`, t.leadID)
	return scanState(row)
}

func (t *postgresTx) Create(ctx context.Context, state domain.WorkflowState) (domain.WorkflowState, error) {
	if state.LeadID != t.leadID {
		return domain.WorkflowState{}, ErrMissingLeadID
	}
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}

	row := t.tx.QueryRow(ctx, `
		INSERT INTO workflow_states (`+stateColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (lead_id) DO NOTHING
		RETURNING `+stateColumns,
		state.ID, state.LeadID, string(state.CurrentStage), string(state.AssigneeType), state.AssigneeID,
		state.RMID, state.PSMID, state.LastStageChangeAt, state.LastCommunicationAt, state.NextFollowUpAt,
		state.LastReminderAt, state.EscalationLevel, nullableText(state.DroppedReason), state.CreatedAt, state.UpdatedAt,
	)
	created, err := scanState(row)
	if errors.Is(err, ErrNotFound) {
		return domain.WorkflowState{}, ErrDuplicateLead
	}
	return created, err
}

func (t *postgresTx) Update(ctx context.Context, id uuid.UUID, patch domain.Patch, now time.Time) (domain.WorkflowState, error) {
	current, err := t.Get(ctx)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	if current.ID != id {
		return domain.WorkflowState{}, ErrNotFound
	}
	next := patch.ApplyTo(current, now)
	next.UpdatedAt = now

	row := t.tx.QueryRow(ctx, `
		UPDATE workflow_states SET
			current_stage = $2,
			current_assignee_type = $3,
			current_assignee_id = $4,
			rm_id = $5,
			last_stage_change_at = $6,
			last_communication_at = $7,
			next_follow_up_at = $8,
			last_reminder_at = $9,
			escalation_level = $10,
			dropped_reason = $11,
			updated_at = $12
		WHERE id = $1
		RETURNING `+stateColumns,
		id, string(next.CurrentStage), string(next.AssigneeType), next.AssigneeID, next.RMID,
		next.LastStageChangeAt, next.LastCommunicationAt, next.NextFollowUpAt, next.LastReminderAt,
		next.EscalationLevel, nullableText(next.DroppedReason), next.UpdatedAt,
	)
	return scanState(row)
}

func (t *postgresTx) Append(ctx context.Context, rec domain.CommunicationRecord) (domain.CommunicationRecord, error) {
	rec, err := prepareRecord(rec, t.leadID, time.Now().UTC())
	if err != nil {
		return rec, err
	}

	attachments := rec.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	attachmentsJSON, err := json.Marshal(attachments)
	if err != nil {
		return rec, fmt.Errorf("encode attachments: %w", err)
	}
	ccIDs := rec.CcIDs
	if ccIDs == nil {
		ccIDs = []string{}
	}

	var tokens *int
	if rec.AITokensConsumed > 0 {
		tokens = &rec.AITokensConsumed
	}
	var related *uuid.UUID
	if rec.RelatedWorkflowStateID != uuid.Nil {
		related = &rec.RelatedWorkflowStateID
	}

	err = t.tx.QueryRow(ctx, `
		INSERT INTO communication_records (
			id, lead_id, occurred_at, type, title, body, sender_type, sender_id, recipient_id,
			cc_ids, ai_summary, ai_decision, ai_tokens_consumed, attachments, related_workflow_state_id
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING seq
	`, rec.ID, rec.LeadID, rec.OccurredAt, string(rec.Type), rec.Title, rec.Body, string(rec.SenderType),
		rec.SenderID, rec.RecipientID, ccIDs, nullableText(rec.AISummary), nullableText(string(rec.AIDecision)),
		tokens, attachmentsJSON, related,
	).Scan(&rec.Seq)
	if err != nil {
		return rec, fmt.Errorf("append communication: %w", err)
	}
	return rec, nil
}

func scanState(row pgx.Row) (domain.WorkflowState, error) {
	var (
		s            domain.WorkflowState
		stage        string
		assigneeType string
		dropped      *string
	)
	err := row.Scan(
		&s.ID, &s.LeadID, &stage, &assigneeType, &s.AssigneeID, &s.RMID, &s.PSMID,
		&s.LastStageChangeAt, &s.LastCommunicationAt, &s.NextFollowUpAt, &s.LastReminderAt,
		&s.EscalationLevel, &dropped, &s.CreatedAt, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.WorkflowState{}, ErrNotFound
	}
	if err != nil {
		return domain.WorkflowState{}, fmt.Errorf("scan workflow: %w", err)
	}

	if s.CurrentStage, err = domain.ParseStage(stage); err != nil {
		return domain.WorkflowState{}, fmt.Errorf("%w: %v", domain.ErrInconsistentState, err)
	}
	if s.AssigneeType, err = domain.ParseAssigneeType(assigneeType); err != nil {
		return domain.WorkflowState{}, fmt.Errorf("%w: %v", domain.ErrInconsistentState, err)
	}
	if dropped != nil {
		s.DroppedReason = *dropped
	}
	return s, nil
}

func scanRecord(row pgx.Row) (domain.CommunicationRecord, error) {
	var (
		rec             domain.CommunicationRecord
		kind            string
		senderType      string
		aiSummary       *string
		aiDecision      *string
		aiTokens        *int
		attachmentsJSON []byte
		related         *uuid.UUID
	)
	err := row.Scan(
		&rec.Seq, &rec.ID, &rec.LeadID, &rec.OccurredAt, &kind, &rec.Title, &rec.Body, &senderType,
		&rec.SenderID, &rec.RecipientID, &rec.CcIDs, &aiSummary, &aiDecision, &aiTokens,
		&attachmentsJSON, &related,
	)
	if err != nil {
		return domain.CommunicationRecord{}, fmt.Errorf("scan communication: %w", err)
	}

	rec.Type = domain.CommunicationType(kind)
	rec.SenderType = domain.SenderType(senderType)
	if aiSummary != nil {
		rec.AISummary = *aiSummary
	}
	if aiDecision != nil {
		rec.AIDecision = domain.Decision(*aiDecision)
	}
	if aiTokens != nil {
		rec.AITokensConsumed = *aiTokens
	}
	if related != nil {
		rec.RelatedWorkflowStateID = *related
	}
	if len(attachmentsJSON) > 0 {
		if err := json.Unmarshal(attachmentsJSON, &rec.Attachments); err != nil {
			return domain.CommunicationRecord{}, fmt.Errorf("decode attachments: %w", err)
		}
	}
	if len(rec.Attachments) == 0 {
		rec.Attachments = nil
	}
	if len(rec.CcIDs) == 0 {
		rec.CcIDs = nil
	}
	return rec, nil
}

func terminalStageNames() []string {
	names := make([]string, 0, len(domain.TerminalStages))
	for _, stage := range domain.TerminalStages {
		names = append(names, string(stage))
	}
	return names
}

func nullableText(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
