package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"leadflow_backend/internal/workflow/domain"

	"github.com/google/uuid"
)

// MemoryStore keeps workflows and the ledger in process memory. Writes to one
// lead are serialized by a per-lead lock and become visible only on commit.
type MemoryStore struct {
	mu     sync.RWMutex
	states map[string]domain.WorkflowState
	ledger map[string][]domain.CommunicationRecord
	seq    int64

	locksMu sync.Mutex
	locks   map[string]*leadLock
}

type leadLock struct {
	ch   chan struct{}
	refs int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states: make(map[string]domain.WorkflowState),
		ledger: make(map[string][]domain.CommunicationRecord),
		locks:  make(map[string]*leadLock),
	}
}

func (m *MemoryStore) GetByLead(_ context.Context, leadID string) (domain.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[leadID]
	if !ok {
		return domain.WorkflowState{}, ErrNotFound
	}
	return cloneState(state), nil
}

func (m *MemoryStore) ListActive(_ context.Context) ([]domain.WorkflowState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]domain.WorkflowState, 0, len(m.states))
	for _, state := range m.states {
		if state.CurrentStage.IsTerminal() {
			continue
		}
		items = append(items, cloneState(state))
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LeadID < items[j].LeadID })
	return items, nil
}

func (m *MemoryStore) CountByStage(_ context.Context) (map[domain.Stage]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[domain.Stage]int)
	for _, state := range m.states {
		counts[state.CurrentStage]++
	}
	return counts, nil
}

func (m *MemoryStore) ListByLead(_ context.Context, leadID string) ([]domain.CommunicationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.ledger[leadID]
	out := make([]domain.CommunicationRecord, len(records))
	copy(out, records)
	return out, nil
}

func (m *MemoryStore) WithinLeadTx(ctx context.Context, leadID string, fn func(tx LeadTx) error) error {
	release, err := m.lock(ctx, leadID)
	if err != nil {
		return err
	}
	defer release()

	tx := &memoryTx{store: m, leadID: leadID}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.commit(tx)
	return nil
}

func (m *MemoryStore) lock(ctx context.Context, leadID string) (func(), error) {
	m.locksMu.Lock()
	l, ok := m.locks[leadID]
	if !ok {
		l = &leadLock{ch: make(chan struct{}, 1)}
		m.locks[leadID] = l
	}
	l.refs++
	m.locksMu.Unlock()

	unref := func() {
		m.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(m.locks, leadID)
		}
		m.locksMu.Unlock()
	}

	select {
	case l.ch <- struct{}{}:
		return func() {
			<-l.ch
			unref()
		}, nil
	case <-ctx.Done():
		unref()
		return nil, ctx.Err()
	}
}

func (m *MemoryStore) commit(tx *memoryTx) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.state != nil {
		m.states[tx.leadID] = *tx.state
	}
	for _, rec := range tx.records {
		m.seq++
		rec.Seq = m.seq
		m.ledger[tx.leadID] = append(m.ledger[tx.leadID], rec)
	}
}

type memoryTx struct {
	store   *MemoryStore
	leadID  string
	state   *domain.WorkflowState
	records []domain.CommunicationRecord
}

func (tx *memoryTx) Get(ctx context.Context) (domain.WorkflowState, error) {
	if tx.state != nil {
		return cloneState(*tx.state), nil
	}
	return tx.store.GetByLead(ctx, tx.leadID)
}

func (tx *memoryTx) Create(ctx context.Context, state domain.WorkflowState) (domain.WorkflowState, error) {
	if state.LeadID != tx.leadID {
		return domain.WorkflowState{}, ErrMissingLeadID
	}
	if _, err := tx.Get(ctx); err == nil {
		return domain.WorkflowState{}, ErrDuplicateLead
	}
	if state.ID == uuid.Nil {
		state.ID = uuid.New()
	}
	staged := cloneState(state)
	tx.state = &staged
	return cloneState(staged), nil
}

func (tx *memoryTx) Update(ctx context.Context, id uuid.UUID, patch domain.Patch, now time.Time) (domain.WorkflowState, error) {
	current, err := tx.Get(ctx)
	if err != nil {
		return domain.WorkflowState{}, err
	}
	if current.ID != id {
		return domain.WorkflowState{}, ErrNotFound
	}
	next := patch.ApplyTo(current, now)
	next.UpdatedAt = now
	tx.state = &next
	return cloneState(next), nil
}

func (tx *memoryTx) Append(_ context.Context, rec domain.CommunicationRecord) (domain.CommunicationRecord, error) {
	rec, err := prepareRecord(rec, tx.leadID, time.Now().UTC())
	if err != nil {
		return rec, err
	}
	rec.CcIDs = append([]string(nil), rec.CcIDs...)
	rec.Attachments = append([]domain.Attachment(nil), rec.Attachments...)
	tx.records = append(tx.records, rec)
	return rec, nil
}

func cloneState(s domain.WorkflowState) domain.WorkflowState {
	if s.NextFollowUpAt != nil {
		t := *s.NextFollowUpAt
		s.NextFollowUpAt = &t
	}
	if s.LastReminderAt != nil {
		t := *s.LastReminderAt
		s.LastReminderAt = &t
	}
	return s
}
