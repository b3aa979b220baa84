package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/workflow/domain"

	"github.com/google/uuid"
)

var testNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func createLead(t *testing.T, store *MemoryStore, leadID string) domain.WorkflowState {
	t.Helper()
	var created domain.WorkflowState
	err := store.WithinLeadTx(context.Background(), leadID, func(tx LeadTx) error {
		var err error
		created, err = tx.Create(context.Background(), domain.NewWorkflowState(leadID, "R1", "P1", testNow))
		return err
	})
	if err != nil {
		t.Fatalf("create %s: %v", leadID, err)
	}
	return created
}

func TestMemoryStoreCreateRejectsDuplicateLead(t *testing.T) {
	store := NewMemoryStore()
	createLead(t, store, "L-1")

	err := store.WithinLeadTx(context.Background(), "L-1", func(tx LeadTx) error {
		_, err := tx.Create(context.Background(), domain.NewWorkflowState("L-1", "R2", "P2", testNow))
		return err
	})
	if !errors.Is(err, ErrDuplicateLead) {
		t.Fatalf("expected ErrDuplicateLead, got %v", err)
	}
}

func TestMemoryStoreRollsBackOnError(t *testing.T) {
	store := NewMemoryStore()
	state := createLead(t, store, "L-1")
	boom := errors.New("ledger unavailable")

	err := store.WithinLeadTx(context.Background(), "L-1", func(tx LeadTx) error {
		stage := domain.StageEscalation1
		if _, err := tx.Update(context.Background(), state.ID, domain.Patch{Stage: &stage}, testNow.Add(time.Hour)); err != nil {
			return err
		}
		if _, err := tx.Append(context.Background(), domain.CommunicationRecord{LeadID: "L-1", Title: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, err := store.GetByLead(context.Background(), "L-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CurrentStage != domain.StageAssignmentEmailPending {
		t.Fatalf("expected rollback, stage is %s", got.CurrentStage)
	}
	records, _ := store.ListByLead(context.Background(), "L-1")
	if len(records) != 0 {
		t.Fatalf("expected no ledger entries after rollback, got %d", len(records))
	}
}

func TestMemoryStoreUpdateStampsUpdatedAt(t *testing.T) {
	store := NewMemoryStore()
	state := createLead(t, store, "L-1")
	later := testNow.Add(2 * time.Hour)

	err := store.WithinLeadTx(context.Background(), "L-1", func(tx LeadTx) error {
		_, err := tx.Update(context.Background(), state.ID, domain.Patch{}, later)
		return err
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _ := store.GetByLead(context.Background(), "L-1")
	if !got.UpdatedAt.Equal(later) {
		t.Fatalf("expected updatedAt %v, got %v", later, got.UpdatedAt)
	}
}

func TestMemoryStoreAppendAssignsIdentityAndOrder(t *testing.T) {
	store := NewMemoryStore()
	createLead(t, store, "L-1")

	err := store.WithinLeadTx(context.Background(), "L-1", func(tx LeadTx) error {
		for _, title := range []string{"first", "second"} {
			rec, err := tx.Append(context.Background(), domain.CommunicationRecord{LeadID: "L-1", Title: title, OccurredAt: testNow})
			if err != nil {
				return err
			}
			if rec.ID == uuid.Nil {
				t.Errorf("expected generated id")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	records, _ := store.ListByLead(context.Background(), "L-1")
	if len(records) != 2 || records[0].Title != "first" || records[1].Seq <= records[0].Seq {
		t.Fatalf("expected insertion order with increasing seq, got %+v", records)
	}

	err = store.WithinLeadTx(context.Background(), "L-1", func(tx LeadTx) error {
		_, err := tx.Append(context.Background(), domain.CommunicationRecord{Title: "orphan"})
		return err
	})
	if !errors.Is(err, ErrMissingLeadID) {
		t.Fatalf("expected ErrMissingLeadID, got %v", err)
	}
}

func TestMemoryStoreListActiveSkipsTerminal(t *testing.T) {
	store := NewMemoryStore()
	createLead(t, store, "L-1")
	dropped := createLead(t, store, "L-2")

	_ = store.WithinLeadTx(context.Background(), "L-2", func(tx LeadTx) error {
		stage := domain.StageDropped
		reason := "gone"
		_, err := tx.Update(context.Background(), dropped.ID, domain.Patch{Stage: &stage, DroppedReason: &reason}, testNow)
		return err
	})

	active, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(active) != 1 || active[0].LeadID != "L-1" {
		t.Fatalf("expected only L-1 active, got %+v", active)
	}

	counts, _ := store.CountByStage(context.Background())
	if counts[domain.StageDropped] != 1 || counts[domain.StageAssignmentEmailPending] != 1 {
		t.Fatalf("unexpected counts %v", counts)
	}
}

func TestMemoryStoreSerializesPerLead(t *testing.T) {
	store := NewMemoryStore()
	state := createLead(t, store, "L-1")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.WithinLeadTx(context.Background(), "L-1", func(tx LeadTx) error {
				current, err := tx.Get(context.Background())
				if err != nil {
					return err
				}
				level := current.EscalationLevel + 1
				_, err = tx.Update(context.Background(), state.ID, domain.Patch{EscalationLevel: &level}, testNow)
				return err
			})
		}()
	}
	wg.Wait()

	got, _ := store.GetByLead(context.Background(), "L-1")
	if got.EscalationLevel != 20 {
		t.Fatalf("expected 20 serialized increments, got %d", got.EscalationLevel)
	}
}

func TestMemoryStoreLockHonoursContext(t *testing.T) {
	store := NewMemoryStore()
	createLead(t, store, "L-1")

	held := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_ = store.WithinLeadTx(context.Background(), "L-1", func(LeadTx) error {
			close(held)
			<-done
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := store.WithinLeadTx(ctx, "L-1", func(LeadTx) error { return nil })
	close(done)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
