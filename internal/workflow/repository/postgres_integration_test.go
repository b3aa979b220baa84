//go:build integration

package repository

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/migrations"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// Run with: LEADFLOW_TEST_DATABASE_URL=postgres://... go test -tags integration ./internal/workflow/repository/

type databaseURL string

func (u databaseURL) GetDatabaseURL() string { return string(u) }

func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("LEADFLOW_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("LEADFLOW_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	pool, err := db.NewPool(ctx, databaseURL(url))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.RunMigrations(ctx, pool, migrations.Files, logger.Discard()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return NewPostgresStore(pool)
}

// uniqueLead keeps runs against a shared database apart.
func uniqueLead(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func createPostgresLead(t *testing.T, store *PostgresStore, leadID string) domain.WorkflowState {
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

func TestPostgresStoreCreateAndGet(t *testing.T) {
	store := newPostgresStore(t)
	leadID := uniqueLead("L")
	created := createPostgresLead(t, store, leadID)

	got, err := store.GetByLead(context.Background(), leadID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != created.ID || got.RMID != "R1" || got.PSMID != "P1" || got.CurrentStage != domain.StageAssignmentEmailPending {
		t.Fatalf("unexpected workflow %+v", got)
	}
	if !got.LastStageChangeAt.Equal(testNow) {
		t.Fatalf("expected lastStageChangeAt %v, got %v", testNow, got.LastStageChangeAt)
	}

	err = store.WithinLeadTx(context.Background(), leadID, func(tx LeadTx) error {
		_, err := tx.Create(context.Background(), domain.NewWorkflowState(leadID, "R2", "P2", testNow))
		return err
	})
	if !errors.Is(err, ErrDuplicateLead) {
		t.Fatalf("expected ErrDuplicateLead, got %v", err)
	}

	if _, err := store.GetByLead(context.Background(), uniqueLead("missing")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPostgresStoreRollsBackOnError(t *testing.T) {
	store := newPostgresStore(t)
	leadID := uniqueLead("L")
	state := createPostgresLead(t, store, leadID)
	boom := errors.New("ledger unavailable")

	err := store.WithinLeadTx(context.Background(), leadID, func(tx LeadTx) error {
		stage := domain.StageEscalation1
		if _, err := tx.Update(context.Background(), state.ID, domain.Patch{Stage: &stage}, testNow.Add(time.Hour)); err != nil {
			return err
		}
		if _, err := tx.Append(context.Background(), domain.CommunicationRecord{LeadID: leadID, Title: "x"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	got, _ := store.GetByLead(context.Background(), leadID)
	if got.CurrentStage != domain.StageAssignmentEmailPending {
		t.Fatalf("expected rollback, stage is %s", got.CurrentStage)
	}
	records, _ := store.ListByLead(context.Background(), leadID)
	if len(records) != 0 {
		t.Fatalf("expected no ledger entries after rollback, got %d", len(records))
	}
}

func TestPostgresStoreAppendKeepsInsertionOrder(t *testing.T) {
	store := newPostgresStore(t)
	leadID := uniqueLead("L")
	createPostgresLead(t, store, leadID)

	titles := []string{"first", "second", "third"}
	err := store.WithinLeadTx(context.Background(), leadID, func(tx LeadTx) error {
		for _, title := range titles {
			rec, err := tx.Append(context.Background(), domain.CommunicationRecord{
				LeadID:     leadID,
				Title:      title,
				OccurredAt: testNow,
				CcIDs:      []string{"P1"},
			})
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

	records, err := store.ListByLead(context.Background(), leadID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != len(titles) {
		t.Fatalf("expected %d records, got %d", len(titles), len(records))
	}
	for i, rec := range records {
		if rec.Title != titles[i] {
			t.Fatalf("record %d: expected %q, got %q", i, titles[i], rec.Title)
		}
		if i > 0 && rec.Seq <= records[i-1].Seq {
			t.Fatalf("expected increasing seq, got %d after %d", rec.Seq, records[i-1].Seq)
		}
		if len(rec.CcIDs) != 1 || rec.CcIDs[0] != "P1" {
			t.Fatalf("expected cc ids to round trip, got %v", rec.CcIDs)
		}
	}
}

func TestPostgresStoreListActiveSkipsTerminal(t *testing.T) {
	store := newPostgresStore(t)
	active := uniqueLead("L")
	createPostgresLead(t, store, active)
	droppedID := uniqueLead("L")
	dropped := createPostgresLead(t, store, droppedID)

	err := store.WithinLeadTx(context.Background(), droppedID, func(tx LeadTx) error {
		stage := domain.StageDropped
		reason := "gone"
		_, err := tx.Update(context.Background(), dropped.ID, domain.Patch{Stage: &stage, DroppedReason: &reason}, testNow)
		return err
	})
	if err != nil {
		t.Fatalf("drop: %v", err)
	}

	list, err := store.ListActive(context.Background())
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	var sawActive bool
	for _, s := range list {
		switch s.LeadID {
		case active:
			sawActive = true
		case droppedID:
			t.Fatalf("dropped lead %s listed as active", droppedID)
		}
	}
	if !sawActive {
		t.Fatalf("expected %s in active list", active)
	}

	counts, err := store.CountByStage(context.Background())
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if counts[domain.StageDropped] < 1 {
		t.Fatalf("expected at least one dropped workflow, got %v", counts)
	}
}

func TestPostgresStoreSerializesPerLead(t *testing.T) {
	store := newPostgresStore(t)
	leadID := uniqueLead("L")
	state := createPostgresLead(t, store, leadID)

	const writers = 10
	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- store.WithinLeadTx(context.Background(), leadID, func(tx LeadTx) error {
				current, err := tx.Get(context.Background())
				if err != nil {
					return err
				}
				rmID := current.RMID + "+"
				_, err = tx.Update(context.Background(), state.ID, domain.Patch{RMID: &rmID}, testNow)
				return err
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("writer: %v", err)
		}
	}

	got, _ := store.GetByLead(context.Background(), leadID)
	if n := strings.Count(got.RMID, "+"); n != writers {
		t.Fatalf("expected %d serialized updates, got %d (%s)", writers, n, got.RMID)
	}
}
