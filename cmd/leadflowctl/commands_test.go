package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/internal/workflow/repository"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/platform/clock"
	"leadflow_backend/platform/logger"
)

func newTestContext(t *testing.T) (*commandContext, *service.Service) {
	t.Helper()
	log := logger.Discard()
	svc := service.New(repository.NewMemoryStore(), events.NewInMemoryBus(log), clock.NewFake(time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)), domain.DefaultPolicy(), log)
	return &commandContext{log: log, service: svc}, svc
}

func runCommand(t *testing.T, ctx *commandContext, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(ctx)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestShowPrintsStateAndLedger(t *testing.T) {
	ctx, svc := newTestContext(t)
	if _, err := svc.CreateWorkflow(context.Background(), "L-100", "R1", "P1"); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	out, err := runCommand(t, ctx, "show", "L-100")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"L-100", string(domain.StageAwaitingRMReply), string(domain.FlagWithRM), "R1", "P1"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestShowUnknownLeadFails(t *testing.T) {
	ctx, _ := newTestContext(t)
	if _, err := runCommand(t, ctx, "show", "missing"); err == nil {
		t.Fatalf("expected an error for an unknown lead")
	}
}

func TestShowRequiresLeadID(t *testing.T) {
	ctx, _ := newTestContext(t)
	if _, err := runCommand(t, ctx, "show"); err == nil {
		t.Fatalf("expected an argument error")
	}
}

func TestSweepPrintsCounts(t *testing.T) {
	ctx, svc := newTestContext(t)
	if _, err := svc.CreateWorkflow(context.Background(), "L-1", "R1", "P1"); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	out, err := runCommand(t, ctx, "sweep")
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if !strings.Contains(out, "Processed") || !strings.Contains(out, "1") {
		t.Fatalf("unexpected sweep output:\n%s", out)
	}
}

func TestFlagsListsEveryStage(t *testing.T) {
	ctx, svc := newTestContext(t)
	if _, err := svc.CreateWorkflow(context.Background(), "L-1", "R1", "P1"); err != nil {
		t.Fatalf("create workflow: %v", err)
	}

	out, err := runCommand(t, ctx, "flags")
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	for _, sf := range domain.FlagTable() {
		if !strings.Contains(out, string(sf.Stage)) {
			t.Errorf("expected stage %s in output", sf.Stage)
		}
	}
}

func TestFormatTime(t *testing.T) {
	if got := formatTime(nil); got != "-" {
		t.Fatalf("expected dash for nil, got %q", got)
	}
	at := time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)
	if got := formatTime(&at); got != "2026-03-02 09:30" {
		t.Fatalf("unexpected format %q", got)
	}
}
