package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/workflow/domain"
	"leadflow_backend/internal/workflow/service"
	"leadflow_backend/migrations"
	"leadflow_backend/platform/db"

	"github.com/spf13/cobra"
)

const timeLayout = "2006-01-02 15:04"

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := ctx.ensurePool(cmd.Context())
			if err != nil {
				return err
			}
			if err := db.RunMigrations(cmd.Context(), pool, migrations.Files, ctx.logOrDiscard()); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSweepCommand(ctx *commandContext) *cobra.Command {
	var async bool

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run an escalation sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if async {
				queue, err := ctx.ensureQueue()
				if err != nil {
					return err
				}
				taskID, err := queue.EnqueueSweep(cmd.Context(), "leadflowctl")
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "sweep queued as task %s\n", taskID)
				return nil
			}

			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.RunEscalationSweep(cmd.Context(), service.TriggerManual)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderSweep(res))
			return nil
		},
	}

	cmd.Flags().BoolVar(&async, "async", false, "Queue the sweep for the scheduler worker instead of running it here")
	return cmd
}

func newShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <leadId>",
		Short: "Display a lead's workflow state and communication ledger",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			leadID := strings.TrimSpace(args[0])
			state, err := svc.GetWorkflow(cmd.Context(), leadID)
			if err != nil {
				return err
			}
			records, err := svc.ListCommunications(cmd.Context(), leadID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderState(state))
			if len(records) == 0 {
				fmt.Fprintln(out, "no communications recorded")
				return nil
			}
			fmt.Fprintln(out, renderLedger(records))
			return nil
		},
	}
}

func newFlagsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "flags",
		Short: "Count leads per stage and flag",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.ensureService(cmd.Context())
			if err != nil {
				return err
			}
			counts, err := svc.FlagSummary(cmd.Context())
			if err != nil {
				return err
			}
			rows := make([][]string, 0, len(counts))
			for _, fc := range counts {
				rows = append(rows, []string{string(fc.Stage), string(fc.Flag), strconv.Itoa(fc.Count)})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Stage", "Flag", "Leads"}, rows, []columnAlignment{alignLeft, alignLeft, alignRight}))
			return nil
		},
	}
}

func renderSweep(res service.SweepResult) string {
	rows := [][]string{
		{"Processed", strconv.Itoa(res.Processed)},
		{"Reminded", strconv.Itoa(res.Reminded)},
		{"Escalated", strconv.Itoa(res.Escalated)},
		{"Errors", strconv.Itoa(res.Errors)},
		{"Stopped early", strconv.FormatBool(res.Stopped)},
		{"Took", res.FinishedAt.Sub(res.StartedAt).Round(time.Millisecond).String()},
	}
	return renderTable([]string{"Sweep", ""}, rows, []columnAlignment{alignLeft, alignRight})
}

func renderState(s domain.WorkflowState) string {
	rows := [][]string{
		{"Lead", s.LeadID},
		{"Stage", string(s.CurrentStage)},
		{"Flag", string(s.Flag())},
		{"Assignee", fmt.Sprintf("%s %s", s.AssigneeType, s.AssigneeID)},
		{"RM", s.RMID},
		{"PSM", s.PSMID},
		{"Escalation level", strconv.Itoa(s.EscalationLevel)},
		{"Stage changed", formatTime(&s.LastStageChangeAt)},
		{"Last communication", formatTime(&s.LastCommunicationAt)},
		{"Next follow-up", formatTime(s.NextFollowUpAt)},
		{"Last reminder", formatTime(s.LastReminderAt)},
	}
	if s.DroppedReason != "" {
		rows = append(rows, []string{"Dropped reason", s.DroppedReason})
	}
	return renderTable([]string{"Workflow", ""}, rows, nil)
}

func renderLedger(records []domain.CommunicationRecord) string {
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		rows = append(rows, []string{
			strconv.FormatInt(rec.Seq, 10),
			formatTime(&rec.OccurredAt),
			string(rec.Type),
			fmt.Sprintf("%s %s", rec.SenderType, rec.SenderID),
			rec.RecipientID,
			strings.Join(rec.CcIDs, ", "),
			rec.Title,
		})
	}
	return renderTable(
		[]string{"#", "When", "Type", "From", "To", "Cc", "Title"},
		rows,
		[]columnAlignment{alignRight},
	)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(timeLayout)
}
