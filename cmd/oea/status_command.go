package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"oea/internal/preflight"
	"oea/internal/queue"
	"oea/internal/stage"
	"oea/internal/staging"
)

type statusOutput struct {
	Config    string               `json:"config"`
	Workflow  stage.Report         `json:"workflow"`
	Database  queue.DatabaseHealth `json:"database"`
	WorkFiles int                  `json:"work_files"`
	WorkBytes int64                `json:"work_bytes"`
	Preflight []preflight.Result   `json:"preflight"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show persisted stage state, attempt accounting, and dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, s, err := ctx.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			report, err := s.controller.Status(runCtx)
			if err != nil {
				return err
			}
			health, healthErr := s.store.CheckHealth(runCtx)
			if healthErr != nil && health.Error == "" {
				health.Error = healthErr.Error()
			}
			files, size, err := staging.DirUsage(s.cfg.Paths.WorkDir)
			if err != nil {
				return fmt.Errorf("measure work dir: %w", err)
			}
			output := statusOutput{
				Config:    ctx.configPath,
				Workflow:  report,
				Database:  health,
				WorkFiles: files,
				WorkBytes: size,
				Preflight: preflight.RunAll(runCtx, s.cfg),
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, output)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderStatus(output, shouldColorize(out)))
			return nil
		},
	}
}

var stageColumns = []column{
	{title: "Stage"},
	{title: "State"},
	{title: "Batches", right: true},
	{title: "Pending", right: true},
	{title: "Done", right: true},
	{title: "Failed", right: true},
	{title: "Failures", right: true},
	{title: "Budget", right: true},
	{title: "Updated"},
}

func renderStatus(o statusOutput, colorize bool) string {
	var lines []string
	lines = append(lines, renderSectionHeader("Workflow", colorize)...)
	lines = append(lines, fmt.Sprintf("%sConfig: %s", statusIndent, o.Config))
	attemptKind := statusInfo
	if o.Workflow.Attempt >= o.Workflow.MaxAttempts && o.Workflow.Attempt > 0 {
		attemptKind = statusWarn
	}
	lines = append(lines, renderStatusLine("Attempt", attemptKind, fmt.Sprintf("%d of %d", o.Workflow.Attempt, o.Workflow.MaxAttempts), colorize))
	commitKind := statusInfo
	if o.Workflow.Committed {
		commitKind = statusOK
	}
	lines = append(lines, renderStatusLine("Committed", commitKind, yesNo(o.Workflow.Committed), colorize))
	for _, st := range o.Workflow.Stages {
		message := st.State.Label()
		if st.Error != "" {
			message += " (" + firstLine(st.Error) + ")"
		}
		lines = append(lines, renderStatusLine(st.Name, stateKind(st), message, colorize))
	}

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Stages", colorize)...)
	rows := make([][]string, 0, len(o.Workflow.Stages))
	for _, st := range o.Workflow.Stages {
		budget, updated := "-", "-"
		if st.Budget > 0 {
			budget = humanize.IBytes(uint64(st.Budget))
		}
		if !st.UpdatedAt.IsZero() {
			updated = humanize.Time(st.UpdatedAt)
		}
		rows = append(rows, []string{
			st.Name,
			st.State.Label(),
			strconv.Itoa(st.Batches),
			strconv.Itoa(st.Jobs[queue.JobPending]),
			strconv.Itoa(st.Jobs[queue.JobSuccess]),
			strconv.Itoa(st.Jobs[queue.JobFailed]),
			strconv.Itoa(st.Failures),
			budget,
			updated,
		})
	}
	lines = append(lines, renderTable(stageColumns, rows))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Storage", colorize)...)
	dbKind := statusOK
	dbMessage := fmt.Sprintf("%s (schema v%d)", o.Database.DBPath, o.Database.SchemaVersion)
	if o.Database.Error != "" || !o.Database.IntegrityCheck || len(o.Database.MissingTables) > 0 {
		dbKind = statusError
		if o.Database.Error != "" {
			dbMessage += ": " + o.Database.Error
		} else if len(o.Database.MissingTables) > 0 {
			dbMessage += ": missing " + strings.Join(o.Database.MissingTables, ", ")
		} else {
			dbMessage += ": integrity check failed"
		}
	}
	lines = append(lines, renderStatusLine("Queue database", dbKind, dbMessage, colorize))
	lines = append(lines, renderStatusLine("Work directory", statusInfo,
		fmt.Sprintf("%s files, %s", humanize.Comma(int64(o.WorkFiles)), humanize.IBytes(uint64(o.WorkBytes))), colorize))

	lines = append(lines, "")
	lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
	for _, r := range o.Preflight {
		kind := statusOK
		if !r.Passed {
			kind = statusError
			if r.Optional {
				kind = statusWarn
			}
		}
		lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
	}
	return strings.Join(lines, "\n")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
