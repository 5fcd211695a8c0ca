package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"oea/internal/partition"
)

func newPartitionCommand(ctx *commandContext) *cobra.Command {
	var plain bool
	cmd := &cobra.Command{
		Use:   "partition <detection|adjustment>",
		Short: "Print the batch partition a stage would use, without dispatching",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := parseStageArg(args[0])
			if err != nil {
				return err
			}
			runCtx, sess, err := ctx.openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			plan, err := sess.controller.Plan(runCtx, s)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, plan)
			}
			out := cmd.OutOrStdout()
			if err := partition.Report(out, plan.Batches, partition.ReportOptions{
				Title: fmt.Sprintf("%s partition of ids 1-%s", s, humanize.Comma(int64(plan.MaxID))),
				Plain: plain || !shouldColorize(out),
			}); err != nil {
				return err
			}
			budget := "unlimited"
			if plan.Budget > 0 {
				budget = humanize.IBytes(uint64(plan.Budget))
			}
			fmt.Fprintf(out, "Memory budget: %s", budget)
			if plan.Rounds > 0 {
				fmt.Fprintf(out, " (widened %d times)", plan.Rounds)
			}
			fmt.Fprintln(out)
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Render the table with ASCII borders")
	return cmd
}
