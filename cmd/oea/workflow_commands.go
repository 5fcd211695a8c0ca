package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"oea/internal/logging"
	"oea/internal/preflight"
	"oea/internal/services"
	"oea/internal/stage"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var skipPreflight bool
	var poll time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run every phase until the overlap store is committed",
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, s, err := ctx.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if !skipPreflight {
				if failed := preflight.Failed(preflight.RunAll(runCtx, s.cfg)); len(failed) > 0 {
					names := make([]string, 0, len(failed))
					for _, r := range failed {
						names = append(names, fmt.Sprintf("%s: %s", r.Name, r.Detail))
					}
					return services.Wrap(services.ErrConfiguration, "", "preflight", strings.Join(names, "; "), nil)
				}
			}
			if poll <= 0 {
				poll = s.cfg.PollInterval()
			}

			start := time.Now()
			if err := s.controller.Run(runCtx, poll); err != nil {
				details := services.Details(err)
				logging.ErrorWithContext(s.logger, "workflow stopped", "workflow_failed",
					logging.String("kind", details.Kind),
					logging.Bool("fatal", details.Fatal),
					logging.Error(err),
				)
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Overlap store committed (%s)\n", time.Since(start).Round(time.Second))
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Do not verify worker binaries and directories first")
	cmd.Flags().DurationVar(&poll, "poll", 0, "Interval between checks while batches run (default workflow.poll_interval)")
	return cmd
}

func newConfigureCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "configure <detection|adjustment>",
		Short: "Partition a stage and dispatch its batches",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhase(ctx, cmd, args[0], (*stage.Controller).Configure)
		},
	}
}

func newCheckCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "check <detection|adjustment>",
		Short: "Inspect a stage's batches, retrying or aggregating as needed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPhase(ctx, cmd, args[0], (*stage.Controller).Check)
		},
	}
}

type stagePhase func(*stage.Controller, context.Context, stage.Stage) (stage.State, error)

func runPhase(ctx *commandContext, cmd *cobra.Command, arg string, phase stagePhase) error {
	s, err := parseStageArg(arg)
	if err != nil {
		return err
	}
	runCtx, sess, err := ctx.openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()
	state, err := phase(sess.controller, runCtx, s)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", s, state.Label())
	return nil
}

func newCommitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "commit",
		Short: "Load the adjustment manifest into the overlap store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			runCtx, s, err := ctx.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			state, err := s.controller.Commit(runCtx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", state.Label())
			return nil
		},
	}
}

func newResetCommand(ctx *commandContext) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Clear persisted stage, job, and attempt state",
		Long: "Clear persisted stage, job, and attempt state from the queue database.\n" +
			"Artifacts in the work dir are left alone, so configured stages resume\n" +
			"from their descriptors.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !force {
				return errors.New("reset discards retry accounting; pass --force to confirm")
			}
			runCtx, s, err := ctx.openSession(cmd)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.store.Reset(runCtx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Queue state cleared")
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Confirm the reset")
	return cmd
}
