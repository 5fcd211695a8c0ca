package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"oea/internal/aggregate"
	"oea/internal/config"
	"oea/internal/logging"
	"oea/internal/metrics"
	"oea/internal/queue"
	"oea/internal/services"
	"oea/internal/stage"
	"oea/internal/staging"
	"oea/internal/submit"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
	})
	return c.config, c.configErr
}

// JSONMode reports whether --json was given.
func (c *commandContext) JSONMode() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

// session holds the collaborators of one command invocation.
type session struct {
	cfg        *config.Config
	logger     *slog.Logger
	store      *queue.Store
	stager     staging.Stager
	controller *stage.Controller
}

func (s *session) Close() {
	if s.stager != nil {
		if err := s.stager.Close(); err != nil {
			s.logger.Warn("failed to close stager", logging.Error(err))
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn("failed to close queue store", logging.Error(err))
		}
	}
}

// openSession wires a stage controller from the loaded config. The returned
// context carries a per-invocation correlation id.
func (c *commandContext) openSession(cmd *cobra.Command) (context.Context, *session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	ctx := services.WithRequestID(cmd.Context(), uuid.NewString())

	s := &session{cfg: cfg, logger: logger}
	if s.store, err = queue.Open(cfg); err != nil {
		return nil, nil, fmt.Errorf("open queue store: %w", err)
	}
	if s.stager, err = staging.New(ctx, cfg, logger); err != nil {
		s.Close()
		return nil, nil, fmt.Errorf("open staging backend: %w", err)
	}
	layout := stage.Layout{WorkDir: cfg.Paths.WorkDir}
	s.controller, err = stage.New(stage.Options{
		Config:    cfg,
		Store:     s.store,
		Stager:    s.stager,
		Submitter: submit.NewLocal(cfg.Workflow.Concurrency, logger),
		Committer: &aggregate.StoreCommitter{
			Binary:     cfg.Commit.Binary,
			MarkerPath: cfg.MarkerPath(),
			LogPath:    layout.CommitLog(),
			Stager:     s.stager,
			Logger:     logger,
		},
		Metrics: metrics.New(),
		Logger:  logger,
	})
	if err != nil {
		s.Close()
		return nil, nil, err
	}
	return ctx, s, nil
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func parseStageArg(arg string) (stage.Stage, error) {
	s, ok := stage.ParseStage(arg)
	if !ok {
		return "", fmt.Errorf("unknown stage %q (use detection or adjustment)", arg)
	}
	return s, nil
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
