package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeCatalog(); err != nil {
		return err
	}
	c.normalizeStages()
	c.normalizeWorkflow()
	if err := c.normalizeStaging(); err != nil {
		return err
	}
	if err := c.normalizeMetrics(); err != nil {
		return err
	}
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.WorkDir, err = expandPath(strings.TrimSpace(c.Paths.WorkDir)); err != nil {
		return fmt.Errorf("paths.work_dir: %w", err)
	}
	if c.Paths.StoreDir, err = expandPath(strings.TrimSpace(c.Paths.StoreDir)); err != nil {
		return fmt.Errorf("paths.store_dir: %w", err)
	}
	if c.Paths.SeqStoreDir, err = expandPath(strings.TrimSpace(c.Paths.SeqStoreDir)); err != nil {
		return fmt.Errorf("paths.seq_store_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	artifacts := make([]string, 0, len(c.Paths.DownstreamArtifacts))
	for _, artifact := range c.Paths.DownstreamArtifacts {
		artifact = strings.TrimSpace(artifact)
		if artifact == "" {
			continue
		}
		expanded, err := expandPath(artifact)
		if err != nil {
			return fmt.Errorf("paths.downstream_artifacts: %w", err)
		}
		artifacts = append(artifacts, expanded)
	}
	c.Paths.DownstreamArtifacts = artifacts
	return nil
}

func (c *Config) normalizeCatalog() error {
	var err error
	if c.Catalog.LengthsPath, err = expandPath(strings.TrimSpace(c.Catalog.LengthsPath)); err != nil {
		return fmt.Errorf("catalog.lengths_path: %w", err)
	}
	if c.Catalog.OverlapsPath, err = expandPath(strings.TrimSpace(c.Catalog.OverlapsPath)); err != nil {
		return fmt.Errorf("catalog.overlaps_path: %w", err)
	}
	c.Catalog.DumpBinary = strings.TrimSpace(c.Catalog.DumpBinary)
	if c.Catalog.DumpBinary == "" {
		c.Catalog.DumpBinary = defaultDumpBinary
	}
	if c.Catalog.MaxID < 0 {
		c.Catalog.MaxID = 0
	}
	return nil
}

func (c *Config) normalizeStages() {
	c.Detection.Binary = strings.TrimSpace(c.Detection.Binary)
	if c.Detection.Binary == "" {
		c.Detection.Binary = defaultDetectionBinary
	}
	if c.Detection.WindowSize <= 0 {
		c.Detection.WindowSize = defaultWindowSize
	}
	if c.Detection.MinOverlapLength <= 0 {
		c.Detection.MinOverlapLength = defaultMinOverlapLength
	}

	c.Adjustment.Binary = strings.TrimSpace(c.Adjustment.Binary)
	if c.Adjustment.Binary == "" {
		c.Adjustment.Binary = defaultAdjustmentBinary
	}
	if c.Adjustment.MaxReadLength <= 0 {
		c.Adjustment.MaxReadLength = defaultMaxReadLength
	}
	if c.Adjustment.MinOverlapLength <= 0 {
		c.Adjustment.MinOverlapLength = defaultMinOverlapLength
	}

	c.Commit.Binary = strings.TrimSpace(c.Commit.Binary)
	if c.Commit.Binary == "" {
		c.Commit.Binary = defaultCommitBinary
	}
	c.Commit.MarkerName = strings.TrimSpace(c.Commit.MarkerName)
	if c.Commit.MarkerName == "" {
		c.Commit.MarkerName = defaultMarkerName
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxAttempts <= 0 {
		c.Workflow.MaxAttempts = defaultMaxAttempts
	}
	if c.Workflow.PollInterval <= 0 {
		c.Workflow.PollInterval = defaultPollInterval
	}
	if c.Workflow.Concurrency <= 0 {
		c.Workflow.Concurrency = defaultConcurrency
	}
}

func (c *Config) normalizeStaging() error {
	c.Staging.Backend = strings.ToLower(strings.TrimSpace(c.Staging.Backend))
	if c.Staging.Backend == "" {
		c.Staging.Backend = stagingBackendLocal
	}
	c.Staging.Bucket = strings.TrimSpace(c.Staging.Bucket)
	c.Staging.Prefix = strings.Trim(strings.TrimSpace(c.Staging.Prefix), "/")
	c.Staging.CredentialsFile = strings.TrimSpace(c.Staging.CredentialsFile)
	if c.Staging.CredentialsFile == "" {
		if value, ok := os.LookupEnv(gcsCredentialsEnv); ok {
			c.Staging.CredentialsFile = strings.TrimSpace(value)
		} else if value, ok := os.LookupEnv(googleApplicationCredentials); ok {
			c.Staging.CredentialsFile = strings.TrimSpace(value)
		}
	}
	if c.Staging.CredentialsFile != "" {
		var err error
		if c.Staging.CredentialsFile, err = expandPath(c.Staging.CredentialsFile); err != nil {
			return fmt.Errorf("staging.credentials_file: %w", err)
		}
	}
	if c.Staging.MirrorDir = strings.TrimSpace(c.Staging.MirrorDir); c.Staging.MirrorDir != "" {
		var err error
		if c.Staging.MirrorDir, err = expandPath(c.Staging.MirrorDir); err != nil {
			return fmt.Errorf("staging.mirror_dir: %w", err)
		}
	}
	return nil
}

func (c *Config) normalizeMetrics() error {
	var err error
	if c.Metrics.Textfile, err = expandPath(strings.TrimSpace(c.Metrics.Textfile)); err != nil {
		return fmt.Errorf("metrics.textfile: %w", err)
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
