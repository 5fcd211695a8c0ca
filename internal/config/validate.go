package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateCatalog(); err != nil {
		return err
	}
	if err := c.validateDetection(); err != nil {
		return err
	}
	if err := c.validateAdjustment(); err != nil {
		return err
	}
	if err := c.validateStaging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.WorkDir) == "" {
		return errors.New("paths.work_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StoreDir) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/oea/config.toml"
		}
		return fmt.Errorf("paths.store_dir is required. Edit %s (create with 'oea config init')", defaultPath)
	}
	return nil
}

func (c *Config) validateCatalog() error {
	hasLengths := c.Catalog.LengthsPath != ""
	hasOverlaps := c.Catalog.OverlapsPath != ""
	if hasLengths != hasOverlaps {
		return errors.New("catalog.lengths_path and catalog.overlaps_path must be set together")
	}
	if !hasLengths && c.Paths.SeqStoreDir == "" {
		return errors.New("paths.seq_store_dir is required when catalog files are not configured")
	}
	return nil
}

func (c *Config) validateDetection() error {
	if !c.Detection.Enabled {
		return nil
	}
	if c.Detection.MemoryGiB < 0 {
		return errors.New("detection.memory_gib must not be negative")
	}
	if c.Detection.MaxReads < 0 || c.Detection.MaxBases < 0 {
		return errors.New("detection.max_reads and detection.max_bases must not be negative")
	}
	if c.Detection.ErrorRate < 0 || c.Detection.ErrorRate > 1 {
		return errors.New("detection.error_rate must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateAdjustment() error {
	if !c.Adjustment.Enabled {
		return nil
	}
	if c.Adjustment.MemoryGiB < 0 {
		return errors.New("adjustment.memory_gib must not be negative")
	}
	if c.Adjustment.MaxReads < 0 || c.Adjustment.MaxBases < 0 {
		return errors.New("adjustment.max_reads and adjustment.max_bases must not be negative")
	}
	if c.Adjustment.ErrorRate < 0 || c.Adjustment.ErrorRate > 1 {
		return errors.New("adjustment.error_rate must be between 0 and 1")
	}
	return nil
}

func (c *Config) validateStaging() error {
	switch c.Staging.Backend {
	case stagingBackendLocal:
		return nil
	case stagingBackendGCS:
		if c.Staging.Bucket == "" {
			return errors.New("staging.bucket is required when staging.backend is gcs")
		}
		return nil
	default:
		return fmt.Errorf("staging.backend: unsupported value %q (use local or gcs)", c.Staging.Backend)
	}
}
