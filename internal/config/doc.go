// Package config loads, normalizes, and validates oea configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OEA_GCS_CREDENTIALS. The Config type centralizes every knob the stage
// controller, partitioner, and CLI need so they receive an explicit value
// instead of consulting global state.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
