// Package services defines shared utilities consumed by the stage controller
// and its external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp stage names, phases, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that classify failures
//     (data unavailable, batch worker failure, aggregation failure) so the
//     controller and CLI can decide between retry and abort uniformly.
//
// Use these helpers when wiring new stage logic so operational behaviour
// (error handling, observability, retries) stays uniform across the pipeline.
package services
