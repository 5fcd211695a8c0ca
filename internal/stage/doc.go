// Package stage drives the two-stage error adjustment workflow.
//
// A Controller runs five idempotent phases in order: detection-configure,
// detection-check, adjustment-configure, adjustment-check, and commit.
// Configure partitions the read id space, writes a durable job descriptor, and
// dispatches one worker per batch. Check waits for workers, accepts only
// outputs fenced with a job's current attempt token, resubmits failed batches
// while the shared attempt counter allows, and aggregates the stage once every
// batch has produced output. Commit loads the adjustment manifest into the
// overlap store exactly once.
//
// Every phase begins with the same guard clauses. A disabled stage is
// skipped; the overlap store commit marker, any downstream artifact, or the
// stage's own terminal artifact means the stage is done. Because these checks
// consult durable artifacts through the staging boundary, any phase can be
// re-entered after a crash or on another host and will either resume or
// short-circuit.
package stage
