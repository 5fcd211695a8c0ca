// Package queue persists orchestration state in SQLite.
//
// The Store records the lifecycle state of each stage, one job record per
// dispatched batch, the shared attempt counter, and a log of batch failures
// collected across attempts. Job records live only between dispatch and
// merge; the stage controller deletes them once a stage's outputs are
// aggregated.
//
// The database is transient bookkeeping for an in-flight run, not an
// archive. Durable progress markers (job descriptors, merged artifacts, the
// commit marker) live on disk and always win over what the database says.
// The schema version lives in PRAGMA user_version; a mismatch is reported
// rather than migrated, and `oea reset --force` or deleting the file
// recovers.
package queue
