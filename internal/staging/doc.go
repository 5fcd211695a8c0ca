// Package staging is the durable boundary between the work dir and wherever
// artifacts must survive the run.
//
// Every completion marker (job descriptors, merged artifacts, the adjustment
// manifest, the commit marker) is published through a Stager and tested with
// Exists, so a run resumed on another host sees the same progress. Local keeps
// artifacts on the filesystem, optionally mirroring them into a second
// directory with verified copies. GCS mirrors them into a Cloud Storage bucket
// under a prefix.
//
// CleanStaleAttempts removes outputs and logs left by superseded attempts
// once a stage has accepted its final set.
package staging
