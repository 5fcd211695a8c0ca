// Package submit dispatches batch workers.
//
// A Submitter starts one worker invocation per JobSpec and reports whether a
// handle is still running. The stage controller never inspects worker exit
// codes: a batch succeeded exactly when its fenced output exists. Local runs
// workers as child processes, at most Concurrency at a time, and publishes
// each output by renaming "<out>.tmp" to "<out>" only after a zero exit.
package submit
