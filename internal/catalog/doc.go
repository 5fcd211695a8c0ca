// Package catalog builds the dense per-read cost vectors the partitioner
// consumes.
//
// Two line-oriented streams feed it: read lengths and per-read overlap
// counts, each indexed by read id. A Source opens those streams, either from
// pre-dumped files or by running the store dump utility. Load fills arrays
// sized maxID+1 and keeps a parallel validity marker for the length channel,
// so "never loaded" and "loaded with zero overlaps" stay distinguishable.
// A read with length zero is not a real read and never contributes to any
// total, whatever its overlap count says.
package catalog
