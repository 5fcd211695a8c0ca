// Package aggregate combines per-batch outputs and performs the final commit.
//
// Detection outputs are concatenated byte for byte, in ascending batch order,
// into one artifact. Adjustment outputs are listed in a manifest, one path per
// line, that the commit worker loads into the overlap store. Every artifact is
// written to a temporary name and renamed into place, so a reader sees either
// nothing or the complete result.
package aggregate
