// Package fileutil provides file copy, concatenation, and atomic write
// helpers shared by the staging and aggregation layers.
package fileutil
