// Package logs tails stage and commit log files for the CLI.
//
// A negative offset returns the last Limit lines; a non-negative offset reads
// forward from that byte position. Follow mode polls until new lines arrive
// or Wait elapses, so `oea logs --follow` can stream a running stage.
package logs
