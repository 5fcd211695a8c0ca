// Package preflight provides readiness checks for the worker binaries and
// filesystem paths the workflow depends on.
//
// These checks run in two contexts:
//   - "oea run" calls RunAll before stepping the workflow and refuses to start
//     when a required check fails.
//   - "oea status" shows the same results next to the persisted stage state.
//
// Disabled stages contribute no checks.
package preflight
