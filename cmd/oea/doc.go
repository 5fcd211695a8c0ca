// Package main hosts the oea CLI entrypoint and command graph.
//
// The Cobra command tree exposes the workflow phases individually
// (configure, check, commit), the full poll loop (run), a dry-run partition
// report, persisted status, and configuration scaffolding. Configuration
// resolution and controller wiring live in context.go so subcommands only
// decide what to call and how to render it.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through a command or flag here.
package main
