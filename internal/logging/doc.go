// Package logging builds the slog loggers used across oea.
//
// Console output puts component, stage, phase and batch in a subject ahead
// of the message; JSON output keeps them as plain keys. Stage controllers
// tee their logger into a per-stage file via NewFileLogger and TeeLogger.
package logging
