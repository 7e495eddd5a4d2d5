// Package logging assembles structured slog loggers and formatting helpers used
// across PingAnalyst.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with match IDs, chunk positions and
// correlation IDs. A no-op logger is provided for tests and for wiring code
// that must not fail.
package logging
