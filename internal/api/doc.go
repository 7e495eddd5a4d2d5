// Package api defines wire-format types and converters for the HTTP API
// layer. It translates internal match models into transport-friendly DTOs
// that the CLI and browser clients can render without coupling to internal
// types.
//
// # Key Types
//
// Match: transport representation of a match with progress and, when any
// chunk has been merged, the running analysis.
//
// WorkflowStatus: daemon running state, match counts, and last match.
//
// DaemonStatus: aggregated runtime information including dependencies.
//
// # Converters
//
// FromMatch: store.Match -> Match with progress defaults and the decoded
// analysis.
//
// FromStatusSummary: workflow.StatusSummary -> WorkflowStatus.
//
// # Design Notes
//
// DTOs use camelCase JSON tags for JavaScript/TypeScript consumers, matching
// the analysis object returned by the analyze-match endpoint. Internal enums
// (store.Status) are exposed as lowercase strings. Timestamps use RFC3339
// with milliseconds.
package api
