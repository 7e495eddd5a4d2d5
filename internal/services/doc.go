// Package services defines shared utilities consumed by the workflow and the
// external integrations under it (ffmpeg, LLM backends).
//
// Key responsibilities:
//   - Context helpers that stamp match IDs, chunk positions and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that tag failures with a
//     phase and operation, and Hint which turns a marker into an operator
//     hint for logs.
package services
