// Package daemon coordinates the long-running PingAnalyst process.
//
// It wires configuration, the match store, the workflow manager, and the HTTP
// surface into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon stages uploaded videos, exposes match maintenance
// helpers, serves the analyze-match endpoint and the dashboard, and reports
// dependency health.
//
// Keep orchestration logic here: extraction and analysis live in their own
// packages while the daemon focuses on startup, shutdown, and request
// handling.
package daemon
