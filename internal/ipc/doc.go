// Package ipc is the CLI's client for the daemon's HTTP API.
//
// Calls carry the configured bearer token and decode the DTOs from package
// api. Every call takes a context; Dial probes the daemon so CLI commands fail
// fast when it is offline. Stream follows a match's progress over the
// websocket endpoint.
package ipc
