// Package logs reads the daemon log for `pinganalyst logs` and the daemon's
// /api/logs endpoint.
//
// Offsets always land on a line boundary: a trailing line that is still being
// written is left for the next call. A negative offset asks for the last N
// lines, and follow mode blocks until new lines arrive or the wait elapses.
package logs
