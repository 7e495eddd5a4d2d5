// Package preflight provides readiness checks for the binaries, filesystem
// paths, and model endpoint that PingAnalyst depends on.
//
// These checks run in two contexts:
//   - The workflow manager calls RunLocal before processing each match. If a
//     check fails the match stays pending instead of failing halfway through
//     extraction.
//   - The CLI "pinganalyst status" command calls RunAll, which adds a model
//     health check, and CheckSystemDeps to display readiness.
package preflight
