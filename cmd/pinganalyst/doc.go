// Command pinganalyst analyzes table tennis match videos.
//
// `pinganalyst analyze` runs the sampling and model pipeline locally and
// prints the merged dashboard. `pinganalyst serve` runs the daemon that owns
// the match store and HTTP API; the `start`, `stop`, `matches`, and
// `test-notify` commands talk to that daemon.
package main
