// Package workflow drives stored matches through frame extraction and chunked
// analysis.
//
// The Manager polls the store for pending matches and processes one at a time:
// it probes and samples the video, sends each chunk through the pipeline
// uploader, records every merged chunk so an interrupted match resumes where it
// stopped, and publishes progress to the in-memory hub the daemon streams from.
// Heartbeats mark in-flight matches so a crashed daemon's work is reclaimed.
package workflow
