package store

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"pinganalyst/internal/stats"
)

// Status represents the lifecycle of a match.
type Status string

const (
	StatusPending    Status = "pending"
	StatusExtracting Status = "extracting"
	StatusAnalyzing  Status = "analyzing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DaemonStopReason is the error message set when in-flight matches are
// interrupted by shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusPending,
	StatusExtracting,
	StatusAnalyzing,
	StatusCompleted,
	StatusFailed,
}

var processingStatuses = map[Status]struct{}{
	StatusExtracting: {},
	StatusAnalyzing:  {},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus converts user input into a Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == normalized {
			return status, true
		}
	}
	return "", false
}

// IsProcessing reports whether the status is an in-flight state.
func (s Status) IsProcessing() bool {
	_, ok := processingStatuses[s]
	return ok
}

// IsTerminal reports whether no more work will happen without a retry.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Match is one uploaded video and its analysis state.
type Match struct {
	ID              int64      `json:"id"`
	SourcePath      string     `json:"source_path"`
	FileName        string     `json:"file_name"`
	Status          Status     `json:"status"`
	DurationSeconds float64    `json:"duration_seconds"`
	ChunksTotal     int        `json:"chunks_total"`
	ChunksDone      int        `json:"chunks_done"`
	ProgressMessage string     `json:"progress_message,omitempty"`
	ResultJSON      string     `json:"-"`
	ErrorMessage    string     `json:"error_message,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastHeartbeat   *time.Time `json:"last_heartbeat,omitempty"`
}

// Percent is the share of chunks merged, 0 to 100.
func (m *Match) Percent() float64 {
	if m == nil || m.ChunksTotal <= 0 {
		return 0
	}
	pct := float64(m.ChunksDone) / float64(m.ChunksTotal) * 100
	if pct > 100 {
		return 100
	}
	return pct
}

// Analysis decodes the stored running analysis. ok is false when nothing has
// been merged yet.
func (m *Match) Analysis() (analysis stats.Analysis, ok bool, err error) {
	if m == nil || strings.TrimSpace(m.ResultJSON) == "" {
		return stats.Empty(), false, nil
	}
	if err := json.Unmarshal([]byte(m.ResultJSON), &analysis); err != nil {
		return stats.Empty(), false, fmt.Errorf("decode match %d result: %w", m.ID, err)
	}
	return analysis, true, nil
}

// SetAnalysis stores analysis as the running result.
func (m *Match) SetAnalysis(analysis stats.Analysis) error {
	data, err := json.Marshal(analysis)
	if err != nil {
		return fmt.Errorf("encode analysis: %w", err)
	}
	m.ResultJSON = string(data)
	return nil
}

// ChunkResult is the analysis of one chunk of a match.
type ChunkResult struct {
	MatchID      int64          `json:"match_id"`
	ChunkIndex   int            `json:"chunk_index"`
	StartSeconds float64        `json:"start_seconds"`
	EndSeconds   float64        `json:"end_seconds"`
	FrameCount   int            `json:"frame_count"`
	Attempts     int            `json:"attempts"`
	Analysis     stats.Analysis `json:"analysis"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Summary aggregates match counts for status output.
type Summary struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}
