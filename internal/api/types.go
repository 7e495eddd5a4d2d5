package api

import "pinganalyst/internal/stats"

// TimeLayout is the RFC3339 layout used for timestamps in API payloads.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Match describes a match in a transport-friendly format.
type Match struct {
	ID              int64           `json:"id"`
	FileName        string          `json:"fileName"`
	SourcePath      string          `json:"sourcePath"`
	Status          string          `json:"status"`
	DurationSeconds float64         `json:"durationSeconds"`
	Progress        MatchProgress   `json:"progress"`
	ErrorMessage    string          `json:"errorMessage,omitempty"`
	CreatedAt       string          `json:"createdAt,omitempty"`
	UpdatedAt       string          `json:"updatedAt,omitempty"`
	Analysis        *stats.Analysis `json:"analysis,omitempty"`
}

// MatchProgress captures chunk progress for a match.
type MatchProgress struct {
	ChunksDone  int     `json:"chunksDone"`
	ChunksTotal int     `json:"chunksTotal"`
	Percent     float64 `json:"percent"`
	Message     string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running     bool           `json:"running"`
	MatchStats  map[string]int `json:"matchStats"`
	LastError   string         `json:"lastError,omitempty"`
	LastMatch   *Match         `json:"lastMatch,omitempty"`
	Subscribers int            `json:"subscribers"`
}

// DependencyStatus captures availability of an external dependency.
type DependencyStatus struct {
	Name        string `json:"name"`
	Command     string `json:"command"`
	Description string `json:"description"`
	Optional    bool   `json:"optional"`
	Available   bool   `json:"available"`
	Detail      string `json:"detail,omitempty"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool               `json:"running"`
	PID          int                `json:"pid"`
	DatabasePath string             `json:"databasePath"`
	LockFilePath string             `json:"lockFilePath"`
	Workflow     WorkflowStatus     `json:"workflow"`
	Dependencies []DependencyStatus `json:"dependencies"`
	StagingFiles int                `json:"stagingFiles"`
	StagingBytes int64              `json:"stagingBytes"`
}

// LogTailResponse carries daemon log lines and the offset to resume from.
type LogTailResponse struct {
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// AnalyzeRequest is the body of the analyze-match endpoint.
type AnalyzeRequest struct {
	Frames []string `json:"frames"`
}

// ErrorResponse is the body of every non-2xx JSON reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MatchListResponse wraps a collection of matches.
type MatchListResponse struct {
	Matches []Match `json:"matches"`
}

// MatchResponse wraps a single match.
type MatchResponse struct {
	Match Match `json:"match"`
}

// AddMatchRequest registers a video already on the daemon's disk.
type AddMatchRequest struct {
	Path string `json:"path"`
	Copy bool   `json:"copy"`
}

// RetryResponse reports how many matches went back to pending.
type RetryResponse struct {
	Updated int64 `json:"updated"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
