package api

import (
	"time"

	"pinganalyst/internal/deps"
	"pinganalyst/internal/store"
	"pinganalyst/internal/workflow"
)

// FromMatch converts a store match into its API representation. A result
// that fails to decode is omitted rather than failing the whole payload.
func FromMatch(match *store.Match) Match {
	if match == nil {
		return Match{}
	}
	dto := Match{
		ID:              match.ID,
		FileName:        match.FileName,
		SourcePath:      match.SourcePath,
		Status:          string(match.Status),
		DurationSeconds: match.DurationSeconds,
		ErrorMessage:    match.ErrorMessage,
		CreatedAt:       FormatTime(match.CreatedAt),
		UpdatedAt:       FormatTime(match.UpdatedAt),
		Progress: MatchProgress{
			ChunksDone:  match.ChunksDone,
			ChunksTotal: match.ChunksTotal,
			Percent:     match.Percent(),
			Message:     match.ProgressMessage,
		},
	}
	if dto.Progress.Message == "" && match.Status == store.StatusPending {
		dto.Progress.Message = "Waiting to start"
	}
	if analysis, ok, err := match.Analysis(); err == nil && ok {
		dto.Analysis = &analysis
	}
	return dto
}

// FromMatches converts a slice of store matches.
func FromMatches(matches []*store.Match) []Match {
	out := make([]Match, 0, len(matches))
	for _, match := range matches {
		if match == nil {
			continue
		}
		out = append(out, FromMatch(match))
	}
	return out
}

// FromStatusSummary converts the workflow diagnostics.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	wf := WorkflowStatus{
		Running:     summary.Running,
		MatchStats:  MergeMatchStats(summary.MatchStats),
		LastError:   summary.LastError,
		Subscribers: summary.Subscribers,
	}
	if summary.LastMatch != nil {
		last := FromMatch(summary.LastMatch)
		wf.LastMatch = &last
	}
	return wf
}

// MergeMatchStats keys status counts by string, filling every status so
// clients can render a fixed set of columns.
func MergeMatchStats(stats map[store.Status]int) map[string]int {
	out := make(map[string]int, len(store.AllStatuses()))
	for _, status := range store.AllStatuses() {
		out[string(status)] = stats[status]
	}
	return out
}

// FromDependencies converts dependency checks.
func FromDependencies(statuses []deps.Status) []DependencyStatus {
	out := make([]DependencyStatus, len(statuses))
	for i, dep := range statuses {
		out[i] = DependencyStatus{
			Name:        dep.Name,
			Command:     dep.Command,
			Description: dep.Description,
			Optional:    dep.Optional,
			Available:   dep.Available,
			Detail:      dep.Detail,
		}
	}
	return out
}

// FormatTime renders t for API payloads; the zero time is empty.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}
