package dashboard

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"time"

	"pinganalyst/internal/stats"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// MatchRow is one line of the match list.
type MatchRow struct {
	ID        int64
	FileName  string
	Status    string
	Message   string
	Percent   float64
	CreatedAt time.Time
}

// IndexPage is the match list with the upload form.
type IndexPage struct {
	Matches       []MatchRow
	UploadLimitMB int
}

// MatchPage is the dashboard of one match. Exactly one of View, Loading and
// Failure is usually set; a failed match with partial results sets both View
// and Failure.
type MatchPage struct {
	ID          int64
	FileName    string
	Status      string
	ChunksDone  int
	ChunksTotal int
	View        *View
	Loading     *LoadingState
	Failure     *FailureState
	// Live subscribes the page to the match's progress stream.
	Live bool
}

// NewMatchPage assembles a page from the match state. analysis may be nil when
// nothing has been merged yet.
func NewMatchPage(id int64, fileName, status, message, errMessage string, done, total int, analysis *stats.Analysis) MatchPage {
	page := MatchPage{
		ID:          id,
		FileName:    fileName,
		Status:      status,
		ChunksDone:  done,
		ChunksTotal: total,
	}
	if analysis != nil {
		view := NewView(*analysis)
		page.View = &view
	}
	switch status {
	case "completed":
	case "failed":
		failure := FailureMessage(errMessage)
		page.Failure = &failure
	default:
		loading := Loading(message)
		page.Loading = &loading
		page.Live = true
	}
	return page
}

// RenderIndex writes the match list page.
func RenderIndex(w io.Writer, page IndexPage) error {
	if err := pages.ExecuteTemplate(w, "index", page); err != nil {
		return fmt.Errorf("render index: %w", err)
	}
	return nil
}

// RenderHTML writes the dashboard page of one match.
func RenderHTML(w io.Writer, page MatchPage) error {
	if err := pages.ExecuteTemplate(w, "match", page); err != nil {
		return fmt.Errorf("render match %d: %w", page.ID, err)
	}
	return nil
}
