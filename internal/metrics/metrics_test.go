package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandlerExposesCollectors(t *testing.T) {
	ChunksAnalyzedTotal.WithLabelValues("success").Inc()
	MatchesFinishedTotal.WithLabelValues("completed").Inc()
	FramesExtractedTotal.Add(3)

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Result().Body)
	text := string(body)
	for _, name := range []string{
		"pinganalyst_chunks_analyzed_total",
		"pinganalyst_matches_finished_total",
		"pinganalyst_frames_extracted_total",
		"pinganalyst_active_matches",
	} {
		if !strings.Contains(text, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
