package daemon

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"pinganalyst/internal/api"
	"pinganalyst/internal/logs"
)

const (
	defaultLogLines = 100
	maxLogLines     = 1000
	logFollowWait   = 20 * time.Second
)

// handleLogs serves the daemon log. Query parameters: offset (negative for
// the last `lines` lines), lines, and follow.
func (s *apiServer) handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	offset := int64(-1)
	if raw := query.Get("offset"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid offset")
			return
		}
		offset = v
	}
	lines := defaultLogLines
	if raw := query.Get("lines"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, "invalid lines")
			return
		}
		lines = min(v, maxLogLines)
	}
	follow, _ := strconv.ParseBool(query.Get("follow"))

	result, err := logs.Tail(r.Context(), logs.CurrentPath(s.daemon.cfg.Paths.LogDir), logs.TailOptions{
		Offset: offset,
		Limit:  lines,
		Follow: follow,
		Wait:   logFollowWait,
	})
	if err != nil && !errors.Is(err, r.Context().Err()) {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if result.Lines == nil {
		result.Lines = []string{}
	}
	s.writeJSON(w, http.StatusOK, api.LogTailResponse{Lines: result.Lines, Offset: result.Offset})
}
