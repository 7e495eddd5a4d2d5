package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"pinganalyst/internal/analyzer"
	"pinganalyst/internal/api"
	"pinganalyst/internal/config"
	"pinganalyst/internal/dashboard"
	"pinganalyst/internal/fileutil"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/metrics"
	"pinganalyst/internal/services"
	"pinganalyst/internal/stats"
	"pinganalyst/internal/store"
)

const (
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	uploadField      = "video"
	// multipartOverhead covers form boundaries and part headers around the video.
	multipartOverhead = 1 << 20
)

type apiServer struct {
	bind     string
	token    string
	cors     string
	logger   *slog.Logger
	daemon   *Daemon
	matchSvc *api.MatchService
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.API.Bind),
		token:    strings.TrimSpace(cfg.API.Token),
		cors:     cfg.API.CORSOrigin,
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		matchSvc: api.NewMatchService(d.store),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("OPTIONS /api/analyze-match", srv.handleAnalyzeOptions)
	mux.HandleFunc("POST /api/analyze-match", srv.withCORS(authMiddleware(srv.token, srv.handleAnalyze)))
	mux.HandleFunc("GET /api/matches", authMiddleware(srv.token, srv.handleListMatches))
	mux.HandleFunc("POST /api/matches", authMiddleware(srv.token, srv.handleCreateMatch))
	mux.HandleFunc("GET /api/matches/{id}", authMiddleware(srv.token, srv.handleGetMatch))
	mux.HandleFunc("DELETE /api/matches/{id}", authMiddleware(srv.token, srv.handleDeleteMatch))
	mux.HandleFunc("POST /api/matches/{id}/retry", authMiddleware(srv.token, srv.handleRetryMatch))
	mux.HandleFunc("POST /api/matches/retry", authMiddleware(srv.token, srv.handleRetryAll))
	mux.HandleFunc("GET /api/matches/{id}/stream", authMiddleware(srv.token, srv.handleStream))
	mux.HandleFunc("GET /api/status", authMiddleware(srv.token, srv.handleStatus))
	mux.HandleFunc("GET /api/logs", authMiddleware(srv.token, srv.handleLogs))
	mux.HandleFunc("POST /api/notifications/test", authMiddleware(srv.token, srv.handleTestNotification))
	mux.HandleFunc("GET /{$}", authMiddleware(srv.token, srv.handleIndexPage))
	mux.HandleFunc("GET /matches/{id}", authMiddleware(srv.token, srv.handleMatchPage))
	if cfg.Metrics.Enabled {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	srv.handler = mux
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	// Uploads and model calls outlive any fixed read/write timeout, so only
	// the header read is bounded.
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	s.mu.Lock()
	server := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if server == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}

func (s *apiServer) address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) withCORS(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.setCORSHeaders(w)
		next(w, r)
	}
}

func (s *apiServer) setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", s.cors)
	w.Header().Set("Access-Control-Allow-Headers", corsAllowHeaders)
	w.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS")
}

func (s *apiServer) handleAnalyzeOptions(w http.ResponseWriter, _ *http.Request) {
	s.setCORSHeaders(w)
	w.WriteHeader(http.StatusOK)
}

func (s *apiServer) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	ctx := services.WithRequestID(r.Context(), uuid.NewString())
	logger := logging.WithContext(ctx, s.logger)

	var req api.AnalyzeRequest
	body := http.MaxBytesReader(w, r.Body, s.daemon.cfg.MaxUploadBytes())
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		if tooLarge := new(http.MaxBytesError); errors.As(err, &tooLarge) {
			s.finishAnalyze(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{
				Error: fmt.Sprintf("Frames exceed the %d MB upload limit", s.daemon.cfg.API.MaxUploadMB),
			})
			return
		}
		s.finishAnalyze(w, http.StatusBadRequest, api.ErrorResponse{Error: "Invalid request body"})
		return
	}
	if len(req.Frames) == 0 {
		s.finishAnalyze(w, http.StatusBadRequest, api.ErrorResponse{Error: "No frames provided"})
		return
	}
	if s.daemon.analyzer == nil {
		s.finishAnalyze(w, http.StatusInternalServerError, api.ErrorResponse{Error: "Model provider is not configured"})
		return
	}

	started := time.Now()
	analysis, err := s.daemon.analyzer.AnalyzeFrames(ctx, req.Frames)
	if err != nil {
		status := analyzer.HTTPStatus(err)
		logging.WarnWithContext(logger, "analyze-match request failed", "analyze_request_failed",
			logging.Int("status", status),
			logging.Int("frames", len(req.Frames)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
		s.finishAnalyze(w, status, api.ErrorResponse{Error: analyzer.PublicMessage(err)})
		return
	}
	logger.Info("analyze-match request served",
		logging.String(logging.FieldEventType, "analyze_request_served"),
		logging.Int("frames", len(req.Frames)),
		logging.Duration("elapsed", time.Since(started)),
	)
	s.finishAnalyze(w, http.StatusOK, analysis)
}

func (s *apiServer) finishAnalyze(w http.ResponseWriter, status int, payload any) {
	metrics.AnalyzeRequestsTotal.WithLabelValues(strconv.Itoa(status)).Inc()
	s.writeJSON(w, status, payload)
}

func (s *apiServer) handleListMatches(w http.ResponseWriter, r *http.Request) {
	var statuses []store.Status
	for _, value := range r.URL.Query()["status"] {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		status, ok := store.ParseStatus(trimmed)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", trimmed))
			return
		}
		statuses = append(statuses, status)
	}
	matches, err := s.matchSvc.List(r.Context(), statuses...)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.MatchListResponse{Matches: matches})
}

func (s *apiServer) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		s.handleAddFile(w, r)
		return
	}

	limit := s.daemon.cfg.MaxUploadBytes()
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	reader, err := r.MultipartReader()
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "expected multipart form with a video field")
		return
	}

	for {
		part, err := reader.NextPart()
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "missing video field")
			return
		}
		if part.FormName() != uploadField {
			_ = part.Close()
			continue
		}
		if !strings.HasPrefix(part.Header.Get("Content-Type"), "video/") {
			_ = part.Close()
			s.writeError(w, http.StatusUnsupportedMediaType, "Please upload a video file")
			return
		}
		match, err := s.daemon.StageUpload(r.Context(), part.FileName(), part, r.ContentLength)
		_ = part.Close()
		if err != nil {
			s.writeStageError(w, err)
			return
		}
		if wantsHTML(r) {
			http.Redirect(w, r, fmt.Sprintf("/matches/%d", match.ID), http.StatusSeeOther)
			return
		}
		s.writeJSON(w, http.StatusCreated, api.MatchResponse{Match: api.FromMatch(match)})
		return
	}
}

func (s *apiServer) handleAddFile(w http.ResponseWriter, r *http.Request) {
	var req api.AddMatchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	match, err := s.daemon.AddFile(r.Context(), req.Path, req.Copy)
	if err != nil {
		s.writeStageError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, api.MatchResponse{Match: api.FromMatch(match)})
}

func (s *apiServer) writeStageError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.Is(err, fileutil.ErrTooLarge), errors.As(err, &maxErr):
		s.writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Video exceeds the %d MB upload limit", s.daemon.cfg.API.MaxUploadMB))
	case errors.Is(err, ErrUnsupportedVideo):
		s.writeError(w, http.StatusUnsupportedMediaType, "Please upload a video file")
	case errors.Is(err, ErrInsufficientSpace):
		s.writeError(w, http.StatusInsufficientStorage, "Not enough free space to store the video")
	default:
		logging.WarnWithContext(s.logger, "failed to stage video", "stage_video_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check staging directory permissions"),
		)
		s.writeError(w, http.StatusBadRequest, err.Error())
	}
}

func (s *apiServer) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	match, err := s.matchSvc.Describe(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if match == nil {
		s.writeError(w, http.StatusNotFound, "match not found")
		return
	}
	s.writeJSON(w, http.StatusOK, api.MatchResponse{Match: *match})
}

func (s *apiServer) handleDeleteMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	switch err := s.daemon.RemoveMatch(r.Context(), id); {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, ErrMatchNotFound):
		s.writeError(w, http.StatusNotFound, "match not found")
	case errors.Is(err, ErrMatchBusy):
		s.writeError(w, http.StatusConflict, "match is being analyzed")
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) handleRetryMatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.matchID(w, r)
	if !ok {
		return
	}
	if _, err := s.daemon.GetMatch(r.Context(), id); err != nil {
		if errors.Is(err, ErrMatchNotFound) {
			s.writeError(w, http.StatusNotFound, "match not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	updated, err := s.daemon.RetryMatches(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RetryResponse{Updated: updated})
}

func (s *apiServer) handleRetryAll(w http.ResponseWriter, r *http.Request) {
	updated, err := s.daemon.RetryMatches(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.RetryResponse{Updated: updated})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, api.DaemonStatus{
		Running:      status.Running,
		PID:          status.PID,
		DatabasePath: status.DatabasePath,
		LockFilePath: status.LockFilePath,
		Workflow:     api.FromStatusSummary(status.Workflow),
		Dependencies: api.FromDependencies(status.Dependencies),
		StagingFiles: status.Staging.Files,
		StagingBytes: status.Staging.Bytes,
	})
}

func (s *apiServer) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	sent, message, err := s.daemon.TestNotification(r.Context())
	if err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Sprintf("%s: %v", message, err))
		return
	}
	s.writeJSON(w, http.StatusOK, api.NotificationResponse{Sent: sent, Message: message})
}

func (s *apiServer) handleIndexPage(w http.ResponseWriter, r *http.Request) {
	matches, err := s.daemon.ListMatches(r.Context(), nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	page := dashboard.IndexPage{UploadLimitMB: s.daemon.cfg.API.MaxUploadMB}
	for _, match := range matches {
		page.Matches = append(page.Matches, dashboard.MatchRow{
			ID:        match.ID,
			FileName:  match.FileName,
			Status:    string(match.Status),
			Message:   match.ProgressMessage,
			Percent:   match.Percent(),
			CreatedAt: match.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboard.RenderIndex(w, page); err != nil {
		s.logger.Error("failed to render index", logging.Error(err))
	}
}

func (s *apiServer) handleMatchPage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	match, err := s.daemon.GetMatch(r.Context(), id)
	if errors.Is(err, ErrMatchNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	var analysis *stats.Analysis
	if decoded, ok, decodeErr := match.Analysis(); decodeErr == nil && ok {
		analysis = &decoded
	}
	page := dashboard.NewMatchPage(match.ID, match.FileName, string(match.Status), match.ProgressMessage,
		match.ErrorMessage, match.ChunksDone, match.ChunksTotal, analysis)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := dashboard.RenderHTML(w, page); err != nil {
		s.logger.Error("failed to render match page", logging.Int64(logging.FieldMatchID, id), logging.Error(err))
	}
}

func (s *apiServer) matchID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid match id")
		return 0, false
	}
	return id, true
}

func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
