package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"pinganalyst/internal/config"
	"pinganalyst/internal/deps"
	"pinganalyst/internal/fileutil"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/notifications"
	"pinganalyst/internal/pipeline"
	"pinganalyst/internal/preflight"
	"pinganalyst/internal/staging"
	"pinganalyst/internal/store"
	"pinganalyst/internal/workflow"
)

var videoExtensions = map[string]struct{}{
	".mp4":  {},
	".mov":  {},
	".mkv":  {},
	".webm": {},
	".avi":  {},
	".m4v":  {},
}

var (
	// ErrMatchNotFound is returned for unknown match ids.
	ErrMatchNotFound = errors.New("match not found")
	// ErrMatchBusy is returned when removing a match that is being analyzed.
	ErrMatchBusy = errors.New("match is being analyzed")
	// ErrUnsupportedVideo is returned for files without a known video extension.
	ErrUnsupportedVideo = errors.New("unsupported video file")
	// ErrInsufficientSpace is returned when the staging volume cannot hold an upload.
	ErrInsufficientSpace = errors.New("insufficient free space in staging directory")
)

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	workflow *workflow.Manager
	analyzer pipeline.Analyzer
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool                   `json:"running"`
	PID          int                    `json:"pid"`
	Workflow     workflow.StatusSummary `json:"workflow"`
	Summary      store.Summary          `json:"summary"`
	DatabasePath string                 `json:"database_path"`
	LockFilePath string                 `json:"lock_file_path"`
	Dependencies []deps.Status          `json:"dependencies"`
	Staging      staging.Usage          `json:"staging"`
}

// partialUploadMaxAge bounds how long an interrupted upload may linger.
const partialUploadMaxAge = time.Hour

// New constructs a daemon with initialized dependencies. a serves the
// analyze-match endpoint and may be nil, in which case that endpoint reports
// the model as unconfigured.
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, wf *workflow.Manager, a pipeline.Analyzer) (*Daemon, error) {
	if cfg == nil || st == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	lockPath := cfg.LockPath()
	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    st,
		workflow: wf,
		analyzer: a,
		notifier: notifications.NewService(cfg),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, launches the workflow manager, and starts
// the HTTP listener.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}
	if err := os.MkdirAll(filepath.Dir(d.lockPath), 0o755); err != nil {
		return fmt.Errorf("create lock dir: %w", err)
	}
	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another pinganalyst daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.reclaimStaging(runCtx)
	if err := d.workflow.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workflow: %w", err)
	}
	if err := d.api.start(runCtx); err != nil {
		d.workflow.Stop()
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("pinganalyst daemon started",
		logging.String(logging.FieldEventType, "daemon_started"),
		logging.String("lock", d.lockPath),
		logging.String("bind", d.api.address()),
	)
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.api.stop()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		logging.WarnWithContext(d.logger, "failed to release daemon lock", "lock_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "next start may report a running instance"),
		)
	}
	d.running.Store(false)
	d.logger.Info("pinganalyst daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	return d.store.Close()
}

// Address is the bound HTTP address, empty until started.
func (d *Daemon) Address() string {
	return d.api.address()
}

// ListMatches returns matches filtered by optional statuses.
func (d *Daemon) ListMatches(ctx context.Context, statuses []store.Status) ([]*store.Match, error) {
	return d.store.List(ctx, statuses...)
}

// GetMatch returns one match or ErrMatchNotFound.
func (d *Daemon) GetMatch(ctx context.Context, id int64) (*store.Match, error) {
	match, err := d.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if match == nil {
		return nil, ErrMatchNotFound
	}
	return match, nil
}

// AddFile registers a video already on disk. With copyToStaging the file is
// copied into the staging directory first and the copy is analyzed.
func (d *Daemon) AddFile(ctx context.Context, sourcePath string, copyToStaging bool) (*store.Match, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return nil, errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return nil, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("source path %q is a directory", absPath)
	}
	if !isVideoName(info.Name()) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVideo, filepath.Ext(info.Name()))
	}

	target := absPath
	if copyToStaging {
		if err := d.ensureSpace(uint64(info.Size())); err != nil {
			return nil, err
		}
		if err := os.MkdirAll(d.cfg.Paths.StagingDir, 0o755); err != nil {
			return nil, fmt.Errorf("create staging dir: %w", err)
		}
		target = filepath.Join(d.cfg.Paths.StagingDir, stagedName(info.Name()))
		if err := fileutil.CopyVerified(absPath, target); err != nil {
			return nil, fmt.Errorf("copy into staging: %w", err)
		}
	}

	match, err := d.store.NewMatch(ctx, target, info.Name())
	if err != nil {
		return nil, fmt.Errorf("register match: %w", err)
	}
	d.workflow.Wake()
	d.logger.Info("match added",
		logging.Int64(logging.FieldMatchID, match.ID),
		logging.String(logging.FieldEventType, "match_added"),
		logging.String("source", target),
	)
	return match, nil
}

// StageUpload streams an uploaded video into the staging directory and
// registers it. size is the client's declared length, or -1 when unknown.
func (d *Daemon) StageUpload(ctx context.Context, fileName string, body io.Reader, size int64) (*store.Match, error) {
	name := fileutil.CleanName(fileName)
	if name == "" {
		name = "match.mp4"
	}
	if !isVideoName(name) {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedVideo, filepath.Ext(name))
	}
	if size > 0 {
		if err := d.ensureSpace(uint64(size)); err != nil {
			return nil, err
		}
	}

	path, written, err := fileutil.StageReader(d.cfg.Paths.StagingDir, stagedName(name), body, d.cfg.MaxUploadBytes())
	if err != nil {
		return nil, err
	}
	match, err := d.store.NewMatch(ctx, path, name)
	if err != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("register match: %w", err)
	}
	d.workflow.Wake()
	d.logger.Info("match uploaded",
		logging.Int64(logging.FieldMatchID, match.ID),
		logging.String(logging.FieldEventType, "match_uploaded"),
		logging.String("file", name),
		logging.Int64("bytes", written),
	)
	return match, nil
}

// RemoveMatch deletes a match and, when it lives in the staging directory, its
// video.
func (d *Daemon) RemoveMatch(ctx context.Context, id int64) error {
	match, err := d.GetMatch(ctx, id)
	if err != nil {
		return err
	}
	if match.Status.IsProcessing() {
		return ErrMatchBusy
	}
	removed, err := d.store.Remove(ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return ErrMatchNotFound
	}
	d.workflow.Hub().Forget(id)
	if fileutil.Within(d.cfg.Paths.StagingDir, match.SourcePath) {
		if err := os.Remove(match.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(d.logger, "failed to remove staged video", "staged_video_cleanup_failed",
				logging.Int64(logging.FieldMatchID, id),
				logging.String("path", match.SourcePath),
				logging.Error(err),
				logging.String(logging.FieldImpact, "staged video left on disk"),
			)
		}
	}
	d.logger.Info("match removed", logging.Int64(logging.FieldMatchID, id), logging.String(logging.FieldEventType, "match_removed"))
	return nil
}

// RetryMatches moves failed matches (optionally a subset) back to pending.
// Cached terminal events for the reset matches are dropped so new streams
// start from the pending row instead of replaying the failure.
func (d *Daemon) RetryMatches(ctx context.Context, ids ...int64) (int64, error) {
	failed, err := d.store.List(ctx, store.StatusFailed)
	if err != nil {
		return 0, err
	}
	count, err := d.store.Retry(ctx, ids...)
	if err != nil {
		return 0, err
	}
	hub := d.workflow.Hub()
	for _, match := range failed {
		if len(ids) == 0 || slices.Contains(ids, match.ID) {
			hub.Forget(match.ID)
		}
	}
	if count > 0 {
		d.workflow.Wake()
	}
	return count, nil
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	payload := notifications.Payload{"message": "PingAnalyst notifications are working"}
	if err := d.notifier.Publish(ctx, notifications.EventTest, payload); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	summary, err := d.store.Summary(ctx)
	if err != nil {
		d.logger.Warn("failed to read match summary", logging.Error(err))
	}
	usage, err := staging.DirUsage(d.cfg.Paths.StagingDir)
	if err != nil {
		d.logger.Warn("failed to read staging usage", logging.Error(err))
	}
	return Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		Workflow:     d.workflow.Status(ctx),
		Summary:      summary,
		DatabasePath: d.store.Path(),
		LockFilePath: d.lockPath,
		Dependencies: preflight.CheckSystemDeps(d.cfg),
		Staging:      usage,
	}
}

// reclaimStaging removes interrupted uploads and staged videos that no match
// refers to. It runs before the API listens so no upload is mid-rename.
func (d *Daemon) reclaimStaging(ctx context.Context) {
	dir := d.cfg.Paths.StagingDir
	partial := staging.CleanPartialUploads(ctx, dir, partialUploadMaxAge, d.logger)

	matches, err := d.store.List(ctx)
	if err != nil {
		logging.WarnWithContext(d.logger, "skipping orphaned staging cleanup", "staging_cleanup_skipped",
			logging.Error(err),
			logging.String(logging.FieldImpact, "unreferenced staged videos keep using disk space"),
		)
		return
	}
	referenced := make(map[string]struct{}, len(matches))
	for _, match := range matches {
		if abs, err := filepath.Abs(match.SourcePath); err == nil {
			referenced[abs] = struct{}{}
		}
	}
	orphaned := staging.CleanOrphaned(ctx, dir, referenced, d.logger)

	removed := len(partial.Removed) + len(orphaned.Removed)
	if removed > 0 {
		d.logger.Info("reclaimed staging space",
			logging.String(logging.FieldEventType, "staging_reclaimed"),
			logging.Int("files", removed),
			logging.String("freed", humanize.Bytes(uint64(partial.Freed+orphaned.Freed))),
		)
	}
}

func (d *Daemon) ensureSpace(need uint64) error {
	dir := d.cfg.Paths.StagingDir
	if _, err := os.Stat(dir); errors.Is(err, os.ErrNotExist) {
		dir = filepath.Dir(dir)
	}
	free, err := preflight.FreeBytes(dir)
	if err != nil {
		// Unknown free space; the write itself will fail if the disk fills.
		return nil
	}
	if free < need {
		return ErrInsufficientSpace
	}
	return nil
}

func isVideoName(name string) bool {
	_, ok := videoExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

func stagedName(original string) string {
	ext := strings.ToLower(filepath.Ext(original))
	return uuid.NewString() + ext
}
