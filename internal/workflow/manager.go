package workflow

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pinganalyst/internal/config"
	"pinganalyst/internal/frames"
	"pinganalyst/internal/logging"
	"pinganalyst/internal/notifications"
	"pinganalyst/internal/pipeline"
	"pinganalyst/internal/preflight"
	"pinganalyst/internal/progress"
	"pinganalyst/internal/store"
)

// Manager coordinates match processing.
type Manager struct {
	cfg          *config.Config
	store        *store.Store
	analyzer     pipeline.Analyzer
	logger       *slog.Logger
	notifier     notifications.Service
	hub          *progress.Hub
	heartbeat    *HeartbeatMonitor
	preflight    func(*config.Config) []preflight.Result
	extractorOps []frames.ExtractorOption
	pollInterval time.Duration
	wake         chan struct{}

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastMatch *store.Match
}

// ManagerOption configures optional Manager behavior.
type ManagerOption func(*Manager)

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithNotifier replaces the notifier built from config.
func WithNotifier(notifier notifications.Service) ManagerOption {
	return func(m *Manager) {
		if notifier != nil {
			m.notifier = notifier
		}
	}
}

// WithHub publishes progress to hub instead of a private one.
func WithHub(hub *progress.Hub) ManagerOption {
	return func(m *Manager) {
		if hub != nil {
			m.hub = hub
		}
	}
}

// WithExtractorOptions appends options to every extractor the manager builds.
func WithExtractorOptions(opts ...frames.ExtractorOption) ManagerOption {
	return func(m *Manager) {
		m.extractorOps = append(m.extractorOps, opts...)
	}
}

// WithPreflight replaces the readiness check run before each match. A nil
// check disables it.
func WithPreflight(check func(*config.Config) []preflight.Result) ManagerOption {
	return func(m *Manager) {
		m.preflight = check
	}
}

// NewManager constructs a workflow manager.
func NewManager(cfg *config.Config, st *store.Store, a pipeline.Analyzer, opts ...ManagerOption) *Manager {
	m := &Manager{
		cfg:          cfg,
		store:        st,
		analyzer:     a,
		logger:       logging.NewNop(),
		notifier:     notifications.NewService(cfg),
		hub:          progress.NewHub(0),
		preflight:    preflight.RunLocal,
		pollInterval: cfg.PollInterval(),
		wake:         make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = logging.NewComponentLogger(m.logger, "workflow")
	m.heartbeat = NewHeartbeatMonitor(st, m.logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout())
	return m
}

// Hub returns the progress hub the manager publishes to.
func (m *Manager) Hub() *progress.Hub {
	return m.hub
}

// Wake asks the manager to look for pending matches now instead of waiting for
// the next poll.
func (m *Manager) Wake() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}
