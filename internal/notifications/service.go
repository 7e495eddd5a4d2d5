package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pinganalyst/internal/config"
)

const userAgent = "PingAnalyst/0.1.0"

// Event names a notification kind.
type Event string

const (
	EventMatchCompleted Event = "match_completed"
	EventMatchFailed    Event = "match_failed"
	EventTest           Event = "test"
)

// Payload carries event fields. Values are formatted with %v.
type Payload map[string]any

// Service publishes events to the configured transport.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventMatchCompleted: cfg.Notifications.Completed,
			EventMatchFailed:    cfg.Notifications.Failed,
			EventTest:           true,
		},
	}
}

type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, payload Payload) error {
	if !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, payload)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, payload Payload) (message, bool) {
	switch event {
	case EventMatchCompleted:
		body := fmt.Sprintf("🏓 Analysis complete: %s", field(payload, "fileName"))
		if score := field(payload, "score"); score != "" {
			body += "\nScore: " + score
		}
		if points := field(payload, "totalPoints"); points != "" {
			body += fmt.Sprintf("\nPoints: %s in %s segments", points, orDefault(field(payload, "chunks"), "?"))
		}
		return message{
			title: "PingAnalyst - Match Analyzed",
			body:  body,
			tags:  []string{"pinganalyst", "match", "completed"},
		}, true
	case EventMatchFailed:
		body := fmt.Sprintf("❌ Analysis failed: %s", field(payload, "fileName"))
		if errText := field(payload, "error"); errText != "" {
			body += "\n" + errText
		}
		return message{
			title:    "PingAnalyst - Analysis Failed",
			body:     body,
			tags:     []string{"pinganalyst", "match", "failed"},
			priority: "high",
		}, true
	case EventTest:
		return message{
			title:    "PingAnalyst - Test",
			body:     "🧪 Notification system test",
			tags:     []string{"pinganalyst", "test"},
			priority: "low",
		}, true
	default:
		return message{}, false
	}
}

func field(payload Payload, key string) string {
	value, ok := payload[key]
	if !ok || value == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(value))
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

func (n *ntfyService) send(ctx context.Context, msg message) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(msg.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if msg.title != "" {
		req.Header.Set("Title", msg.title)
	}
	if len(msg.tags) > 0 {
		req.Header.Set("Tags", strings.Join(msg.tags, ","))
	}
	if msg.priority != "" && msg.priority != "default" {
		req.Header.Set("Priority", msg.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
