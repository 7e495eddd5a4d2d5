package ipc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"pinganalyst/internal/api"
	"pinganalyst/internal/config"
	"pinganalyst/internal/progress"
)

// ErrDaemonUnavailable is returned when nothing answers at the daemon address.
var ErrDaemonUnavailable = errors.New("daemon not reachable")

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned %d", e.StatusCode)
	}
	return fmt.Sprintf("daemon returned %d: %s", e.StatusCode, e.Message)
}

// Client provides HTTP access to the daemon.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// BaseURL turns a listen address such as ":7487" into a dialable URL.
func BaseURL(bind string) string {
	bind = strings.TrimSpace(bind)
	if strings.HasPrefix(bind, "http://") || strings.HasPrefix(bind, "https://") {
		return strings.TrimRight(bind, "/")
	}
	host, port, err := net.SplitHostPort(bind)
	if err != nil {
		return "http://" + bind
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

// New builds a client for baseURL without contacting the daemon.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   strings.TrimSpace(token),
		http:    &http.Client{},
	}
}

// FromConfig builds a client for the daemon described by cfg.
func FromConfig(cfg *config.Config) *Client {
	return New(BaseURL(cfg.API.Bind), cfg.API.Token)
}

// Dial connects to the daemon described by cfg and verifies it answers.
func Dial(ctx context.Context, cfg *config.Config) (*Client, error) {
	client := FromConfig(cfg)
	probeCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := client.Status(probeCtx); err != nil {
		return nil, err
	}
	return client, nil
}

// Status retrieves the daemon status.
func (c *Client) Status(ctx context.Context) (*api.DaemonStatus, error) {
	var resp api.DaemonStatus
	if err := c.do(ctx, http.MethodGet, "/api/status", nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ListMatches returns matches optionally filtered by statuses.
func (c *Client) ListMatches(ctx context.Context, statuses []string) ([]api.Match, error) {
	query := url.Values{}
	for _, status := range statuses {
		query.Add("status", status)
	}
	path := "/api/matches"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	var resp api.MatchListResponse
	if err := c.do(ctx, http.MethodGet, path, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Matches, nil
}

// GetMatch returns details for a single match.
func (c *Client) GetMatch(ctx context.Context, id int64) (*api.Match, error) {
	var resp api.MatchResponse
	if err := c.do(ctx, http.MethodGet, matchPath(id), nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp.Match, nil
}

// AddFile registers a video already on the daemon's disk.
func (c *Client) AddFile(ctx context.Context, path string, copyToStaging bool) (*api.Match, error) {
	body, err := json.Marshal(api.AddMatchRequest{Path: path, Copy: copyToStaging})
	if err != nil {
		return nil, err
	}
	var resp api.MatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/matches", bytes.NewReader(body), "application/json", &resp); err != nil {
		return nil, err
	}
	return &resp.Match, nil
}

// Upload streams a local video to the daemon.
func (c *Client) Upload(ctx context.Context, path string) (*api.Match, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		header := make(textproto.MIMEHeader)
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="video"; filename=%q`, filepath.Base(path)))
		header.Set("Content-Type", videoContentType(path))
		part, err := mw.CreatePart(header)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		if err == nil {
			err = mw.Close()
		}
		pw.CloseWithError(err)
	}()

	var resp api.MatchResponse
	if err := c.do(ctx, http.MethodPost, "/api/matches", pr, mw.FormDataContentType(), &resp); err != nil {
		_ = pr.CloseWithError(err)
		return nil, err
	}
	return &resp.Match, nil
}

// RemoveMatch deletes a match.
func (c *Client) RemoveMatch(ctx context.Context, id int64) error {
	return c.do(ctx, http.MethodDelete, matchPath(id), nil, "", nil)
}

// Retry moves failed matches back to pending. With no ids every failed match
// is retried.
func (c *Client) Retry(ctx context.Context, ids []int64) (int64, error) {
	if len(ids) == 0 {
		var resp api.RetryResponse
		if err := c.do(ctx, http.MethodPost, "/api/matches/retry", nil, "", &resp); err != nil {
			return 0, err
		}
		return resp.Updated, nil
	}
	var total int64
	for _, id := range ids {
		var resp api.RetryResponse
		if err := c.do(ctx, http.MethodPost, matchPath(id)+"/retry", nil, "", &resp); err != nil {
			return total, err
		}
		total += resp.Updated
	}
	return total, nil
}

// LogQuery selects daemon log lines. A negative Offset returns the last Lines
// lines; Follow waits on the daemon side for new output.
type LogQuery struct {
	Offset int64
	Lines  int
	Follow bool
}

// Logs fetches daemon log lines.
func (c *Client) Logs(ctx context.Context, q LogQuery) (*api.LogTailResponse, error) {
	query := url.Values{}
	query.Set("offset", strconv.FormatInt(q.Offset, 10))
	query.Set("lines", strconv.Itoa(q.Lines))
	if q.Follow {
		query.Set("follow", "true")
	}
	var resp api.LogTailResponse
	if err := c.do(ctx, http.MethodGet, "/api/logs?"+query.Encode(), nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TestNotification triggers a notification test via the daemon.
func (c *Client) TestNotification(ctx context.Context) (*api.NotificationResponse, error) {
	var resp api.NotificationResponse
	if err := c.do(ctx, http.MethodPost, "/api/notifications/test", nil, "", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stream calls fn for each progress event of match id until the match reaches
// a terminal state, the daemon closes the stream, or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, id int64, fn func(progress.Event)) error {
	wsURL := "ws" + strings.TrimPrefix(c.baseURL, "http") + matchPath(id) + "/stream"
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return &APIError{StatusCode: resp.StatusCode, Message: "stream refused"}
		}
		return fmt.Errorf("%w: %v", ErrDaemonUnavailable, err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	for {
		var ev progress.Event
		if err := conn.ReadJSON(&ev); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return err
		}
		fn(ev)
		if ev.Terminal() {
			return nil
		}
	}
}

func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr *net.OpError
		if errors.As(err, &netErr) {
			return fmt.Errorf("%w at %s: %v", ErrDaemonUnavailable, c.baseURL, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr api.ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		if json.Unmarshal(data, &apiErr) != nil || apiErr.Error == "" {
			apiErr.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: apiErr.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func matchPath(id int64) string {
	return "/api/matches/" + strconv.FormatInt(id, 10)
}

func videoContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mov":
		return "video/quicktime"
	case ".webm":
		return "video/webm"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	default:
		return "video/mp4"
	}
}
