package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("decode %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestNewTeeHandlerCollapses(t *testing.T) {
	var buf bytes.Buffer
	only := slog.NewJSONHandler(&buf, nil)

	if _, ok := newTeeHandler().(NoopHandler); !ok {
		t.Fatal("empty tee should be a no-op handler")
	}
	if _, ok := newTeeHandler(nil, NoopHandler{}).(NoopHandler); !ok {
		t.Fatal("tee of nil and no-op should be a no-op handler")
	}
	if got := newTeeHandler(nil, only); got != only {
		t.Fatalf("single handler should be returned as is, got %T", got)
	}
	nested := newTeeHandler(newTeeHandler(only, only), only)
	if tee, ok := nested.(teeHandler); !ok || len(tee) != 3 {
		t.Fatalf("nested tees should flatten to 3 handlers, got %#v", nested)
	}
}

func TestTeeHandlerRespectsChildLevels(t *testing.T) {
	var info, debug bytes.Buffer
	logger := slog.New(newTeeHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	))

	logger.Debug("frame decoded")
	logger.Info("chunk analyzed")

	if got := len(decodeLines(t, &info)); got != 1 {
		t.Fatalf("info sink got %d records, want 1", got)
	}
	if got := len(decodeLines(t, &debug)); got != 2 {
		t.Fatalf("debug sink got %d records, want 2", got)
	}
	if !logger.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("tee should be enabled when any child is")
	}
}

func TestTeeHandlerAttrsAndGroups(t *testing.T) {
	var a, b bytes.Buffer
	logger := slog.New(newTeeHandler(slog.NewJSONHandler(&a, nil), slog.NewJSONHandler(&b, nil))).
		With("match_id", 4).
		WithGroup("chunk")
	logger.Info("done", "index", 2)

	for name, buf := range map[string]*bytes.Buffer{"a": &a, "b": &b} {
		recs := decodeLines(t, buf)
		if len(recs) != 1 {
			t.Fatalf("%s: got %d records", name, len(recs))
		}
		if recs[0]["match_id"] != float64(4) {
			t.Fatalf("%s: match_id = %v", name, recs[0]["match_id"])
		}
		group, _ := recs[0]["chunk"].(map[string]any)
		if group["index"] != float64(2) {
			t.Fatalf("%s: chunk group = %v", name, recs[0]["chunk"])
		}
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("disk full") }

func TestTeeHandlerReportsFirstErrorAndContinues(t *testing.T) {
	var buf bytes.Buffer
	h := newTeeHandler(failingHandler{slog.NewJSONHandler(&bytes.Buffer{}, nil)}, slog.NewJSONHandler(&buf, nil))
	err := h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "x", 0))
	if err == nil || err.Error() != "disk full" {
		t.Fatalf("err = %v, want disk full", err)
	}
	if len(decodeLines(t, &buf)) != 1 {
		t.Fatal("second handler should still receive the record")
	}
}

func TestTeeLoggerWithNilBase(t *testing.T) {
	var buf bytes.Buffer
	TeeLogger(nil, slog.NewJSONHandler(&buf, nil)).Info("hello")
	if len(decodeLines(t, &buf)) != 1 {
		t.Fatalf("expected one record, got %q", buf.String())
	}
}

func TestStampHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(withStamp(slog.NewJSONHandler(&buf, nil), slog.String(FieldSessionID, "s-1"))).
		With("component", "daemon")
	logger.Info("started")
	logger.Info("stopped")

	recs := decodeLines(t, &buf)
	if len(recs) != 2 {
		t.Fatalf("got %d records", len(recs))
	}
	for _, rec := range recs {
		if rec[FieldSessionID] != "s-1" || rec["component"] != "daemon" {
			t.Fatalf("unexpected record %v", rec)
		}
	}
	if _, ok := withStamp(nil).(NoopHandler); !ok {
		t.Fatal("nil base should give a no-op handler")
	}
}
