package logging

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Info and above show at most this many detail fields per record.
const infoFieldLimit = 8

type field struct {
	key   string
	value slog.Value
}

// consoleHandler writes a one-line header followed by indented fields:
//
//	2024-05-01 10:00:00 INFO [workflow] Match #3 · chunk 2/5 - chunk analyzed
//	    - latency: 2.1s
type consoleHandler struct {
	mu        *sync.Mutex
	out       io.Writer
	level     slog.Leveler
	addSource bool
	preset    []field
	prefix    string
}

func newConsoleHandler(w io.Writer, lvl slog.Leveler, addSource bool) slog.Handler {
	return &consoleHandler{mu: &sync.Mutex{}, out: w, level: lvl, addSource: addSource}
}

func (h *consoleHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *consoleHandler) Handle(_ context.Context, record slog.Record) error {
	fields := append([]field(nil), h.preset...)
	record.Attrs(func(attr slog.Attr) bool {
		fields = appendField(fields, h.prefix, attr)
		return true
	})

	var hdr header
	fields = hdr.extract(fields)

	var buf bytes.Buffer
	ts := record.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	buf.WriteString(consoleTime(ts))
	buf.WriteByte(' ')
	buf.WriteString(levelLabel(record.Level))
	if hdr.component != "" {
		buf.WriteString(" [" + hdr.component + "]")
	}
	if subject := formatSubject(hdr.match, hdr.chunk, hdr.chunks); subject != "" {
		buf.WriteString(" " + subject + " -")
	}
	msg := strings.TrimSpace(record.Message)
	if msg == "" {
		msg = "(no message)"
	}
	buf.WriteString(" " + msg)
	if h.addSource {
		if src := record.Source(); src != nil {
			buf.WriteString(" [" + filepath.Base(src.File) + ":" + strconv.Itoa(src.Line) + "]")
		}
	}
	buf.WriteByte('\n')
	writeFields(&buf, fields, record.Level)

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.out.Write(buf.Bytes())
	return err
}

func (h *consoleHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.preset = append([]field(nil), h.preset...)
	for _, attr := range attrs {
		next.preset = appendField(next.preset, h.prefix, attr)
	}
	return &next
}

func (h *consoleHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.prefix = h.prefix + name + "."
	return &next
}

// header holds the fields lifted out of the detail list into the first line.
type header struct {
	component string
	match     string
	chunk     string
	chunks    string
}

func (hdr *header) extract(fields []field) []field {
	kept := fields[:0]
	index := make(map[string]int, len(fields))
	for _, f := range fields {
		switch f.key {
		case FieldComponent:
			if hdr.component == "" {
				hdr.component = plainValue(f.value)
			}
			continue
		case FieldMatchID:
			hdr.match = plainValue(f.value)
			continue
		case FieldChunk:
			hdr.chunk = plainValue(f.value)
			continue
		case FieldChunkCount:
			hdr.chunks = plainValue(f.value)
			continue
		}
		// Later values for a repeated key replace earlier ones in place.
		if pos, ok := index[f.key]; ok {
			kept[pos].value = f.value
			continue
		}
		index[f.key] = len(kept)
		kept = append(kept, f)
	}
	return kept
}

func writeFields(buf *bytes.Buffer, fields []field, level slog.Level) {
	shown := len(fields)
	if level >= slog.LevelInfo && shown > infoFieldLimit {
		shown = infoFieldLimit
	}
	for _, f := range fields[:shown] {
		buf.WriteString("    - " + f.key + ": " + renderValue(f.value, true) + "\n")
	}
	switch hidden := len(fields) - shown; {
	case hidden == 1:
		buf.WriteString("    + 1 more field hidden\n")
	case hidden > 1:
		buf.WriteString("    + " + strconv.Itoa(hidden) + " more fields hidden\n")
	}
}

// appendField flattens groups into dotted keys.
func appendField(dst []field, prefix string, attr slog.Attr) []field {
	if attr.Equal(slog.Attr{}) {
		return dst
	}
	attr.Value = attr.Value.Resolve()
	if attr.Value.Kind() == slog.KindGroup {
		next := prefix
		if attr.Key != "" {
			next = prefix + attr.Key + "."
		}
		for _, child := range attr.Value.Group() {
			dst = appendField(dst, next, child)
		}
		return dst
	}
	if attr.Key == "" {
		return dst
	}
	return append(dst, field{key: prefix + attr.Key, value: attr.Value})
}

// formatSubject renders the "Match #N · chunk i/n" prefix of console lines.
func formatSubject(matchID, chunk, chunkCount string) string {
	var parts []string
	if id := strings.TrimSpace(matchID); id != "" {
		parts = append(parts, "Match #"+id)
	}
	if c := strings.TrimSpace(chunk); c != "" {
		if total := strings.TrimSpace(chunkCount); total != "" {
			c += "/" + total
		}
		parts = append(parts, "chunk "+c)
	}
	return strings.Join(parts, " · ")
}

func levelLabel(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "ERROR"
	case level >= slog.LevelWarn:
		return "WARN"
	case level >= slog.LevelInfo:
		return "INFO"
	}
	return "DEBUG"
}
