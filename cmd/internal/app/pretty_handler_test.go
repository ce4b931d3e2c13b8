package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestPrettyHandler_RendersRecord(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := slog.New(newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}, false))

	log.Info("server.start", "addr", "127.0.0.1:8080")

	out := buf.String()
	if !strings.Contains(out, "msg=server.start") {
		t.Fatalf("missing message in %q", out)
	}
	if !strings.Contains(out, "addr=127.0.0.1:8080") {
		t.Fatalf("missing attr in %q", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("color disabled but ANSI codes present: %q", out)
	}
}

func TestPrettyHandler_LevelFilter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	h := newPrettyHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}, false)

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should be filtered at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should pass at warn level")
	}
}

func TestLevelTag_NoColor(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		level slog.Level
		want  string
	}{
		{slog.LevelDebug, "[DEBUG]"},
		{slog.LevelInfo, "[INFO]"},
		{slog.LevelWarn, "[WARN]"},
		{slog.LevelError, "[ERROR]"},
	} {
		if got := levelTag(tc.level, false); got != tc.want {
			t.Fatalf("levelTag(%v) = %q, want %q", tc.level, got, tc.want)
		}
	}
}
