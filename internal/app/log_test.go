package app

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestPvHandler_Handle(t *testing.T) {
	ts := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		opID    string
		level   slog.Level
		message string
		attrs   []slog.Attr
		want    string
	}{
		{
			name:    "basic info message",
			opID:    "op-123",
			level:   slog.LevelInfo,
			message: "photo backed up",
			want:    "2025-03-10T09:00:00Z\tINFO\top-123\tphoto backed up\n",
		},
		{
			name:    "with record attrs",
			opID:    "op-456",
			level:   slog.LevelInfo,
			message: "catalog published",
			attrs:   []slog.Attr{slog.String("namespace", "/photos"), slog.Int("entries", 42)},
			want:    "2025-03-10T09:00:00Z\tINFO\top-456\tcatalog published\tnamespace=/photos\tentries=42\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			h := &pvHandler{w: &buf, opID: tt.opID}

			r := slog.NewRecord(ts, tt.level, tt.message, 0)
			for _, a := range tt.attrs {
				r.AddAttrs(a)
			}

			if err := h.Handle(context.Background(), r); err != nil {
				t.Fatalf("Handle() error = %v", err)
			}

			if got := buf.String(); got != tt.want {
				t.Errorf("Handle() output =\n%q\nwant:\n%q", got, tt.want)
			}
		})
	}
}

func TestPvHandler_WithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := &pvHandler{w: &buf, opID: "op-1"}

	h2 := h.WithAttrs([]slog.Attr{slog.String("component", "backup")}).(*pvHandler)

	ts := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "upload", 0)
	r.AddAttrs(slog.String("key", "abc"))

	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("Handle() error = %v", err)
	}

	got := buf.String()
	if !strings.Contains(got, "component=backup") {
		t.Errorf("expected pre-set attr component=backup, got: %q", got)
	}
	if !strings.Contains(got, "key=abc") {
		t.Errorf("expected record attr key=abc, got: %q", got)
	}

	if len(h.attrs) != 0 {
		t.Errorf("WithAttrs mutated the original handler: %d attrs", len(h.attrs))
	}
}

func TestPvHandler_Enabled(t *testing.T) {
	h := &pvHandler{minLevel: slog.LevelInfo}

	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug suppressed at info level")
	}
	for _, level := range []slog.Level{slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if !h.Enabled(context.Background(), level) {
			t.Errorf("Enabled(%v) = false, want true", level)
		}
	}

	verbose := &pvHandler{minLevel: slog.LevelDebug}
	if !verbose.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("expected debug enabled at debug level")
	}
}

func TestNewLogger(t *testing.T) {
	dir := t.TempDir()

	logger, f, err := newLogger(dir, "test-op")
	if err != nil {
		t.Fatalf("newLogger() error = %v", err)
	}
	defer f.Close()

	if logger == nil {
		t.Fatal("newLogger() returned nil logger")
	}
	if f == nil {
		t.Fatal("newLogger() returned nil file")
	}

	t.Run("PV_DEBUG lowers the level", func(t *testing.T) {
		t.Setenv("PV_DEBUG", "1")
		verbose, vf, err := newLogger(dir, "test-op")
		if err != nil {
			t.Fatal(err)
		}
		defer vf.Close()
		if !verbose.Enabled(context.Background(), slog.LevelDebug) {
			t.Error("expected debug enabled with PV_DEBUG set")
		}
	})
}
