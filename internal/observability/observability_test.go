package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/contrib/processors/minsev"
)

func TestNewConsoleHandler(t *testing.T) {
	var buf bytes.Buffer
	h, err := newConsoleHandler(&buf, slog.LevelInfo, "json")
	if err != nil {
		t.Fatalf("newConsoleHandler: %v", err)
	}
	logger := slog.New(h)
	logger.Debug("hidden")
	logger.Info("logged in", "refreshable", true)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("expected a single JSON record, got %q: %v", buf.String(), err)
	}
	if rec["msg"] != "logged in" || rec["refreshable"] != true {
		t.Errorf("unexpected record: %v", rec)
	}

	if _, err := newConsoleHandler(&buf, slog.LevelInfo, "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
		{slog.LevelError + 4, minsev.SeverityError},
	}
	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestFanout(t *testing.T) {
	var debug, warn bytes.Buffer
	f := fanout{
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
		slog.NewTextHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	}
	logger := slog.New(f).With("component", "gateway")

	logger.Debug("queued")
	logger.Warn("refresh failed")

	if !strings.Contains(debug.String(), "queued") || !strings.Contains(debug.String(), "refresh failed") {
		t.Errorf("debug handler missed records: %q", debug.String())
	}
	if strings.Contains(warn.String(), "queued") || !strings.Contains(warn.String(), "component=gateway") {
		t.Errorf("warn handler got %q", warn.String())
	}
	if f.Enabled(context.Background(), slog.LevelDebug-4) {
		t.Error("fanout enabled below every handler's level")
	}
}

func TestInstrumentRejectsUnknownExporter(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	if _, err := Instrument(context.Background(), slog.LevelInfo, "text", "kafka"); err == nil {
		t.Fatal("expected error for unsupported exporter")
	}

	shutdown, err := Instrument(context.Background(), slog.LevelInfo, "text", ExporterStdout)
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
