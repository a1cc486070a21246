package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{" warn ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"chatty", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNew_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Format: FormatJSON, Component: ComponentStorage, Output: &buf})

	logger.Debug("hidden")
	logger.Info("visible", "key", "value")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %q", len(lines), buf.String())
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "visible" || entry["key"] != "value" || entry[FieldComponent] != ComponentStorage {
		t.Errorf("unexpected entry %v", entry)
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelDebug, Format: FormatText, Component: ComponentApp, Output: &buf})

	logger.WithComponent(ComponentAMQP).Debug("connected")

	out := buf.String()
	if !strings.Contains(out, "connected") || !strings.Contains(out, ComponentAMQP) {
		t.Errorf("text output missing fields: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if l := FromContext(context.Background()); l == nil || l.Component() != "unknown" {
		t.Errorf("FromContext(empty) = %+v", l)
	}

	var buf bytes.Buffer
	base := New(Config{Format: FormatJSON, Component: ComponentHTTP, Output: &buf})

	var seen *Logger
	h := Middleware(base)(RequestIDMiddleware(func(*http.Request) string { return "req-1" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = FromContext(r.Context())
			seen.InfoContext(r.Context(), "inside")
		})))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	if seen == nil {
		t.Fatal("handler did not run")
	}
	if !strings.Contains(buf.String(), `"request_id":"req-1"`) {
		t.Errorf("request id missing from %q", buf.String())
	}
}

func TestLogFields(t *testing.T) {
	fields := NewFields().
		WithBill(7, "Rent", 12.5, "2024-01-20").
		WithPreviousDate("").
		WithError(errors.New("boom")).
		WithOperation(OpUpdate)

	if _, ok := fields[FieldPreviousDate]; ok {
		t.Error("empty previous date should not be recorded")
	}
	if fields[FieldBillID] != int64(7) || fields[FieldError] != "boom" {
		t.Errorf("fields = %v", fields)
	}
	if got := len(fields.ToSlice()); got != 2*len(fields) {
		t.Errorf("ToSlice() len = %d", got)
	}
}

func TestStructuredLogger_LogBillMutation(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Format: FormatJSON, Component: ComponentApp, Output: &buf}).WithComponent(ComponentHTTP))

	sl.LogBillMutation(context.Background(), OpUpdate, 9, "Gas", 40, "2024-01-21", "2024-01-20")

	out := buf.String()
	for _, want := range []string{`"msg":"Bill updated"`, `"previous_date":"2024-01-20"`, `"operation":"update"`} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %s: %q", want, out)
		}
	}
}

func TestLogger_ComponentLoggedOnce(t *testing.T) {
	tests := []struct {
		name string
		log  func(l *Logger)
		want string
	}{
		{"unbound", func(l *Logger) { l.InfoContext(context.Background(), "m") }, ComponentApp},
		{"bound", func(l *Logger) { l.WithComponent(ComponentHTTP).InfoContext(context.Background(), "m") }, ComponentHTTP},
		{"bound with request id", func(l *Logger) { l.WithComponent(ComponentHTTP).With(FieldRequestID, "r").Warn("m") }, ComponentHTTP},
		{"rebound", func(l *Logger) { l.WithComponent(ComponentHTTP).WithComponent(ComponentNotify).Info("m") }, ComponentHTTP},
		{"explicit field", func(l *Logger) { l.Error("m", FieldComponent, ComponentWorker) }, ComponentWorker},
		{"structured error", func(l *Logger) {
			NewStructuredLogger(l.WithComponent(ComponentHTTP)).LogError(context.Background(), "m", errors.New("boom"), ComponentStorage, OpList, NewFields())
		}, ComponentHTTP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(New(Config{Format: FormatJSON, Component: ComponentApp, Output: &buf}))

			line := strings.TrimSpace(buf.String())
			if n := strings.Count(line, `"component"`); n != 1 {
				t.Fatalf("component appears %d times: %s", n, line)
			}
			if !strings.Contains(line, `"component":"`+tt.want+`"`) {
				t.Errorf("component = %s, want %s", line, tt.want)
			}
		})
	}
}
