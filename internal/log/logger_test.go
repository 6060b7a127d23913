package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{" warn ", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestLogger_TagsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: "json", Component: ComponentRecurring, Output: &buf})

	logger.Info("Recurring sweep completed", FieldPolicy, "skip")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if entry[FieldComponent] != ComponentRecurring {
		t.Errorf("component = %v, want %s", entry[FieldComponent], ComponentRecurring)
	}
	if entry[FieldPolicy] != "skip" {
		t.Errorf("policy = %v", entry[FieldPolicy])
	}
}

func TestLogger_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Output: &buf})

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestLogger_WithComponent(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})
	if base.Component() != ComponentApp {
		t.Errorf("default component = %q, want %q", base.Component(), ComponentApp)
	}

	l := base.With(FieldOperation, OpExport).WithComponent(ComponentExport)
	l.Info("Export written")

	out := buf.String()
	if !strings.Contains(out, "component=export") || !strings.Contains(out, "operation=export") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background(), ComponentWorker); got.Component() != ComponentWorker {
		t.Errorf("fallback component = %q", got.Component())
	}

	logger := New(Config{Component: ComponentCLI, Output: &bytes.Buffer{}})
	ctx := NewContext(context.Background(), logger)
	if got := FromContext(ctx, ComponentWorker); got != logger {
		t.Error("FromContext did not return the stored logger")
	}
}

func TestLogFields(t *testing.T) {
	f := NewFields().
		WithOperation(OpMaterialize).
		WithTemplate(7, "2024-06-01").
		WithError(errors.New("boom"))

	if f[FieldOperation] != OpMaterialize || f[FieldTemplateID] != int64(7) || f[FieldError] != "boom" {
		t.Errorf("fields = %v", f)
	}
	if got := len(f.ToSlice()); got != 2*len(f) {
		t.Errorf("ToSlice() length = %d, want %d", got, 2*len(f))
	}
}
