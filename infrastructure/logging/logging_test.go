package logging

import (
	"bytes"
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
		{"DEBUG", slog.LevelDebug, false},
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

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "json", &buf)
	if err != nil {
		t.Fatalf("New() unexpected error: %v", err)
	}

	logger.Info("hidden")
	logger.Warn("shown", slog.String("url", "https://youtu.be/abc"))

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info record written at warn level")
	}
	if !strings.Contains(out, `"msg":"shown"`) || !strings.Contains(out, `"url":"https://youtu.be/abc"`) {
		t.Errorf("unexpected json output: %s", out)
	}

	if _, err := New("info", "xml", &buf); err == nil {
		t.Error("New() expected error for unknown format")
	}
}
