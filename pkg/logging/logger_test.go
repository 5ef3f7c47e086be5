package logging

import (
	"log/slog"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"bogus", slog.LevelInfo},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestNewReturnsLogger(t *testing.T) {
	l := New("debug")
	if l == nil || l.Logger == nil {
		t.Fatal("expected non-nil logger")
	}
	if text := NewText("debug"); text == nil || text.Logger == nil {
		t.Fatal("expected non-nil text logger")
	}
	if Default() == nil {
		t.Fatal("expected non-nil default logger")
	}
	if l.With("component", "test") == nil {
		t.Fatal("expected non-nil child logger")
	}
}
