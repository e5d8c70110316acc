package cli

import (
	"log/slog"
	"testing"
)

// TestParseLogLevelOrDefault tests log level parsing
func TestParseLogLevelOrDefault(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "debug", input: "debug", want: slog.LevelDebug},
		{name: "info", input: "info", want: slog.LevelInfo},
		{name: "warn", input: "warn", want: slog.LevelWarn},
		{name: "error", input: "error", want: slog.LevelError},
		{name: "unknown defaults to info", input: "verbose", want: slog.LevelInfo},
		{name: "empty defaults to info", input: "", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLogLevelOrDefault(tt.input); got != tt.want {
				t.Errorf("ParseLogLevelOrDefault(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// TestNewApp tests the application structure
func TestNewApp(t *testing.T) {
	app := NewApp()

	if app.Name != "releasewatch" {
		t.Errorf("app name = %q, want %q", app.Name, "releasewatch")
	}

	wantCommands := []string{"poll", "history"}
	for _, name := range wantCommands {
		if app.Command(name) == nil {
			t.Errorf("command %q not registered", name)
		}
	}
}

// TestPollCommandMissingConfig tests that poll fails cleanly without a config
// file
func TestPollCommandMissingConfig(t *testing.T) {
	app := NewApp()

	err := app.Run([]string{"releasewatch", "--config", "/nonexistent/releasewatch.yaml", "poll"})
	if err == nil {
		t.Error("poll expected error for missing config, got nil")
	}
}
