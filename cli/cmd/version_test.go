package cmd

import (
	"strings"
	"testing"
)

func TestVersionCommand(t *testing.T) {
	app := newTestApp()

	if err := app.Run([]string{"hopper", "version", "--format", "json"}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestVersionCommand_WatchRejected(t *testing.T) {
	app := newTestApp()

	err := app.Run([]string{"hopper", "version", "--watch"})
	if err == nil {
		t.Fatal("expected error for --watch")
	}
	if !strings.Contains(err.Error(), "--watch is not supported for the version command") {
		t.Errorf("error should reject --watch, got: %v", err)
	}
}

func TestVersionCommand_InvalidFormat(t *testing.T) {
	app := newTestApp()

	err := app.Run([]string{"hopper", "version", "--format", "csv"})
	if err == nil {
		t.Fatal("expected error for invalid output format")
	}
	if !strings.Contains(err.Error(), "invalid format") {
		t.Errorf("error should mention the invalid format, got: %v", err)
	}
}
