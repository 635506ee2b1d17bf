package main

import (
	"errors"
	"testing"

	"github.com/urfave/cli/v2"
)

func TestExitErrHandler_NilError(t *testing.T) {
	// Should not panic or exit on nil error
	exitErrHandler(nil, nil)
}

func TestExitErrHandler_ExitCoder(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantMsg  string
	}{
		{
			name:     "exit code 0 no message",
			err:      cli.Exit("", 0),
			wantCode: 0,
			wantMsg:  "",
		},
		{
			name:     "exit code 1 ingestion failure",
			err:      cli.Exit("every source failed", 1),
			wantCode: 1,
			wantMsg:  "every source failed",
		},
		{
			name:     "exit code 2 config error",
			err:      cli.Exit("--cluster is required", 2),
			wantCode: 2,
			wantMsg:  "--cluster is required",
		},
		{
			name:     "exit code 3 partial",
			err:      cli.Exit("some sources failed", 3),
			wantCode: 3,
			wantMsg:  "some sources failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// We can't easily test os.Exit without a subprocess, but we can
			// verify the error is recognized as ExitCoder
			var exitCoder cli.ExitCoder
			if !errors.As(tt.err, &exitCoder) {
				t.Fatalf("error should be cli.ExitCoder")
			}

			if exitCoder.ExitCode() != tt.wantCode {
				t.Errorf("exit code = %d, want %d", exitCoder.ExitCode(), tt.wantCode)
			}
		})
	}
}

func TestExitErrHandler_WrappedExitCoder(t *testing.T) {
	// Test that wrapped errors still extract the exit code
	wrapped := errors.Join(errors.New("context"), cli.Exit("inner error", 42))

	var exitCoder cli.ExitCoder
	if !errors.As(wrapped, &exitCoder) {
		t.Fatal("wrapped error should still match cli.ExitCoder")
	}

	if exitCoder.ExitCode() != 42 {
		t.Errorf("exit code = %d, want 42", exitCoder.ExitCode())
	}
}

func TestExitErrHandler_RegularError(t *testing.T) {
	// Regular errors should result in exit code 1 (tested via behavior)
	err := errors.New("regular error")

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		t.Fatal("regular error should not be cli.ExitCoder")
	}
}

// TestExitErrHandler_MessageSuppression verifies empty messages don't print.
func TestExitErrHandler_MessageSuppression(t *testing.T) {
	// cli.Exit("", N) with empty message should not print anything meaningful
	err := cli.Exit("", 0)
	msg := err.Error()

	// Empty message cli.Exit returns empty string or "exit status N"
	// Our handler should NOT print these to stderr
	if msg != "" && msg != "exit status 0" {
		t.Errorf("expected empty or 'exit status 0', got %q", msg)
	}
}
