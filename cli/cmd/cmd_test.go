package cmd

import (
	"os"
	"testing"
)

func TestReadOnlyFlags_IncludesWatch(t *testing.T) {
	flags := ReadOnlyFlags()

	hasWatch := false
	for _, f := range flags {
		if f.Names()[0] == "watch" {
			hasWatch = true
			break
		}
	}

	if !hasWatch {
		t.Error("ReadOnlyFlags should include --watch flag for explicit error handling")
	}
}

func TestWatchReadOnlyFlags_IncludesWatch(t *testing.T) {
	flags := WatchReadOnlyFlags()

	hasWatch := false
	for _, f := range flags {
		if f.Names()[0] == "watch" {
			hasWatch = true
			break
		}
	}

	if !hasWatch {
		t.Error("WatchReadOnlyFlags should include --watch flag")
	}
}

func TestIsTTY(_ *testing.T) {
	// This test documents the function exists and can be called.
	// Actual TTY behavior depends on runtime environment.
	_ = isTTY(os.Stderr)
}
