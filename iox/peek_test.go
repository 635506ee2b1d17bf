package iox

import (
	"io"
	"strings"
	"testing"
)

func TestPeek(t *testing.T) {
	tests := []struct {
		name     string
		payload  string
		n        int
		wantHead string
	}{
		{"payload longer than peek", "0123456789", 4, "0123"},
		{"payload equals peek", "0123", 4, "0123"},
		{"payload shorter than peek", "01", 4, "01"},
		{"empty payload", "", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			head, rest, err := Peek(strings.NewReader(tt.payload), tt.n)
			if err != nil {
				t.Fatalf("Peek: %v", err)
			}
			if string(head) != tt.wantHead {
				t.Errorf("head = %q, want %q", head, tt.wantHead)
			}
			// The combined reader must replay the full payload.
			all, err := io.ReadAll(rest)
			if err != nil {
				t.Fatal(err)
			}
			if string(all) != tt.payload {
				t.Errorf("replayed %q, want %q", all, tt.payload)
			}
		})
	}
}
