package iox

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestCountingReader(t *testing.T) {
	cr := NewCountingReader(strings.NewReader("0123456789"))
	b, err := io.ReadAll(cr)
	if err != nil {
		t.Fatal(err)
	}
	if len(b) != 10 {
		t.Fatalf("read %d bytes, want 10", len(b))
	}
	if cr.Count() != 10 {
		t.Errorf("Count() = %d, want 10", cr.Count())
	}
}

func TestCountingWriter(t *testing.T) {
	var buf bytes.Buffer
	cw := NewCountingWriter(&buf)
	if _, err := cw.Write([]byte("abcde")); err != nil {
		t.Fatal(err)
	}
	if _, err := cw.Write([]byte("fg")); err != nil {
		t.Fatal(err)
	}
	if cw.Count() != 7 {
		t.Errorf("Count() = %d, want 7", cw.Count())
	}
	if buf.String() != "abcdefg" {
		t.Errorf("underlying writer got %q", buf.String())
	}
}
