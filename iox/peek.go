package iox

import (
	"bytes"
	"errors"
	"io"
)

// Peek reads up to n bytes from r and returns them together with a reader
// that replays the peeked bytes before the rest of r. When r ends before n
// bytes, the returned head holds the entire payload and the reader replays
// exactly it.
func Peek(r io.Reader, n int) ([]byte, io.Reader, error) {
	head := make([]byte, n)
	read, err := io.ReadFull(r, head)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			head = head[:read]
			return head, bytes.NewReader(head), nil
		}
		return nil, nil, err
	}
	return head, io.MultiReader(bytes.NewReader(head), r), nil
}
