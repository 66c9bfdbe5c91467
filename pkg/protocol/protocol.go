// Package protocol defines the chat wire format: length-prefixed UTF-8 text
// frames carried over a stream connection, plus the command tokens both ends
// agree on.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// LengthPrefixSize is the byte size of the frame header.
	// [length(2)] big-endian, counting payload bytes only.
	LengthPrefixSize = 2

	// MaxFrameSize is the largest payload a frame can carry.
	MaxFrameSize = 1<<16 - 1
)

var (
	ErrFrameTooLarge = errors.New("protocol: frame too large")
	ErrInvalidUTF8   = errors.New("protocol: frame is not valid UTF-8")
)

// WriteFrame writes one text frame.
// Format: [2-byte big-endian length][UTF-8 payload]
func WriteFrame(w io.Writer, text string) error {
	if len(text) > MaxFrameSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(text))
	}
	if !utf8.ValidString(text) {
		return ErrInvalidUTF8
	}

	buf := make([]byte, LengthPrefixSize+len(text))
	binary.BigEndian.PutUint16(buf[:LengthPrefixSize], uint16(len(text))) //nolint:gosec // length already bounds-checked above
	copy(buf[LengthPrefixSize:], text)

	// Single write so that a frame never interleaves with another writer's bytes.
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadFrame reads one text frame.
func ReadFrame(r io.Reader) (string, error) {
	lenBuf := make([]byte, LengthPrefixSize)
	if _, err := io.ReadFull(r, lenBuf); err != nil {
		if errors.Is(err, io.EOF) {
			return "", io.EOF
		}
		return "", fmt.Errorf("protocol: read length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf)

	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return "", fmt.Errorf("protocol: read payload: %w", err)
	}
	if !utf8.Valid(data) {
		return "", ErrInvalidUTF8
	}
	return string(data), nil
}
