package core

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// DecodeText returns a delivered file as UTF-8 without a byte order mark.
// Content that is not valid UTF-8 is read as Windows-1252, the encoding
// laboratory software on Windows exports with.
func DecodeText(content []byte) ([]byte, error) {
	text, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), content)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if utf8.Valid(text) {
		return text, nil
	}

	text, _, err = transform.Bytes(charmap.Windows1252.NewDecoder(), text)
	if err != nil {
		return nil, fmt.Errorf("decode windows-1252: %w", err)
	}
	return text, nil
}

// limitReader counts the bytes read and fails with ErrFileTooLarge once more
// than limit bytes came through. A limit of 0 disables the check.
type limitReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (l *limitReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.n += int64(n)
	if l.limit > 0 && l.n > l.limit {
		return n, ErrFileTooLarge
	}
	return n, err
}

// readLimited reads r to the end, failing with ErrFileTooLarge above limit.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(&limitReader{r: r, limit: limit}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
