// Package validation provides input checks shared by the record services. Document checks
// run before anything is written to the blob store so an invalid upload is rejected without
// consuming storage; field checks collect per-field messages for the caller.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
)

const (
	// MaxDocumentSize is the fallback cap when no limit is configured (10MB)
	MaxDocumentSize = 10 * 1024 * 1024

	sniffLen = 512
)

var (
	ErrEmptyDocument = errors.New("the file is empty")
	ErrNotPDF        = errors.New("the file must be a PDF")
)

// TooLargeError reports an upload over the configured limit
type TooLargeError struct {
	Limit int64
}

func (e *TooLargeError) Error() string {
	return fmt.Sprintf("the file may not be greater than %d kilobytes", e.Limit/1024)
}

// ValidateDocument checks that reader holds a PDF of at most maxSize bytes.
// size is the length the client declared; zero means unknown. The returned
// reader replays the sniffed prefix followed by the rest of the content and
// fails if the content grows past maxSize.
func ValidateDocument(reader io.Reader, size, maxSize int64) (io.Reader, error) {
	if maxSize <= 0 {
		maxSize = MaxDocumentSize
	}
	if size > maxSize {
		return nil, &TooLargeError{Limit: maxSize}
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(reader, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	head = head[:n]
	if n == 0 {
		return nil, ErrEmptyDocument
	}
	if http.DetectContentType(head) != "application/pdf" {
		return nil, ErrNotPDF
	}

	return &limitedReader{
		r:     io.MultiReader(bytes.NewReader(head), reader),
		limit: maxSize,
	}, nil
}

// limitedReader errors instead of truncating once more than limit bytes pass
type limitedReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.read += int64(n)
	if l.read > l.limit {
		return n, &TooLargeError{Limit: l.limit}
	}
	return n, err
}
