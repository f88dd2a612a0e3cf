// Package tsv reads the tab-delimited sales export.
//
// The format is fixed: one header line (always discarded), then one record per
// non-blank line with fields separated by '\t'. Multi-valued fields hold
// semicolon-separated lists that are positionally aligned with each other.
package tsv

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

const (
	FieldSep = '\t'
	ListSep  = ";"

	// maxLineBytes bounds a single source line. Records carrying long product
	// lists can exceed bufio.Scanner's 64KiB default.
	maxLineBytes = 4 << 20
)

// ErrMalformedRecord is wrapped by every *MalformedRecordError.
var ErrMalformedRecord = errors.New("malformed record")

// MalformedRecordError reports a record that cannot be read positionally.
type MalformedRecordError struct {
	Line   int
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: %s: %s", e.Line, ErrMalformedRecord, e.Reason)
}

func (e *MalformedRecordError) Unwrap() error { return ErrMalformedRecord }

// Record is one data line split on tabs. Line is the 1-based source line.
type Record struct {
	Line   int
	Fields []string
}

// Field returns field i.
//
// Errors:
//   - *MalformedRecordError if the record has fewer than i+1 fields.
func (r Record) Field(i int) (string, error) {
	if i < 0 || i >= len(r.Fields) {
		return "", &MalformedRecordError{
			Line:   r.Line,
			Reason: fmt.Sprintf("field %d out of range (record has %d fields)", i, len(r.Fields)),
		}
	}
	return r.Fields[i], nil
}

// List returns field i split on ';'. An empty field yields one empty element,
// the same as strings.Split.
func (r Record) List(i int) ([]string, error) {
	f, err := r.Field(i)
	if err != nil {
		return nil, err
	}
	return strings.Split(f, ListSep), nil
}

// Stream reads src and calls fn for every data record.
//
// When to use:
//   - Any reader holding the export format (files, test buffers, pipes).
//
// Edge cases:
//   - The first line is discarded even when blank.
//   - Trailing whitespace (including '\r' and trailing tabs) is stripped
//     before splitting, so an empty last field disappears.
//   - Blank lines are skipped but still counted for Line numbers.
//   - A leading UTF-8 BOM is part of the header line and goes with it.
//
// Errors:
//   - *MalformedRecordError for a data line that is not valid UTF-8. Bytes
//     are never replaced, so two distinct keys cannot collapse into one.
//   - Returns ctx.Err() when cancelled between records.
//   - Returns the first error from fn unchanged.
//   - Returns a read error if a line exceeds the scanner limit.
func Stream(ctx context.Context, src io.Reader, fn func(Record) error) error {
	sc := bufio.NewScanner(src)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for sc.Scan() {
		line++
		if line == 1 {
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		text, err := decodeLine(sc.Bytes())
		if err != nil {
			return &MalformedRecordError{Line: line, Reason: "invalid UTF-8"}
		}
		text = strings.TrimRightFunc(text, unicode.IsSpace)
		if text == "" {
			continue
		}

		if err := fn(Record{Line: line, Fields: strings.Split(text, string(FieldSep))}); err != nil {
			return err
		}
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("tsv: read line %d: %w", line+1, err)
	}
	return nil
}

// decodeLine returns raw as a string, or encoding.ErrInvalidUTF8.
func decodeLine(raw []byte) (string, error) {
	b, _, err := transform.Bytes(encoding.UTF8Validator, raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
