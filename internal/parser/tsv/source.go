package tsv

import (
	"context"
	"fmt"
	"os"
)

// Source is a re-openable export file. Every call to Each opens the file
// afresh, so the same Source can feed several load steps.
type Source struct {
	Path string
}

// Each streams every data record of the file to fn.
//
// Errors:
//   - Wraps the open error with the path (I/O errors are fatal to a run).
//   - Otherwise as Stream.
func (s Source) Each(ctx context.Context, fn func(Record) error) error {
	f, err := os.Open(s.Path)
	if err != nil {
		return fmt.Errorf("tsv: open %s: %w", s.Path, err)
	}
	defer f.Close()

	return Stream(ctx, f, fn)
}

// Slice is an in-memory record source.
type Slice []Record

func (s Slice) Each(ctx context.Context, fn func(Record) error) error {
	for _, r := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}
