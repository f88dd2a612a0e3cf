package tsv

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const janeDoe = "Jane Doe\t123 St\tParis\tFrance\tEurope\tWidget;Gadget\tToys;Toys\tFun;Fun\t9.99;19.99\t2;1\t20230101;20230102"

func collect(t *testing.T, input string) []Record {
	t.Helper()
	var out []Record
	err := Stream(context.Background(), strings.NewReader(input), func(r Record) error {
		out = append(out, r)
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	return out
}

func TestStream_SkipsHeaderAndBlankLines(t *testing.T) {
	t.Parallel()

	input := "Name\tAddress\n" + janeDoe + "\n\n   \n" + janeDoe + "  \r\n"
	recs := collect(t, input)

	if len(recs) != 2 {
		t.Fatalf("records=%d, want 2", len(recs))
	}
	if recs[0].Line != 2 || recs[1].Line != 5 {
		t.Fatalf("lines=%d,%d, want 2,5", recs[0].Line, recs[1].Line)
	}
	if len(recs[1].Fields) != 11 {
		t.Fatalf("fields=%d, want 11", len(recs[1].Fields))
	}
	if got := recs[1].Fields[10]; got != "20230101;20230102" {
		t.Fatalf("last field=%q, trailing whitespace not stripped", got)
	}
}

func TestStream_HeaderDiscardedEvenWhenBlank(t *testing.T) {
	t.Parallel()

	recs := collect(t, "\n"+janeDoe+"\n")
	if len(recs) != 1 || recs[0].Fields[0] != "Jane Doe" {
		t.Fatalf("records=%v", recs)
	}

	// A header with no data is an empty source, not an error.
	if recs := collect(t, "only a header"); len(recs) != 0 {
		t.Fatalf("records=%v, want none", recs)
	}
}

func TestStream_StripsBOMAndKeepsLeadingSpaces(t *testing.T) {
	t.Parallel()

	recs := collect(t, "\ufeffName\n  Jane Doe\tx\n")
	if len(recs) != 1 {
		t.Fatalf("records=%d", len(recs))
	}
	if recs[0].Fields[0] != "  Jane Doe" {
		t.Fatalf("field0=%q, leading whitespace must be kept", recs[0].Fields[0])
	}
}

func TestStream_RejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		line  int
	}{
		{"stray byte in field", "h\n" + janeDoe + "\nJohn Roe\tx\tLyon\tFr\xffance\n", 3},
		{"truncated rune at end of line", "h\nJane\t\xc3\n", 2},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			seen := 0
			err := Stream(context.Background(), strings.NewReader(tc.input), func(Record) error {
				seen++
				return nil
			})
			var mre *MalformedRecordError
			if !errors.As(err, &mre) || mre.Line != tc.line || mre.Reason != "invalid UTF-8" {
				t.Fatalf("err=%v, want invalid UTF-8 on line %d", err, tc.line)
			}
			if seen != tc.line-2 {
				t.Fatalf("records before failure=%d, want %d", seen, tc.line-2)
			}
		})
	}

	// Bytes are passed through untouched, never replaced with U+FFFD.
	recs := collect(t, "h\nZo\u00eb\tM\u00fcnchen\n")
	if recs[0].Fields[0] != "Zo\u00eb" || recs[0].Fields[1] != "M\u00fcnchen" {
		t.Fatalf("fields=%q", recs[0].Fields)
	}
}

func TestStream_PropagatesCallbackError(t *testing.T) {
	t.Parallel()

	stop := errors.New("stop")
	calls := 0
	err := Stream(context.Background(), strings.NewReader("h\na\nb\n"), func(Record) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestStream_HonorsCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := Stream(ctx, strings.NewReader("h\na\n"), func(Record) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context.Canceled", err)
	}
}

func TestRecord_FieldAndList(t *testing.T) {
	t.Parallel()

	r := Record{Line: 7, Fields: strings.Split(janeDoe, "\t")}

	products, err := r.List(5)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if strings.Join(products, "|") != "Widget|Gadget" {
		t.Fatalf("products=%v", products)
	}

	_, err = r.Field(11)
	var mre *MalformedRecordError
	if !errors.As(err, &mre) || mre.Line != 7 {
		t.Fatalf("err=%v, want *MalformedRecordError on line 7", err)
	}
	if !errors.Is(err, ErrMalformedRecord) {
		t.Fatalf("errors.Is(err, ErrMalformedRecord)=false")
	}
}

func TestSource_IsReopenable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.tsv")
	if err := os.WriteFile(path, []byte("header\n"+janeDoe+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	src := Source{Path: path}

	for pass := 0; pass < 2; pass++ {
		n := 0
		if err := src.Each(context.Background(), func(Record) error { n++; return nil }); err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if n != 1 {
			t.Fatalf("pass %d: records=%d, want 1", pass, n)
		}
	}
}

func TestSource_MissingFileIsIOError(t *testing.T) {
	t.Parallel()

	err := Source{Path: filepath.Join(t.TempDir(), "nope.tsv")}.Each(context.Background(), func(Record) error { return nil })
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("err=%v, want os.ErrNotExist", err)
	}
}
