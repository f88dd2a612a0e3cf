// Package builtin contains small, reusable row helpers used by the loader.
package builtin

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"strconv"
	"strings"
	"time"
)

// RowHash accumulates a deterministic SHA-256 over a stream of rows.
//
// It backs table fingerprints: two loads of the same source must produce the
// same digest for every table, row order included.
//
// Canonicalization rules:
//   - Values within a row are joined with Separator (default 0x1f); rows are
//     terminated with 0x1e, so ("a b") and ("a", "b") hash differently.
//   - nil values are encoded as a single NUL byte (0x00) so missing differs
//     from empty-string.
//   - string and []byte with the same content hash the same (drivers differ).
//   - time.Time values are encoded as RFC3339Nano in UTC.
//   - Sum is a lowercase hex string (length 64).
type RowHash struct {
	Separator string

	h    hash.Hash
	rows int64
	buf  strings.Builder
}

// NewRowHash returns an empty RowHash using the default separator.
func NewRowHash() *RowHash {
	return &RowHash{Separator: "\x1f", h: sha256.New()}
}

// Add folds one row into the digest.
func (r *RowHash) Add(row []any) {
	if r.h == nil {
		r.h = sha256.New()
	}
	sep := r.Separator
	if sep == "" {
		sep = "\x1f"
	}

	r.buf.Reset()
	for i, v := range row {
		if i > 0 {
			r.buf.WriteString(sep)
		}
		appendCanonicalValue(&r.buf, v)
	}
	r.buf.WriteByte('\x1e')

	_, _ = r.h.Write([]byte(r.buf.String()))
	r.rows++
}

// Rows reports how many rows were added.
func (r *RowHash) Rows() int64 { return r.rows }

// Sum returns the hex digest of all rows added so far.
func (r *RowHash) Sum() string {
	if r.h == nil {
		r.h = sha256.New()
	}
	return hex.EncodeToString(r.h.Sum(nil))
}

// appendCanonicalValue appends a stable, canonical representation of v.
// It avoids fmt.Sprint for common types to reduce allocations.
func appendCanonicalValue(b *strings.Builder, v any) {
	switch t := v.(type) {
	case nil:
		b.WriteByte('\x00')

	case string:
		b.WriteString(t)
	case []byte:
		b.Write(t)

	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}

	case int:
		b.WriteString(strconv.Itoa(t))
	case int32:
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case int64:
		b.WriteString(strconv.FormatInt(t, 10))
	case uint64:
		b.WriteString(strconv.FormatUint(t, 10))

	case float32:
		b.WriteString(strconv.FormatFloat(float64(t), 'g', -1, 32))
	case float64:
		b.WriteString(strconv.FormatFloat(t, 'g', -1, 64))

	case time.Time:
		tt := t
		if !tt.IsZero() {
			tt = tt.UTC()
		}
		b.WriteString(tt.Format(time.RFC3339Nano))

	default:
		b.WriteString(fmt.Sprint(t))
	}
}
