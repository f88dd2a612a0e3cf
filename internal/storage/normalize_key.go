package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// NormalizeKey converts a scanned key value to the string form used by
// in-memory lookups (e.g. "Europe" or "42").
//
// Backends return TEXT as string or []byte depending on the driver; both map
// to the same key. Values are not trimmed: a natural key with edge spaces is a
// different key.
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int:
		return strconv.Itoa(t)
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}

// JoinKey builds a composite natural key by joining normalized parts with a
// single space, e.g. ("Jane", "Doe") -> "Jane Doe".
func JoinKey(parts ...any) string {
	if len(parts) == 1 {
		return NormalizeKey(parts[0])
	}
	ss := make([]string, len(parts))
	for i, p := range parts {
		ss[i] = NormalizeKey(p)
	}
	return strings.Join(ss, " ")
}
