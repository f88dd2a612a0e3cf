package multitable

import (
	"fmt"
	"time"
)

// ReformatDate converts an 8-digit YYYYMMDD date to ISO YYYY-MM-DD.
//
// Edge cases:
//   - Exactly 8 ASCII digits are required; signs, spaces and separators fail.
//   - The date must exist on the calendar (20230230 fails).
//
// Errors:
//   - Wraps ErrInvalidDate.
func ReformatDate(s string) (string, error) {
	if len(s) != 8 {
		return "", fmt.Errorf("%w: %q: want 8 digits YYYYMMDD", ErrInvalidDate, s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return "", fmt.Errorf("%w: %q: want 8 digits YYYYMMDD", ErrInvalidDate, s)
		}
	}
	t, err := time.Parse("20060102", s)
	if err != nil {
		return "", fmt.Errorf("%w: %q: %v", ErrInvalidDate, s, err)
	}
	return t.Format(time.DateOnly), nil
}
