package multitable

import (
	"errors"
	"fmt"
)

var (
	// ErrLookupMiss means a foreign natural key was not found in a mapping
	// built by an earlier step. It signals an ordering bug or inconsistent
	// source data and always aborts the step.
	ErrLookupMiss = errors.New("lookup miss")

	// ErrInvalidDate is returned by ReformatDate for anything but a valid
	// 8-digit YYYYMMDD calendar date.
	ErrInvalidDate = errors.New("invalid date")

	// ErrKeyConflict means two distinct dimension tuples share one natural key
	// (e.g. the same country listed under two regions).
	ErrKeyConflict = errors.New("natural key conflict")
)

// LookupMissError names the mapping and the key that was not found.
type LookupMissError struct {
	Table string
	Key   string
	Line  int // source line, 0 if unknown
}

func (e *LookupMissError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s has no row for %q", e.Line, ErrLookupMiss, e.Table, e.Key)
	}
	return fmt.Sprintf("%s: %s has no row for %q", ErrLookupMiss, e.Table, e.Key)
}

func (e *LookupMissError) Unwrap() error { return ErrLookupMiss }

// StepError wraps the failure of one pipeline step.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string { return fmt.Sprintf("step %s: %v", e.Step, e.Err) }

func (e *StepError) Unwrap() error { return e.Err }
