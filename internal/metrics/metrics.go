// Package metrics is a tiny, backend-agnostic metrics facade.
//
// Loader code records through the package-level functions; cmd code picks a
// backend (Pushgateway, Datadog, or none) with SetBackend at startup. The
// default backend discards everything.
package metrics

import (
	"sync"
	"time"
)

// Metric names shared by every backend.
const (
	StepTotal       = "salesetl_step_total"            // {step, status}
	StepDuration    = "salesetl_step_duration_seconds" // {step, status}
	RecordsTotal    = "salesetl_rows_total"            // {kind}
	BatchesTotal    = "salesetl_batches_total"
	OrphanRowsTotal = "salesetl_orphan_rows_total" // {kind}
)

// Labels are metric dimensions.
type Labels map[string]string

// Backend receives metric events.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var (
	mu      sync.RWMutex
	current Backend = nopBackend{}
)

// SetBackend installs b as the process-wide backend. nil restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	current = b
}

func backend() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

func IncCounter(name string, delta float64, labels Labels) {
	backend().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	backend().ObserveHistogram(name, value, labels)
}

// Flush pushes buffered metrics to the current backend.
func Flush() error {
	return backend().Flush()
}

// RecordStep records one finished pipeline step.
func RecordStep(step, status string, d time.Duration) {
	l := Labels{"step": step, "status": status}
	IncCounter(StepTotal, 1, l)
	ObserveHistogram(StepDuration, d.Seconds(), l)
}

// RecordRows counts rows written to a table and the batch that carried them.
func RecordRows(table string, n int64) {
	if n <= 0 {
		return
	}
	IncCounter(RecordsTotal, float64(n), Labels{"kind": table})
	IncCounter(BatchesTotal, 1, nil)
}
