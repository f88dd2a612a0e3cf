// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on Flush. A background loop
// flushes every FlushEvery so long loads produce a time series, and Close
// performs the final tail flush.
//
// Concurrency model:
//   - IncCounter/ObserveHistogram may be called at any time
//   - Flush swaps the buffer under a mutex, then submits out-of-lock
//   - Close stops the loop; call it once
package datadog

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"
	"github.com/jonboulle/clockwork"

	"salesetl/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric.
	// If empty, defaults to "salesetl".
	JobName string

	// Namespace prefixes every series name. Defaults to "salesetl".
	Namespace string

	// Tags are extra Datadog tags (e.g. []string{"env:prod", "team:data"}).
	Tags []string

	// FlushEvery controls how often buffered metrics are submitted.
	// If <= 0, defaults to 60 seconds.
	FlushEvery time.Duration

	// Clock drives timestamps and the flush ticker. Defaults to the real clock.
	Clock clockwork.Clock

	// submitter is a test seam; production uses the Datadog metrics API.
	submitter metricsSubmitter
}

// metricsSubmitter is the subset of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// stepKey identifies one load step outcome.
type stepKey struct {
	step, status string
}

func (k stepKey) tags() []string {
	return []string{"step:" + k.step, "status:" + k.status}
}

func compareStepKeys(a, b stepKey) int {
	return cmp.Or(cmp.Compare(a.step, b.step), cmp.Compare(a.status, b.status))
}

// buffer holds everything recorded since the last flush.
type buffer struct {
	steps     map[stepKey]float64
	durations map[stepKey][]float64
	rows      map[string]float64 // table -> rows written
	orphans   map[string]float64 // table -> orphaned rows found
	batches   float64
}

func newBuffer() *buffer {
	return &buffer{
		steps:     make(map[stepKey]float64),
		durations: make(map[stepKey][]float64),
		rows:      make(map[string]float64),
		orphans:   make(map[string]float64),
	}
}

func (b *buffer) empty() bool {
	return len(b.steps) == 0 && len(b.durations) == 0 &&
		len(b.rows) == 0 && len(b.orphans) == 0 && b.batches == 0
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	namespace  string
	flushEvery time.Duration
	clock      clockwork.Clock
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	mu  sync.Mutex
	buf *buffer
}

// envTag picks the env tag from ENV, then DD_ENV.
func envTag() string {
	for _, name := range []string{"ENV", "DD_ENV"} {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client.
//
// The client reads DD_API_KEY / DD_SITE from the environment through
// dd.NewDefaultContext.
//
// Errors:
//   - Returns an error if DD_API_KEY is not set (and no test submitter is injected).
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := cmp.Or(opts.JobName, "salesetl")
	ns := cmp.Or(strings.TrimSuffix(opts.Namespace, "."), "salesetl")

	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	submitter := opts.submitter
	if submitter == nil {
		if strings.TrimSpace(os.Getenv("DD_API_KEY")) == "" {
			return nil, fmt.Errorf("datadog metrics init: DD_API_KEY is not set")
		}
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		namespace:  ns,
		flushEvery: flushEvery,
		clock:      clock,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   append([]string{envTag(), "job:" + job}, opts.Tags...),
		buf:        newBuffer(),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.clock.NewTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.Chan():
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the background flush loop and performs one final Flush.
// Calling Close twice panics.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names and non-positive
// deltas are dropped.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	switch name {
	case metrics.StepTotal:
		b.buf.steps[stepKey{labels["step"], labels["status"]}] += delta
	case metrics.RecordsTotal:
		if table := labels["kind"]; table != "" {
			b.buf.rows[table] += delta
		}
	case metrics.OrphanRowsTotal:
		if table := labels["kind"]; table != "" {
			b.buf.orphans[table] += delta
		}
	case metrics.BatchesTotal:
		b.buf.batches += delta
	}
}

// ObserveHistogram implements metrics.Backend. Only step durations are kept.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 || name != metrics.StepDuration {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	k := stepKey{labels["step"], labels["status"]}
	b.buf.durations[k] = append(b.buf.durations[k], value)
}

func (b *Backend) swap() *buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.buf
	b.buf = newBuffer()
	return out
}

// Flush submits buffered metrics and resets the buffer, even when the
// submission fails. An empty buffer submits nothing.
func (b *Backend) Flush() error {
	buf := b.swap()
	if buf.empty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.series(buf, b.clock.Now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	return err
}

// series renders buf at a fixed timestamp in a deterministic order.
func (b *Backend) series(buf *buffer, ts int64) []datadogV2.MetricSeries {
	var out []datadogV2.MetricSeries
	add := func(suffix string, typ datadogV2.MetricIntakeType, v float64, extra ...string) {
		tags := append(slices.Clip(b.baseTags), extra...)
		out = append(out, point(b.namespace+"."+suffix, typ, v, tags, ts))
	}

	for _, k := range slices.SortedFunc(maps.Keys(buf.steps), compareStepKeys) {
		add("step.total", datadogV2.METRICINTAKETYPE_COUNT, buf.steps[k], k.tags()...)
	}
	for _, k := range slices.SortedFunc(maps.Keys(buf.durations), compareStepKeys) {
		s := slices.Sorted(slices.Values(buf.durations[k]))
		add("step.duration_seconds.p50", datadogV2.METRICINTAKETYPE_GAUGE, quantile(s, 0.50), k.tags()...)
		add("step.duration_seconds.p95", datadogV2.METRICINTAKETYPE_GAUGE, quantile(s, 0.95), k.tags()...)
		add("step.duration_seconds.max", datadogV2.METRICINTAKETYPE_GAUGE, s[len(s)-1], k.tags()...)
		add("step.duration_seconds.samples", datadogV2.METRICINTAKETYPE_GAUGE, float64(len(s)), k.tags()...)
	}
	for _, table := range slices.Sorted(maps.Keys(buf.rows)) {
		add("rows.total", datadogV2.METRICINTAKETYPE_COUNT, buf.rows[table], "table:"+table)
	}
	for _, table := range slices.Sorted(maps.Keys(buf.orphans)) {
		add("orphan_rows", datadogV2.METRICINTAKETYPE_GAUGE, buf.orphans[table], "table:"+table)
	}
	if buf.batches > 0 {
		add("batches.total", datadogV2.METRICINTAKETYPE_COUNT, buf.batches)
	}
	return out
}

func point(metric string, typ datadogV2.MetricIntakeType, v float64, tags []string, ts int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{{Timestamp: dd.PtrInt64(ts), Value: dd.PtrFloat64(v)}},
		Tags:   tags,
	}
}

// quantile is the nearest-rank quantile of sorted s.
func quantile(s []float64, p float64) float64 {
	if len(s) == 0 {
		return 0
	}
	i := int(p*float64(len(s)-1) + 0.5)
	return s[min(max(i, 0), len(s)-1)]
}

var _ metrics.Backend = (*Backend)(nil)

// ParseTagsCSV parses comma-separated tags like "env:prod,team:data".
func ParseTagsCSV(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
