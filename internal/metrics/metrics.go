// Package metrics records operational metrics for catalog runs behind a
// narrow, backend-agnostic facade.
//
// The default backend is a no-op, so every Record* call is safe even when no
// metrics system is configured. Concrete backends (Prometheus Pushgateway,
// DogStatsD) live in subpackages and are installed with SetBackend.
package metrics

import "time"

// Metric names shared by the facade and the backends.
const (
	StepTotal       = "catalogetl_step_total"
	StepDuration    = "catalogetl_step_duration_seconds"
	RecordsTotal    = "catalogetl_records_total"
	BatchesTotal    = "catalogetl_batches_total"
	ChecksTotal     = "catalogetl_dq_checks_total"
	CheckViolations = "catalogetl_dq_violations"
)

// Record kinds reported through RecordRows.
const (
	KindProcessed  = "processed"
	KindLoaded     = "loaded"
	KindFailed     = "failed"
	KindKeyless    = "keyless"
	KindDuplicate  = "duplicate"
	KindParseError = "parse_error"
)

// Labels are string key/value pairs attached to a metric.
type Labels map[string]string

// Backend is the minimal interface for metrics backends.
type Backend interface {
	// IncCounter increments a counter by delta.
	IncCounter(name string, delta float64, labels Labels)
	// ObserveHistogram records a value in a latency/duration style metric.
	ObserveHistogram(name string, value float64, labels Labels)
	// Flush pushes or flushes metrics, if the backend needs it (e.g. Pushgateway).
	Flush() error
}

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}
func (nopBackend) Flush() error                             { return nil }

var backend Backend = nopBackend{}

// SetBackend installs a concrete backend. Passing nil keeps the existing backend.
func SetBackend(b Backend) {
	if b == nil {
		return
	}
	backend = b
}

// Reset puts the no-op backend back.
func Reset() { backend = nopBackend{} }

// Flush delegates to the current backend.
func Flush() error {
	return backend.Flush()
}

// RecordStep counts one execution of a run step (schema, load, quality,
// profile) and observes its duration, labelled by outcome.
func RecordStep(job, step string, err error, d time.Duration) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	lbls := Labels{
		"job":    job,
		"step":   step,
		"status": status,
	}
	backend.IncCounter(StepTotal, 1, lbls)
	backend.ObserveHistogram(StepDuration, d.Seconds(), lbls)
}

// RecordRows increments the record counter for kind. Non-positive deltas are
// dropped.
func RecordRows(job, kind string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(RecordsTotal, float64(delta), Labels{
		"job":  job,
		"kind": kind,
	})
}

// RecordBatches increments the batch counter for status ("committed" or
// "failed").
func RecordBatches(job, status string, delta int64) {
	if delta <= 0 {
		return
	}
	backend.IncCounter(BatchesTotal, float64(delta), Labels{
		"job":    job,
		"status": status,
	})
}

// RecordCheck reports the outcome of one data-quality check together with its
// violation count.
func RecordCheck(job, check, status string, count int64) {
	lbls := Labels{
		"job":    job,
		"check":  check,
		"status": status,
	}
	backend.IncCounter(ChecksTotal, 1, lbls)
	backend.ObserveHistogram(CheckViolations, float64(count), Labels{
		"job":   job,
		"check": check,
	})
}
