// Package prompush implements a Prometheus Pushgateway backend for the
// metrics package. A catalog run is a batch job with no scrape endpoint, so
// collected metrics are pushed once at the end of the run by Flush.
package prompush

import (

	"github.com/go-faster/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"catalogetl/internal/metrics"
)

// Backend is a Prometheus Pushgateway metrics backend.
type Backend struct {
	gatewayURL string // e.g. http://pushgateway:9091
	jobName    string // Pushgateway "job" group
	reg        *prometheus.Registry

	stepCounter  *prometheus.CounterVec
	stepDuration *prometheus.SummaryVec

	recordCounter *prometheus.CounterVec
	batchCounter  *prometheus.CounterVec

	checkCounter    *prometheus.CounterVec
	checkViolations *prometheus.GaugeVec
}

// NewBackend constructs a Pushgateway backend. jobName is the grouping job
// and defaults to "catalogetl".
func NewBackend(jobName, gatewayURL string) (*Backend, error) {
	if gatewayURL == "" {
		return nil, errors.New("prompush: gateway URL is required")
	}
	if jobName == "" {
		jobName = "catalogetl"
	}

	reg := prometheus.NewRegistry()

	// job is the Pushgateway grouping key, so it is not a label here.
	stepCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.StepTotal,
			Help: "Catalog run step executions, partitioned by step and status.",
		},
		[]string{"step", "status"},
	)
	stepDuration := prometheus.NewSummaryVec(
		prometheus.SummaryOpts{
			Name:       metrics.StepDuration,
			Help:       "Duration of catalog run steps in seconds.",
			Objectives: map[float64]float64{0.5: 0.05, 0.9: 0.01, 0.99: 0.001},
		},
		[]string{"step", "status"},
	)
	recordCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.RecordsTotal,
			Help: "Record counts per kind (processed, loaded, failed, keyless, duplicate, parse_error).",
		},
		[]string{"kind"},
	)
	batchCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.BatchesTotal,
			Help: "Load batches by outcome.",
		},
		[]string{"status"},
	)
	checkCounter := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: metrics.ChecksTotal,
			Help: "Data-quality check outcomes.",
		},
		[]string{"check", "status"},
	)
	checkViolations := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: metrics.CheckViolations,
			Help: "Value measured by each data-quality check in the last run.",
		},
		[]string{"check"},
	)

	for name, c := range map[string]prometheus.Collector{
		"step counter":     stepCounter,
		"step summary":     stepDuration,
		"record counter":   recordCounter,
		"batch counter":    batchCounter,
		"check counter":    checkCounter,
		"check violations": checkViolations,
	} {
		if err := reg.Register(c); err != nil {
			return nil, errors.Wrapf(err, "prompush: register %s", name)
		}
	}

	return &Backend{
		gatewayURL:      gatewayURL,
		jobName:         jobName,
		reg:             reg,
		stepCounter:     stepCounter,
		stepDuration:    stepDuration,
		recordCounter:   recordCounter,
		batchCounter:    batchCounter,
		checkCounter:    checkCounter,
		checkViolations: checkViolations,
	}, nil
}

func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	switch name {
	case metrics.StepTotal:
		if b.stepCounter != nil {
			b.stepCounter.WithLabelValues(labels["step"], labels["status"]).Add(delta)
		}
	case metrics.RecordsTotal:
		if b.recordCounter != nil {
			b.recordCounter.WithLabelValues(labels["kind"]).Add(delta)
		}
	case metrics.BatchesTotal:
		if b.batchCounter != nil {
			b.batchCounter.WithLabelValues(labels["status"]).Add(delta)
		}
	case metrics.ChecksTotal:
		if b.checkCounter != nil {
			b.checkCounter.WithLabelValues(labels["check"], labels["status"]).Add(delta)
		}
	default:
		// unknown metric name: ignore
	}
}

func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	switch name {
	case metrics.StepDuration:
		if b.stepDuration != nil {
			b.stepDuration.WithLabelValues(labels["step"], labels["status"]).Observe(value)
		}
	case metrics.CheckViolations:
		// One observation per check per run; the last value is what matters.
		if b.checkViolations != nil {
			b.checkViolations.WithLabelValues(labels["check"]).Set(value)
		}
	}
}

// Flush pushes the current registry to the Pushgateway.
func (b *Backend) Flush() error {
	return push.New(b.gatewayURL, b.jobName).
		Gatherer(b.reg).
		Push()
}
