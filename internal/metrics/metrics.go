// Package metrics records batch, leaf and archive counters for one gtm process.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AndreyAkinshin/gtm/internal/evidence"
)

// Namespace prefixes every metric name.
const Namespace = "gtm"

// Archive result label values.
const (
	ArchiveOK        = "ok"
	ArchiveCopyError = "copy_error"
	ArchiveZipError  = "zip_error"
	ArchiveError     = "error"
)

// Recorder receives execution events. Runner code calls it unconditionally,
// so implementations must tolerate every call.
type Recorder interface {
	LeafFinished(runner string, passed bool, d time.Duration)
	ArchiveFinished(err error)
	BatchFinished(passed bool)
}

// Nop discards everything.
type Nop struct{}

func (Nop) LeafFinished(string, bool, time.Duration) {}
func (Nop) ArchiveFinished(error)                    {}
func (Nop) BatchFinished(bool)                       {}

// Metrics is a Recorder backed by its own prometheus registry. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	leavesTotal  *prometheus.CounterVec
	leafDuration *prometheus.HistogramVec
	archiveTotal *prometheus.CounterVec
	batchesTotal *prometheus.CounterVec
}

var _ Recorder = (*Metrics)(nil)

// New creates a Metrics with a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		leavesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "leaves_total",
			Help:      "Count of executed test leaves by runner kind and verdict",
		}, []string{
			"runner",
			"status",
		}),
		leafDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "leaf_duration_seconds",
			Help:      "Wall time of a single leaf including process start",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{
			"runner",
		}),
		archiveTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "archive_total",
			Help:      "Count of evidence archive attempts by result",
		}, []string{
			"result",
		}),
		batchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "batches_total",
			Help:      "Count of finished batches by result",
		}, []string{
			"result",
		}),
	}
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) LeafFinished(runner string, passed bool, d time.Duration) {
	if m == nil {
		return
	}
	if runner == "" {
		runner = "unknown"
	}
	m.leavesTotal.WithLabelValues(runner, statusLabel(passed)).Inc()
	m.leafDuration.WithLabelValues(runner).Observe(d.Seconds())
}

func (m *Metrics) ArchiveFinished(err error) {
	if m == nil {
		return
	}
	m.archiveTotal.WithLabelValues(archiveLabel(err)).Inc()
}

func (m *Metrics) BatchFinished(passed bool) {
	if m == nil {
		return
	}
	m.batchesTotal.WithLabelValues(statusLabel(passed)).Inc()
}

// WriteTextfile writes all metrics in the node-exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return errors.New("metrics are not enabled")
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

func statusLabel(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func archiveLabel(err error) string {
	switch {
	case err == nil:
		return ArchiveOK
	case errors.Is(err, evidence.ErrCopy):
		return ArchiveCopyError
	case errors.Is(err, evidence.ErrZip):
		return ArchiveZipError
	default:
		return ArchiveError
	}
}
