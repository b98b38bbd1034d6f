// Package metrics exposes Prometheus instrumentation for approximation runs.
package metrics

import (
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"
	"github.com/rs/zerolog/log"
)

// Registry holds the orthofit metrics on a private Prometheus registry so
// that several runs in one process (tests, selftest) do not collide.
// All methods are safe on a nil *Registry.
type Registry struct {
	reg *prometheus.Registry

	PointsTotal          prometheus.Counter
	PointsSkipped        prometheus.Counter
	DegenerateDirections prometheus.Counter
	BatchDuration        *prometheus.HistogramVec
	ReconstructionError  prometheus.Histogram
	RowsDone             prometheus.Gauge
	RowsTotal            prometheus.Gauge
	SinkWrites           *prometheus.CounterVec
}

// New creates a registry with all orthofit metrics plus the Go and process
// collectors.
func New() *Registry {
	m := &Registry{
		reg: prometheus.NewRegistry(),

		PointsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orthofit_points_total",
			Help: "Grid points approximated",
		}),
		PointsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orthofit_points_skipped_total",
			Help: "Grid points skipped because of a shape mismatch",
		}),
		DegenerateDirections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "orthofit_degenerate_directions_total",
			Help: "Orthogonal directions that fell under the degeneracy tolerance",
		}),
		BatchDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orthofit_batch_duration_seconds",
				Help:    "Duration of one batch (load and sweep) in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"result"},
		),
		ReconstructionError: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "orthofit_reconstruction_error",
			Help:    "RMS reconstruction error per grid point",
			Buckets: prometheus.ExponentialBuckets(1e-12, 10, 14),
		}),
		RowsDone: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orthofit_rows_done",
			Help: "Grid rows processed in the current run",
		}),
		RowsTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "orthofit_rows_total",
			Help: "Grid rows planned for the current run",
		}),
		SinkWrites: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orthofit_sink_writes_total",
				Help: "Result sink writes by sink and result",
			},
			[]string{"sink", "result"},
		),
	}

	m.reg.MustRegister(
		m.PointsTotal,
		m.PointsSkipped,
		m.DegenerateDirections,
		m.BatchDuration,
		m.ReconstructionError,
		m.RowsDone,
		m.RowsTotal,
		m.SinkWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Registry) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

// BatchTimer times one batch.
type BatchTimer struct {
	metrics *Registry
	start   time.Time
	batch   int
}

// StartBatchTimer begins timing batch number batch.
func (m *Registry) StartBatchTimer(batch int) *BatchTimer {
	return &BatchTimer{metrics: m, start: time.Now(), batch: batch}
}

// Stop records the batch duration under result ("ok", "empty" or "error") and
// returns it.
func (bt *BatchTimer) Stop(result string) time.Duration {
	d := time.Since(bt.start)
	if bt.metrics != nil {
		bt.metrics.BatchDuration.WithLabelValues(result).Observe(d.Seconds())
	}
	log.Debug().
		Int("batch", bt.batch).
		Str("result", result).
		Dur("duration", d).
		Msg("Batch timed")
	return d
}

// RecordPoints adds the counts of one batch.
func (m *Registry) RecordPoints(points, skipped, degenerateDirections int) {
	if m == nil {
		return
	}
	m.PointsTotal.Add(float64(points))
	m.PointsSkipped.Add(float64(skipped))
	m.DegenerateDirections.Add(float64(degenerateDirections))
}

// ObserveError records one point's reconstruction error.
func (m *Registry) ObserveError(v float64) {
	if m == nil {
		return
	}
	m.ReconstructionError.Observe(v)
}

// SetRows updates the row progress gauges.
func (m *Registry) SetRows(done, total int) {
	if m == nil {
		return
	}
	m.RowsDone.Set(float64(done))
	m.RowsTotal.Set(float64(total))
}

// RecordSinkWrite counts one sink write.
func (m *Registry) RecordSinkWrite(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.SinkWrites.WithLabelValues(sink, result).Inc()
}

// Snapshot is a flat view of the orthofit metrics: counter and gauge values,
// and sample counts for histograms. Labelled series are summed.
type Snapshot map[string]float64

// Snapshot gathers the current orthofit_* values.
func (m *Registry) Snapshot() (Snapshot, error) {
	snap := Snapshot{}
	if m == nil {
		return snap, nil
	}
	families, err := m.reg.Gather()
	if err != nil {
		return nil, err
	}
	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, "orthofit_") {
			continue
		}
		snap[name] = sumFamily(mf)
	}
	return snap, nil
}

func sumFamily(mf *dto.MetricFamily) float64 {
	var v float64
	for _, metric := range mf.GetMetric() {
		switch mf.GetType() {
		case dto.MetricType_COUNTER:
			v += metric.GetCounter().GetValue()
		case dto.MetricType_GAUGE:
			v += metric.GetGauge().GetValue()
		case dto.MetricType_HISTOGRAM:
			v += float64(metric.GetHistogram().GetSampleCount())
		}
	}
	return v
}

// Names returns the snapshot keys in sorted order.
func (s Snapshot) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
