package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the engine. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Unit of work
	UnitsOfWork        *prometheus.CounterVec
	UnitOfWorkDuration *prometheus.HistogramVec

	// Key lifecycle
	KeyTransitions *prometheus.CounterVec

	// Consumption
	ConsumptionRows     *prometheus.CounterVec
	UpsertChunkDuration prometheus.Histogram

	// Identity
	IdentityLookups *prometheus.CounterVec

	// Ingestion
	IngestMessages  *prometheus.CounterVec
	BufferedBatches prometheus.Gauge
}

// New creates the metrics on a dedicated registry, so several instances can
// coexist in tests.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		UnitsOfWork: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_units_of_work_total",
				Help: "Units of work by outcome",
			},
			[]string{"outcome"},
		),

		UnitOfWorkDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "engine_unit_of_work_duration_seconds",
				Help:    "Duration of units of work from begin to commit or rollback",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"outcome"},
		),

		KeyTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_key_transitions_total",
				Help: "Allocation key association transitions",
			},
			[]string{"transition"},
		),

		ConsumptionRows: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_consumption_rows_total",
				Help: "Consumption rows written by the upserter",
			},
			[]string{"owner_kind", "action"},
		),

		UpsertChunkDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "engine_upsert_chunk_duration_seconds",
				Help:    "Duration of one lookup-merge-write upsert chunk",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),

		IdentityLookups: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_identity_lookups_total",
				Help: "Identity directory lookups by kind and answering tier",
			},
			[]string{"kind", "source"},
		),

		IngestMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "engine_ingest_messages_total",
				Help: "Consumption ingestion messages by result",
			},
			[]string{"result"},
		),

		BufferedBatches: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "engine_buffered_batches",
				Help: "Consumption batches waiting in the local buffer",
			},
		),
	}
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveUnitOfWork(outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.UnitsOfWork.WithLabelValues(outcome).Inc()
	m.UnitOfWorkDuration.WithLabelValues(outcome).Observe(time.Since(started).Seconds())
}

func (m *Metrics) KeyTransition(transition string) {
	if m == nil {
		return
	}
	m.KeyTransitions.WithLabelValues(transition).Inc()
}

func (m *Metrics) ConsumptionWritten(ownerKind string, inserted, updated int) {
	if m == nil {
		return
	}
	m.ConsumptionRows.WithLabelValues(ownerKind, "insert").Add(float64(inserted))
	m.ConsumptionRows.WithLabelValues(ownerKind, "update").Add(float64(updated))
}

func (m *Metrics) ObserveChunk(started time.Time) {
	if m == nil {
		return
	}
	m.UpsertChunkDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) IdentityLookup(kind, source string) {
	if m == nil {
		return
	}
	m.IdentityLookups.WithLabelValues(kind, source).Inc()
}

func (m *Metrics) IngestMessage(result string) {
	if m == nil {
		return
	}
	m.IngestMessages.WithLabelValues(result).Inc()
}

func (m *Metrics) SetBuffered(n int) {
	if m == nil {
		return
	}
	m.BufferedBatches.Set(float64(n))
}
