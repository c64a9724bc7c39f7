package telemetry

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/shaiso/Conveyor/internal/domain"
)

var runStates = []domain.RunState{
	domain.RunStateIdle,
	domain.RunStateRunning,
	domain.RunStateCompleted,
	domain.RunStateFailed,
}

// Metrics — sink, который отражает snapshots в Prometheus метриках.
//
// Gauges показывают текущее состояние, counters и histogram
// увеличиваются один раз на переход (завершение шага или run).
type Metrics struct {
	overall      prometheus.Gauge
	state        *prometheus.GaugeVec
	stepProgress *prometheus.GaugeVec
	stepDetail   *prometheus.GaugeVec
	runsTotal    *prometheus.CounterVec
	stepsTotal   *prometheus.CounterVec
	stepDuration *prometheus.HistogramVec
	published    prometheus.Counter

	mu       sync.Mutex
	runID    uuid.UUID
	runState domain.RunState
	finished map[string]domain.StepStatus
}

// NewMetrics регистрирует метрики в reg. nil — prometheus.DefaultRegisterer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &Metrics{
		overall: f.NewGauge(prometheus.GaugeOpts{
			Name: "conveyor_pipeline_overall_progress",
			Help: "Mean progress of all pipeline steps, percent",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conveyor_pipeline_run_state",
			Help: "1 for the current pipeline run state, 0 otherwise",
		}, []string{"state"}),
		stepProgress: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conveyor_pipeline_step_progress",
			Help: "Progress of a pipeline step, percent",
		}, []string{"step"}),
		stepDetail: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "conveyor_pipeline_step_detail",
			Help: "Current value of a step detail metric",
		}, []string{"step", "metric"}),
		runsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_pipeline_runs_total",
			Help: "Finished pipeline runs by result",
		}, []string{"result"}),
		stepsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "conveyor_pipeline_steps_total",
			Help: "Finished pipeline steps by step and result",
		}, []string{"step", "result"}),
		stepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "conveyor_pipeline_step_duration_seconds",
			Help:    "Wall-clock duration of finished pipeline steps",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"step"}),
		published: f.NewCounter(prometheus.CounterOpts{
			Name: "conveyor_pipeline_snapshots_total",
			Help: "Snapshots published by the pipeline controller",
		}),
		finished: make(map[string]domain.StepStatus),
	}
}

// Publish реализует sink.Sink.
func (m *Metrics) Publish(_ context.Context, snap domain.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.published.Inc()
	m.overall.Set(snap.OverallProgress)
	for _, s := range runStates {
		v := 0.0
		if s == snap.State {
			v = 1
		}
		m.state.WithLabelValues(string(s)).Set(v)
	}

	if snap.RunID != m.runID {
		m.runID = snap.RunID
		m.runState = ""
		clear(m.finished)
	}

	for _, st := range snap.Steps {
		m.stepProgress.WithLabelValues(st.ID).Set(st.Progress)
		for name, v := range st.Details {
			m.stepDetail.WithLabelValues(st.ID, name).Set(float64(v))
		}

		if !st.Status.IsTerminal() || m.finished[st.ID] == st.Status {
			continue
		}
		m.finished[st.ID] = st.Status
		m.stepsTotal.WithLabelValues(st.ID, string(st.Status)).Inc()
		if st.StartedAt != nil && st.FinishedAt != nil {
			m.stepDuration.WithLabelValues(st.ID).Observe(st.FinishedAt.Sub(*st.StartedAt).Seconds())
		}
	}

	if snap.State.IsTerminal() && snap.State != m.runState {
		m.runsTotal.WithLabelValues(string(snap.State)).Inc()
	}
	m.runState = snap.State
	return nil
}
