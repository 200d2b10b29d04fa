// Package metrics exports Prometheus histograms for the dictation
// pipeline's per-stage latencies. No teacher file exports metrics
// directly -- this package is grounded on the *shape* of the
// measurements the teacher's pkg/orchestrator/managed_stream.go
// tracks (GetLatency/GetLatencyBreakdown: user-stop to STT-end,
// STT duration, end-to-end latency), re-expressed as
// github.com/prometheus/client_golang histograms instead of
// request-scoped time.Time fields, since a long-running daemon needs
// cumulative observability rather than a per-call breakdown struct.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage names the pipeline phase a duration was measured for.
type Stage string

const (
	StageSilenceTrim Stage = "silence_trim"
	StageSTT         Stage = "stt"
	StageRefine      Stage = "refine"
	StageInsert      Stage = "insert"
	StageEndToEnd    Stage = "end_to_end"
)

// Recorder owns the process's dictation metrics. Construct one with
// New and register it with a prometheus.Registerer via Register
// (cmd/dictation-daemon passes prometheus.DefaultRegisterer).
type Recorder struct {
	stageLatency  *prometheus.HistogramVec
	utterances    prometheus.Counter
	hallucinations prometheus.Counter
	refinements   *prometheus.CounterVec
}

// New constructs a Recorder. Call Register to expose it on a registry.
func New() *Recorder {
	return &Recorder{
		stageLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dictation",
			Name:      "stage_latency_seconds",
			Help:      "Latency of each dictation pipeline stage.",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"stage"}),
		utterances: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dictation",
			Name:      "utterances_total",
			Help:      "Total utterances processed through the pipeline.",
		}),
		hallucinations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dictation",
			Name:      "hallucinations_discarded_total",
			Help:      "Utterances discarded as known STT hallucinations or prompt echoes.",
		}),
		refinements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dictation",
			Name:      "refinements_total",
			Help:      "LLM refinement attempts by outcome.",
		}, []string{"outcome"}),
	}
}

// Register attaches all of the Recorder's collectors to reg.
func (r *Recorder) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{r.stageLatency, r.utterances, r.hallucinations, r.refinements} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// ObserveStage records how long a pipeline stage took.
func (r *Recorder) ObserveStage(stage Stage, d time.Duration) {
	r.stageLatency.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// IncUtterance counts one utterance reaching the pipeline.
func (r *Recorder) IncUtterance() {
	r.utterances.Inc()
}

// IncHallucinationDiscarded counts one utterance dropped as a known
// hallucination or prompt echo.
func (r *Recorder) IncHallucinationDiscarded() {
	r.hallucinations.Inc()
}

// RefinementOutcome names why a refinement call ended the way it did,
// for the refinements_total counter's "outcome" label.
type RefinementOutcome string

const (
	RefinementAccepted        RefinementOutcome = "accepted"
	RefinementSkippedByGate   RefinementOutcome = "skipped_gate"
	RefinementRejectedAsShort RefinementOutcome = "rejected_short"
	RefinementErrored         RefinementOutcome = "errored"
)

// IncRefinement counts one refinement attempt's outcome.
func (r *Recorder) IncRefinement(outcome RefinementOutcome) {
	r.refinements.WithLabelValues(string(outcome)).Inc()
}
