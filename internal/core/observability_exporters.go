package core

import (
	"context"
	"encoding/json"
	"errors"
	"expvar"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"labbench/pkg/domain"
)

var expvarSeq uint64

// rejectionReasons lists the recoverable errors counted by name; anything
// else is counted as "other".
var rejectionReasons = []error{
	domain.ErrEquipmentNotFound,
	domain.ErrInvalidAmount,
	domain.ErrUnknownChemical,
	domain.ErrUnknownEquipment,
	domain.ErrDuplicateEquipment,
	domain.ErrEmptyHistory,
	domain.ErrStepNotAdvanceable,
	domain.ErrPreviousDisabled,
	domain.ErrUnknownAction,
}

func rejectionReason(err error) string {
	for _, reason := range rejectionReasons {
		if errors.Is(err, reason) {
			return reason.Error()
		}
	}
	return "other"
}

// OperationStats counts one operation kind within an experiment.
type OperationStats struct {
	Succeeded  int64   `json:"succeeded"`
	Rejected   int64   `json:"rejected"`
	DurationMS float64 `json:"duration_ms_total"`
}

// ExperimentStats aggregates learner activity for one experiment: what was
// tried, why attempts were rejected and how far sessions got.
type ExperimentStats struct {
	Operations   map[string]OperationStats `json:"operations"`
	Rejections   map[string]int64          `json:"rejections,omitempty"`
	FurthestStep int                       `json:"furthest_step"`
	Completed    bool                      `json:"completed"`
}

func (s ExperimentStats) clone() ExperimentStats {
	out := s
	out.Operations = make(map[string]OperationStats, len(s.Operations))
	for op, st := range s.Operations {
		out.Operations[op] = st
	}
	if s.Rejections != nil {
		out.Rejections = make(map[string]int64, len(s.Rejections))
		for reason, n := range s.Rejections {
			out.Rejections[reason] = n
		}
	}
	return out
}

// ExpvarMetricsSnapshot is a point-in-time copy of ExpvarMetricsRecorder.
type ExpvarMetricsSnapshot struct {
	Experiments map[string]ExperimentStats `json:"experiments"`
	RecordedAt  time.Time                  `json:"recorded_at"`
}

// ExpvarMetricsRecorder keeps per-experiment session statistics in process
// and publishes them through expvar. It backs `labbench run --stats`.
type ExpvarMetricsRecorder struct {
	name string

	mu          sync.Mutex
	experiments map[string]*ExperimentStats
}

// NewExpvarMetricsRecorder publishes a recorder under name. An empty name gets
// a generated unique one, since expvar panics on duplicate names.
func NewExpvarMetricsRecorder(name string) *ExpvarMetricsRecorder {
	if name == "" {
		name = fmt.Sprintf("labbench_session_stats_%d", atomic.AddUint64(&expvarSeq, 1))
	}
	rec := &ExpvarMetricsRecorder{name: name, experiments: make(map[string]*ExperimentStats)}
	expvar.Publish(name, expvar.Func(func() any { return rec.Snapshot() }))
	return rec
}

// Name returns the expvar key.
func (r *ExpvarMetricsRecorder) Name() string { return r.name }

// Observe implements MetricsRecorder.
func (r *ExpvarMetricsRecorder) Observe(_ context.Context, o Outcome) {
	if o.Operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	exp := r.experiments[o.Experiment]
	if exp == nil {
		exp = &ExperimentStats{Operations: make(map[string]OperationStats)}
		r.experiments[o.Experiment] = exp
	}
	op := exp.Operations[o.Operation]
	op.DurationMS += float64(o.Duration) / float64(time.Millisecond)
	if o.Err != nil {
		op.Rejected++
		if exp.Rejections == nil {
			exp.Rejections = make(map[string]int64)
		}
		exp.Rejections[rejectionReason(o.Err)]++
	} else {
		op.Succeeded++
	}
	exp.Operations[o.Operation] = op
	if o.Step > exp.FurthestStep {
		exp.FurthestStep = o.Step
	}
	exp.Completed = exp.Completed || o.Complete
}

// Snapshot copies the statistics gathered so far.
func (r *ExpvarMetricsRecorder) Snapshot() ExpvarMetricsSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := ExpvarMetricsSnapshot{
		Experiments: make(map[string]ExperimentStats, len(r.experiments)),
		RecordedAt:  time.Now().UTC(),
	}
	for id, exp := range r.experiments {
		snap.Experiments[id] = exp.clone()
	}
	return snap
}

// JSONTraceEntry is one engine operation as written by JSONTraceTracer.
type JSONTraceEntry struct {
	Experiment string    `json:"experiment"`
	Session    string    `json:"session,omitempty"`
	Operation  string    `json:"operation"`
	Step       int       `json:"step"`
	Complete   bool      `json:"complete,omitempty"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	DurationMS float64   `json:"duration_ms"`
	StartedAt  time.Time `json:"started_at"`
}

// JSONTraceTracer writes one JSON line per engine operation and keeps the
// entries for inspection. `labbench run --trace` points it at stderr.
type JSONTraceTracer struct {
	mu      sync.Mutex
	w       io.Writer
	entries []JSONTraceEntry
}

// NewJSONTracer constructs a tracer writing to w. A nil writer only retains
// entries in memory.
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	return &JSONTraceTracer{w: w}
}

// Entries returns a copy of the recorded entries.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]JSONTraceEntry(nil), t.entries...)
}

// Start implements Tracer.
func (t *JSONTraceTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	started := time.Now().UTC()
	return ctx, traceLine(func(o Outcome) { t.write(started, o) })
}

func (t *JSONTraceTracer) write(started time.Time, o Outcome) {
	entry := JSONTraceEntry{
		Experiment: o.Experiment,
		Session:    o.Session,
		Operation:  o.Operation,
		Step:       o.Step,
		Complete:   o.Complete,
		Status:     string(o.Status()),
		DurationMS: float64(o.Duration) / float64(time.Millisecond),
		StartedAt:  started,
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, entry)
	if t.w == nil {
		return
	}
	if line, err := json.Marshal(entry); err == nil {
		_, _ = t.w.Write(append(line, '\n'))
	}
}

type traceLine func(Outcome)

func (f traceLine) End(o Outcome) { f(o) }
