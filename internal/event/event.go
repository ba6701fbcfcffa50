package event

import "time"

// Class identifies which payload variant an Event carries: spec.md §3
// models a unified pipeline over logs, metrics, and traces, distinguished
// by this tag rather than by separate queues.
type Class uint8

const (
	ClassLog Class = iota
	ClassMetric
	ClassTrace
)

func (c Class) String() string {
	switch c {
	case ClassLog:
		return "log"
	case ClassMetric:
		return "metric"
	case ClassTrace:
		return "trace"
	default:
		return "unknown"
	}
}

// MetricKind distinguishes the aggregation semantics of a Metric payload.
type MetricKind uint8

const (
	MetricCounter MetricKind = iota
	MetricGauge
	MetricHistogram
)

// Metric is a single numeric observation with a name, a kind, and a set of
// string tags; its value lives in Fields under well-known keys ("value" for
// counters/gauges, "buckets"/"sum"/"count" for histograms) so Metric shares
// Event's generic field-path machinery instead of a bespoke value type.
type Metric struct {
	Name string
	Kind MetricKind
	Tags map[string]string
}

// Trace is a single span in a distributed trace.
type Trace struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Name         string
	StartTime    time.Time
	EndTime      time.Time
}

// Event is one unit flowing through the router: a timestamped, tagged
// record carrying an arbitrary field tree (Fields) plus a class-specific
// payload (Metric/Trace) when Class is not ClassLog.
//
// Event values are shared by reference between buffer stages; callers must
// treat Fields as read-only once the event has fanned out to more than one
// subscriber. A single per-event Finalizer (see finalizer.go) tracks the
// delivery outcome back to whichever source produced it.
type Event struct {
	Class     Class
	Timestamp time.Time
	Fields    *Object

	Metric *Metric
	Trace  *Trace

	finalizer *Finalizer
}

// NewLogEvent constructs a log Event with an empty field object.
func NewLogEvent(ts time.Time) *Event {
	return &Event{Class: ClassLog, Timestamp: ts, Fields: NewObject()}
}

// NewMetricEvent constructs a metric Event.
func NewMetricEvent(ts time.Time, m *Metric) *Event {
	return &Event{Class: ClassMetric, Timestamp: ts, Fields: NewObject(), Metric: m}
}

// NewTraceEvent constructs a trace Event.
func NewTraceEvent(ts time.Time, tr *Trace) *Event {
	return &Event{Class: ClassTrace, Timestamp: ts, Fields: NewObject(), Trace: tr}
}

// Get resolves a dot/bracket field path against the event's Fields.
func (e *Event) Get(path string) (Value, bool) {
	return GetPath(e.Fields, path)
}

// Set assigns a dot/bracket field path against the event's Fields.
func (e *Event) Set(path string, v Value) error {
	return SetPath(e.Fields, path, v)
}

// WithFinalizer attaches f as the event's delivery-outcome tracker. An event
// carries at most one finalizer; attaching a second replaces the first
// without notifying it, so callers must not attach more than once per
// distinct delivery path.
func (e *Event) WithFinalizer(f *Finalizer) *Event {
	e.finalizer = f
	return e
}

// Finalizer returns the event's attached Finalizer, or nil if none.
func (e *Event) Finalizer() *Finalizer {
	return e.finalizer
}
