// Package tracing creates and links trace/span contexts and propagates them
// across process boundaries in W3C Trace Context format.
//
// DESIGN: Every trace is mirrored into the underlying OpenTelemetry span
// synchronously, so the in-memory record and the instrumentation unit never
// diverge. In-memory records exist so the gateway can serve trace queries
// without an external backend.
//
// FILES:
//   - trace.go:   AudioTrace/AudioSpan records and their guarded mutation
//   - context.go: TraceContext/SpanContext capability surface
//   - service.go: active/completed registries and the cleanup sweep
package tracing

import (
	"sync"
	"time"
)

// Status is a trace or span terminal status.
type Status string

const (
	StatusUnset Status = "Unset"
	StatusOk    Status = "Ok"
	StatusError Status = "Error"
)

// Event is a timestamped occurrence on a trace.
type Event struct {
	Name       string            `json:"name"`
	Time       time.Time         `json:"time"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// ErrorRecord captures an exception recorded on a trace.
type ErrorRecord struct {
	Type    string    `json:"type"`
	Message string    `json:"message"`
	Stack   string    `json:"stack,omitempty"`
	Time    time.Time `json:"time"`
}

// AudioTrace is the in-memory record of one root timed operation.
// Mutation goes through the methods below; they tolerate late-arriving
// concurrent writes (a background task tagging after the primary caller
// disposed) without corruption.
type AudioTrace struct {
	mu sync.Mutex

	TraceID           string            `json:"trace_id"`
	Name              string            `json:"name"`
	OperationType     string            `json:"operation_type"`
	StartTime         time.Time         `json:"start_time"`
	EndTime           time.Time         `json:"end_time,omitempty"`
	Duration          time.Duration     `json:"duration,omitempty"`
	Status            Status            `json:"status"`
	StatusDescription string            `json:"status_description,omitempty"`
	Tags              map[string]string `json:"tags,omitempty"`
	Events            []Event           `json:"events,omitempty"`
	Error             *ErrorRecord      `json:"error,omitempty"`
	Spans             []*AudioSpan      `json:"spans,omitempty"`
}

// AudioSpan is the in-memory record of one timed sub-operation.
type AudioSpan struct {
	mu sync.Mutex

	SpanID       string            `json:"span_id"`
	ParentSpanID string            `json:"parent_span_id"`
	Name         string            `json:"name"`
	StartTime    time.Time         `json:"start_time"`
	EndTime      time.Time         `json:"end_time,omitempty"`
	Duration     time.Duration     `json:"duration,omitempty"`
	Status       Status            `json:"status"`
	Tags         map[string]string `json:"tags,omitempty"`
}

func (t *AudioTrace) setTag(key, value string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Tags == nil {
		t.Tags = make(map[string]string)
	}
	t.Tags[key] = value
}

func (t *AudioTrace) addEvent(e Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Events = append(t.Events, e)
}

// setStatus applies the status transition rule: Error is terminal and is
// never silently overwritten back to Ok.
func (t *AudioTrace) setStatus(s Status, description string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Status == StatusError && s != StatusError {
		return
	}
	t.Status = s
	t.StatusDescription = description
}

func (t *AudioTrace) setError(rec *ErrorRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Error = rec
}

func (t *AudioTrace) addSpan(s *AudioSpan) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Spans = append(t.Spans, s)
}

// finish stamps terminal time/duration, defaulting status to Ok when it
// was never explicitly set.
func (t *AudioTrace) finish(end time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.EndTime = end
	t.Duration = end.Sub(t.StartTime)
	if t.Status == StatusUnset || t.Status == "" {
		t.Status = StatusOk
	}
}

// CurrentStatus returns the status under the record lock.
func (t *AudioTrace) CurrentStatus() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Status
}

// Snapshot returns a deep copy taken under the record locks. Readers that
// serialize a trace use the copy; the live record keeps accepting
// late-arriving writes.
func (t *AudioTrace) Snapshot() *AudioTrace {
	t.mu.Lock()
	defer t.mu.Unlock()

	c := &AudioTrace{
		TraceID:           t.TraceID,
		Name:              t.Name,
		OperationType:     t.OperationType,
		StartTime:         t.StartTime,
		EndTime:           t.EndTime,
		Duration:          t.Duration,
		Status:            t.Status,
		StatusDescription: t.StatusDescription,
	}
	if len(t.Tags) > 0 {
		c.Tags = make(map[string]string, len(t.Tags))
		for k, v := range t.Tags {
			c.Tags[k] = v
		}
	}
	if len(t.Events) > 0 {
		c.Events = append([]Event(nil), t.Events...)
	}
	if t.Error != nil {
		rec := *t.Error
		c.Error = &rec
	}
	for _, s := range t.Spans {
		c.Spans = append(c.Spans, s.snapshot())
	}
	return c
}

func (s *AudioSpan) setTag(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Tags == nil {
		s.Tags = make(map[string]string)
	}
	s.Tags[key] = value
}

func (s *AudioSpan) setStatus(st Status, _ string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Status == StatusError && st != StatusError {
		return
	}
	s.Status = st
}

func (s *AudioSpan) currentStatus() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Status
}

func (s *AudioSpan) snapshot() *AudioSpan {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &AudioSpan{
		SpanID:       s.SpanID,
		ParentSpanID: s.ParentSpanID,
		Name:         s.Name,
		StartTime:    s.StartTime,
		EndTime:      s.EndTime,
		Duration:     s.Duration,
		Status:       s.Status,
	}
	if len(s.Tags) > 0 {
		c.Tags = make(map[string]string, len(s.Tags))
		for k, v := range s.Tags {
			c.Tags[k] = v
		}
	}
	return c
}

func (s *AudioSpan) finish(end time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.EndTime = end
	s.Duration = end.Sub(s.StartTime)
	if s.Status == StatusUnset || s.Status == "" {
		s.Status = StatusOk
	}
}
