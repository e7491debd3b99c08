// Package tracing - context.go is the caller-facing capability surface.
//
// DESIGN: A disabled or sampled-out instrumentation layer yields a no-op
// context whose every operation is inert. Callers never special-case it:
// the no-op context satisfies the same surface (tag/event, status,
// exception, propagation headers, End) as a live one.
package tracing

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/voxlane/audio-gateway/internal/correlation"
)

// TraceContext owns one AudioTrace and its underlying instrumentation span.
// End completes the trace exactly once.
type TraceContext struct {
	svc   *Service
	trace *AudioTrace
	span  trace.Span
	ctx   context.Context
	noop  bool

	mu    sync.Mutex
	ended bool
}

func noopTraceContext(ctx context.Context, span trace.Span) *TraceContext {
	return &TraceContext{ctx: ctx, span: span, noop: true}
}

// IsRecording reports whether this context is backed by a live trace.
func (tc *TraceContext) IsRecording() bool { return !tc.noop }

// Trace returns the in-memory trace record, nil for a no-op context.
func (tc *TraceContext) Trace() *AudioTrace {
	if tc.noop {
		return nil
	}
	return tc.trace
}

// TraceID returns the trace id, "" for a no-op context.
func (tc *TraceContext) TraceID() string {
	if tc.noop {
		return ""
	}
	return tc.trace.TraceID
}

// AddTag records a tag on both the in-memory trace and the underlying
// span, synchronously so the two never diverge.
func (tc *TraceContext) AddTag(key, value string) {
	if tc.noop {
		return
	}
	tc.trace.setTag(key, value)
	tc.span.SetAttributes(attribute.String(key, value))
}

// AddEvent records a timestamped event on the trace and the span.
func (tc *TraceContext) AddEvent(name string, attrs map[string]string) {
	if tc.noop {
		return
	}
	tc.trace.addEvent(Event{Name: name, Time: time.Now(), Attributes: attrs})
	opts := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		opts = append(opts, attribute.String(k, v))
	}
	tc.span.AddEvent(name, trace.WithAttributes(opts...))
}

// SetStatus sets the trace status. Error, once set, is terminal.
func (tc *TraceContext) SetStatus(status Status, description string) {
	if tc.noop {
		return
	}
	tc.trace.setStatus(status, description)
	switch tc.trace.CurrentStatus() {
	case StatusOk:
		tc.span.SetStatus(codes.Ok, description)
	case StatusError:
		tc.span.SetStatus(codes.Error, description)
	}
}

// RecordException records err as the trace's error record, appends an
// "exception" event with equivalent attributes, and forces status Error
// with the exception message as the description.
func (tc *TraceContext) RecordException(err error) {
	if tc.noop || err == nil {
		return
	}
	now := time.Now()
	stack := string(debug.Stack())
	tc.trace.setError(&ErrorRecord{
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
		Stack:   stack,
		Time:    now,
	})
	tc.trace.addEvent(Event{
		Name: "exception",
		Time: now,
		Attributes: map[string]string{
			"exception.type":       fmt.Sprintf("%T", err),
			"exception.message":    err.Error(),
			"exception.stacktrace": stack,
		},
	})
	tc.trace.setStatus(StatusError, err.Error())

	tc.span.RecordError(err, trace.WithStackTrace(true))
	tc.span.SetStatus(codes.Error, err.Error())
}

// PropagationHeaders returns the W3C-style headers for outbound calls:
// traceparent (always marked sampled), tracestate when present,
// X-Correlation-ID/X-Request-ID from baggage, and X-Context-<key> for
// every baggage entry prefixed "context.".
func (tc *TraceContext) PropagationHeaders() map[string]string {
	headers := make(map[string]string)
	if tc.span == nil {
		return headers
	}
	sc := tc.span.SpanContext()
	if !sc.IsValid() {
		return headers
	}
	headers["traceparent"] = fmt.Sprintf("00-%s-%s-01", sc.TraceID(), sc.SpanID())
	if ts := sc.TraceState().String(); ts != "" {
		headers["tracestate"] = ts
	}

	bag := baggage.FromContext(tc.ctx)
	if v := bag.Member(correlation.BaggageKey).Value(); v != "" {
		headers[correlation.HeaderCorrelationID] = v
	}
	if v := bag.Member("request.id").Value(); v != "" {
		headers[correlation.HeaderRequestID] = v
	}
	for _, m := range bag.Members() {
		if key, ok := strings.CutPrefix(m.Key(), "context."); ok {
			headers["X-Context-"+key] = m.Value()
		}
	}
	return headers
}

// End completes the trace: end time stamped, duration computed, status
// defaulted to Ok if never explicitly set, moved from the active registry
// to the completed list. Safe to call more than once.
func (tc *TraceContext) End() {
	tc.mu.Lock()
	if tc.ended {
		tc.mu.Unlock()
		return
	}
	tc.ended = true
	tc.mu.Unlock()

	if tc.noop {
		if tc.span != nil {
			tc.span.End()
		}
		return
	}

	tc.trace.finish(time.Now())
	if tc.trace.CurrentStatus() == StatusOk {
		tc.span.SetStatus(codes.Ok, "")
	}
	tc.span.End()
	tc.svc.complete(tc.trace)
}

// SpanContext owns one AudioSpan and its underlying instrumentation span.
type SpanContext struct {
	record *AudioSpan
	span   trace.Span
	ctx    context.Context

	mu    sync.Mutex
	ended bool
}

// SpanID returns the span id.
func (sc *SpanContext) SpanID() string { return sc.record.SpanID }

// Context returns the context carrying this span, for nesting child work.
func (sc *SpanContext) Context() context.Context { return sc.ctx }

// AddTag records a tag on the span record and the instrumentation span.
func (sc *SpanContext) AddTag(key, value string) {
	sc.record.setTag(key, value)
	sc.span.SetAttributes(attribute.String(key, value))
}

// SetStatus sets the span status. Error, once set, is terminal. The
// instrumentation span mirrors the guarded record status, not the
// requested one, so the two never diverge.
func (sc *SpanContext) SetStatus(status Status, description string) {
	sc.record.setStatus(status, description)
	switch sc.record.currentStatus() {
	case StatusOk:
		sc.span.SetStatus(codes.Ok, description)
	case StatusError:
		sc.span.SetStatus(codes.Error, description)
	}
}

// RecordException marks the span failed with err.
func (sc *SpanContext) RecordException(err error) {
	if err == nil {
		return
	}
	sc.record.setStatus(StatusError, err.Error())
	sc.span.RecordError(err)
	sc.span.SetStatus(codes.Error, err.Error())
}

// End stamps end time/duration and defaults status to Ok. Safe to call
// more than once.
func (sc *SpanContext) End() {
	sc.mu.Lock()
	if sc.ended {
		sc.mu.Unlock()
		return
	}
	sc.ended = true
	sc.mu.Unlock()

	sc.record.finish(time.Now())
	sc.span.End()
}
