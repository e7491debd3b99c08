// Package correlation resolves and propagates the request correlation identity.
//
// DESIGN: No ambient/global state. The correlation id travels on the
// context.Context through every call boundary, so each logical call chain
// has its own effective value. Resolution order is fixed:
//  1. Value stored by WithCorrelationID (request-scoped, set by middleware)
//  2. Request id stored by WithRequestID (fallback when no explicit value)
//  3. Value installed by an active Scope
//  4. OTel baggage member "correlation.id" on the active trace
package correlation

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
)

// HTTP header names for correlation propagation.
const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"
	HeaderTraceparent   = "traceparent"
)

// BaggageKey is the baggage member carrying the correlation id across
// process boundaries.
const BaggageKey = "correlation.id"

type ctxKey int

const (
	correlationIDKey ctxKey = iota
	requestIDKey
	scopeValueKey
)

// WithCorrelationID stores an explicit request-scoped correlation id.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// WithRequestID stores the inbound request's own identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID returns the inbound request identifier, if any.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// CorrelationID resolves the effective correlation id for this call chain.
// The priority chain must not be reordered.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	if id, ok := ctx.Value(requestIDKey).(string); ok && id != "" {
		return id
	}
	if id, ok := ctx.Value(scopeValueKey).(string); ok && id != "" {
		return id
	}
	if m := baggage.FromContext(ctx).Member(BaggageKey); m.Value() != "" {
		return m.Value()
	}
	return ""
}

// TraceID returns the active trace id, or "" when no valid span is active.
func TraceID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return ""
	}
	return sc.TraceID().String()
}

// SpanID returns the active span id, or "" when no valid span is active.
func SpanID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasSpanID() {
		return ""
	}
	return sc.SpanID().String()
}

// PropagationHeaders returns the correlation headers for outbound requests.
func PropagationHeaders(ctx context.Context) map[string]string {
	headers := make(map[string]string)
	if id := CorrelationID(ctx); id != "" {
		headers[HeaderCorrelationID] = id
	}
	if id := RequestID(ctx); id != "" {
		headers[HeaderRequestID] = id
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		headers[HeaderTraceparent] = fmt.Sprintf("00-%s-%s-01", sc.TraceID(), sc.SpanID())
	}
	return headers
}

// Scope installs a correlation id for the duration of a call chain.
//
// The scoped context carries the new value and baggage member; callers
// resume their own pre-scope context when the chain returns, so the scope
// value restores by context discipline. Close restores the mirrored value
// on the live span exactly, clearing it when there was no previous value.
type Scope struct {
	id      string
	prev    string
	hadPrev bool
	span    trace.Span
}

// NewScope enters a correlation scope. The returned context carries the new
// id; Close must be called when the scope exits.
func NewScope(ctx context.Context, id string) (context.Context, *Scope) {
	s := &Scope{id: id}

	bag := baggage.FromContext(ctx)
	if m := bag.Member(BaggageKey); m.Value() != "" {
		s.prev = m.Value()
		s.hadPrev = true
	}

	if member, err := baggage.NewMemberRaw(BaggageKey, id); err == nil {
		if updated, err := bag.SetMember(member); err == nil {
			ctx = baggage.ContextWithBaggage(ctx, updated)
		}
	}
	ctx = context.WithValue(ctx, scopeValueKey, id)

	if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
		s.span = span
		span.SetAttributes(attribute.String(BaggageKey, id))
	}

	return ctx, s
}

// Close exits the scope, restoring the previous correlation value on the
// live instrumentation span. Clearing (not keeping the new value) applies
// when there was no previous value.
func (s *Scope) Close() {
	if s == nil || s.span == nil {
		return
	}
	if s.hadPrev {
		s.span.SetAttributes(attribute.String(BaggageKey, s.prev))
	} else {
		s.span.SetAttributes(attribute.String(BaggageKey, ""))
	}
	s.span = nil
}
