// Package tracing - service.go owns the active/completed trace registries.
//
// DESIGN: Active traces live in a concurrency-safe map keyed by trace id.
// Completion moves a trace into a per-trace-id completed list; the list is
// plural because pathological retry scenarios can reuse a trace id. The
// most recent completion wins for duration reporting. A periodic sweep
// bounds memory under sustained load.
package tracing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/baggage"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/voxlane/audio-gateway/internal/config"
	"github.com/voxlane/audio-gateway/internal/correlation"
)

// Service creates traces and spans and tracks their lifecycle.
type Service struct {
	cfg    config.TracingConfig
	tracer trace.Tracer

	active sync.Map // trace id -> *AudioTrace

	completedMu sync.Mutex
	completed   map[string][]*AudioTrace

	stopChan chan struct{}
	stopOnce sync.Once
}

// NewService creates a tracing service backed by the given tracer provider
// and starts the completed-trace sweep. A nil provider (or a disabled
// config) yields no-op trace contexts for every StartTrace call.
func NewService(cfg config.TracingConfig, tp trace.TracerProvider) *Service {
	if tp == nil {
		tp = noop.NewTracerProvider()
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 30 * time.Minute
	}
	s := &Service{
		cfg:       cfg,
		tracer:    tp.Tracer("audio-gateway/tracing"),
		completed: make(map[string][]*AudioTrace),
		stopChan:  make(chan struct{}),
	}
	go s.sweep()
	return s
}

// StartTrace begins a trace for one operation. The returned context carries
// the underlying span and baggage; the TraceContext completes the trace on
// End. A disabled service or a sampled-out span yields a no-op context.
func (s *Service) StartTrace(ctx context.Context, name, operationType string, tags map[string]string) (context.Context, *TraceContext) {
	if !s.cfg.Enabled {
		return ctx, noopTraceContext(ctx, nil)
	}

	ctx, span := s.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
	if !span.SpanContext().IsValid() || !span.IsRecording() {
		return ctx, noopTraceContext(ctx, span)
	}

	traceID := span.SpanContext().TraceID().String()
	at := &AudioTrace{
		TraceID:       traceID,
		Name:          name,
		OperationType: operationType,
		StartTime:     time.Now(),
		Status:        StatusUnset,
		Tags:          make(map[string]string),
	}

	// Default tags.
	at.Tags["operation.type"] = operationType
	at.Tags["service.name"] = s.cfg.ServiceName
	if s.cfg.ServiceVersion != "" {
		at.Tags["service.version"] = s.cfg.ServiceVersion
	}
	for k, v := range tags {
		at.Tags[k] = v
	}

	// The resolved correlation id rides as both a trace tag and baggage.
	if corrID := correlation.CorrelationID(ctx); corrID != "" {
		at.Tags[correlation.BaggageKey] = corrID
		ctx = withBaggageMember(ctx, correlation.BaggageKey, corrID)
	}
	if reqID := correlation.RequestID(ctx); reqID != "" {
		ctx = withBaggageMember(ctx, "request.id", reqID)
	}

	attrs := make([]attribute.KeyValue, 0, len(at.Tags))
	for k, v := range at.Tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	span.SetAttributes(attrs...)

	s.active.Store(traceID, at)

	return ctx, &TraceContext{svc: s, trace: at, span: span, ctx: ctx}
}

// CreateSpan starts a child span under a live parent trace context.
func (s *Service) CreateSpan(parent *TraceContext, name string, tags map[string]string) (*SpanContext, error) {
	if parent == nil || parent.noop {
		return nil, fmt.Errorf("tracing: parent trace context is not recording")
	}

	ctx, span := s.tracer.Start(parent.ctx, name)
	record := &AudioSpan{
		SpanID:       span.SpanContext().SpanID().String(),
		ParentSpanID: parent.span.SpanContext().SpanID().String(),
		Name:         name,
		StartTime:    time.Now(),
		Status:       StatusUnset,
	}
	parent.trace.addSpan(record)

	sc := &SpanContext{record: record, span: span, ctx: ctx}
	for k, v := range tags {
		sc.AddTag(k, v)
	}
	return sc, nil
}

func withBaggageMember(ctx context.Context, key, value string) context.Context {
	member, err := baggage.NewMemberRaw(key, value)
	if err != nil {
		return ctx
	}
	bag, err := baggage.FromContext(ctx).SetMember(member)
	if err != nil {
		return ctx
	}
	return baggage.ContextWithBaggage(ctx, bag)
}

// complete moves a trace from the active registry to the completed list.
func (s *Service) complete(at *AudioTrace) {
	s.active.Delete(at.TraceID)
	s.completedMu.Lock()
	s.completed[at.TraceID] = append(s.completed[at.TraceID], at)
	s.completedMu.Unlock()
}

// ActiveTrace returns the active trace for an id, if any.
func (s *Service) ActiveTrace(traceID string) (*AudioTrace, bool) {
	v, ok := s.active.Load(traceID)
	if !ok {
		return nil, false
	}
	return v.(*AudioTrace), true
}

// CompletedTraces returns the completed list for a trace id, most recent
// last.
func (s *Service) CompletedTraces(traceID string) []*AudioTrace {
	s.completedMu.Lock()
	defer s.completedMu.Unlock()
	return append([]*AudioTrace(nil), s.completed[traceID]...)
}

// ActiveCount returns the number of currently active traces.
func (s *Service) ActiveCount() int {
	n := 0
	s.active.Range(func(_, _ any) bool { n++; return true })
	return n
}

// sweep periodically removes completed traces older than the retention
// window.
func (s *Service) sweep() {
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.purgeCompleted(time.Now().Add(-s.cfg.Retention))
		}
	}
}

func (s *Service) purgeCompleted(cutoff time.Time) {
	s.completedMu.Lock()
	defer s.completedMu.Unlock()

	removed := 0
	for id, traces := range s.completed {
		kept := traces[:0]
		for _, t := range traces {
			if t.EndTime.After(cutoff) {
				kept = append(kept, t)
			} else {
				removed++
			}
		}
		if len(kept) == 0 {
			delete(s.completed, id)
		} else {
			s.completed[id] = kept
		}
	}
	if removed > 0 {
		log.Debug().Int("traces", removed).Msg("tracing: purged completed traces")
	}
}

// Close stops the cleanup sweep.
func (s *Service) Close() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}
