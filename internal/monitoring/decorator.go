// Package monitoring - decorator.go wraps provider clients with tracing and
// metrics.
//
// DESIGN: The decorator is the primary consumer of the observability core.
// Per call: start a correlation-tagged trace, invoke the inner client
// unchanged, build a metric record, ingest it into the collector, finalize
// the trace. Provider errors are recorded (trace exception + unsuccessful
// metric) and re-raised unchanged; observability errors never surface to
// the caller.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/voxlane/audio-gateway/internal/metrics"
	"github.com/voxlane/audio-gateway/internal/providers"
	"github.com/voxlane/audio-gateway/internal/tracing"
)

// errorCode classifies a provider failure for the metric record.
func errorCode(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "provider_error"
	}
}

// MonitoredTranscriptionClient wraps a TranscriptionClient.
type MonitoredTranscriptionClient struct {
	inner     providers.TranscriptionClient
	collector *metrics.Collector
	tracer    *tracing.Service
}

// NewMonitoredTranscriptionClient decorates a transcription client.
func NewMonitoredTranscriptionClient(inner providers.TranscriptionClient, collector *metrics.Collector, tracer *tracing.Service) *MonitoredTranscriptionClient {
	return &MonitoredTranscriptionClient{inner: inner, collector: collector, tracer: tracer}
}

// Name returns the inner provider name.
func (c *MonitoredTranscriptionClient) Name() string { return c.inner.Name() }

// Transcribe traces and measures the inner call, re-raising any error.
func (c *MonitoredTranscriptionClient) Transcribe(ctx context.Context, req providers.TranscriptionRequest) (*providers.TranscriptionResult, error) {
	ctx, tc := c.tracer.StartTrace(ctx, "audio.transcribe", "transcription", map[string]string{
		"provider": c.inner.Name(),
	})
	defer tc.End()

	c.collector.BeginOperation(metrics.OpTranscription)
	start := time.Now()
	res, err := c.inner.Transcribe(ctx, req)
	elapsed := time.Since(start)
	c.collector.EndOperation(metrics.OpTranscription)

	m := metrics.TranscriptionMetric{
		Provider: c.inner.Name(),
		Duration: elapsed,
		Success:  err == nil,
	}
	if err != nil {
		m.ErrorCode = errorCode(err)
		tc.RecordException(err)
		c.collector.RecordTranscription(m)
		return nil, err
	}

	m.AudioSeconds = res.AudioSeconds
	m.Language = res.Language
	tc.AddTag("audio.seconds", fmt.Sprintf("%.2f", res.AudioSeconds))
	c.collector.RecordTranscription(m)
	return res, nil
}

var _ providers.TranscriptionClient = (*MonitoredTranscriptionClient)(nil)

// MonitoredSpeechClient wraps a SpeechClient.
type MonitoredSpeechClient struct {
	inner     providers.SpeechClient
	collector *metrics.Collector
	tracer    *tracing.Service
}

// NewMonitoredSpeechClient decorates a text-to-speech client.
func NewMonitoredSpeechClient(inner providers.SpeechClient, collector *metrics.Collector, tracer *tracing.Service) *MonitoredSpeechClient {
	return &MonitoredSpeechClient{inner: inner, collector: collector, tracer: tracer}
}

// Name returns the inner provider name.
func (c *MonitoredSpeechClient) Name() string { return c.inner.Name() }

// Synthesize traces and measures the inner call, re-raising any error.
func (c *MonitoredSpeechClient) Synthesize(ctx context.Context, req providers.SpeechRequest) (*providers.SpeechResult, error) {
	ctx, tc := c.tracer.StartTrace(ctx, "audio.synthesize", "synthesis", map[string]string{
		"provider": c.inner.Name(),
		"voice":    req.Voice,
	})
	defer tc.End()

	c.collector.BeginOperation(metrics.OpSynthesis)
	start := time.Now()
	res, err := c.inner.Synthesize(ctx, req)
	elapsed := time.Since(start)
	c.collector.EndOperation(metrics.OpSynthesis)

	m := metrics.SynthesisMetric{
		Provider: c.inner.Name(),
		Duration: elapsed,
		Success:  err == nil,
		Voice:    req.Voice,
	}
	if err != nil {
		m.ErrorCode = errorCode(err)
		tc.RecordException(err)
		c.collector.RecordSynthesis(m)
		return nil, err
	}

	m.Characters = res.Characters
	m.CdnUpload = res.CdnURL != ""
	c.collector.RecordSynthesis(m)
	return res, nil
}

var _ providers.SpeechClient = (*MonitoredSpeechClient)(nil)

// MonitoredRealtimeClient wraps a RealtimeClient; sessions it opens are
// traced for their whole lifetime and measured on close.
type MonitoredRealtimeClient struct {
	inner     providers.RealtimeClient
	collector *metrics.Collector
	tracer    *tracing.Service
}

// NewMonitoredRealtimeClient decorates a realtime client.
func NewMonitoredRealtimeClient(inner providers.RealtimeClient, collector *metrics.Collector, tracer *tracing.Service) *MonitoredRealtimeClient {
	return &MonitoredRealtimeClient{inner: inner, collector: collector, tracer: tracer}
}

// Name returns the inner provider name.
func (c *MonitoredRealtimeClient) Name() string { return c.inner.Name() }

// Connect opens a monitored session.
func (c *MonitoredRealtimeClient) Connect(ctx context.Context, model string) (providers.RealtimeSession, error) {
	ctx, tc := c.tracer.StartTrace(ctx, "audio.realtime", "realtime", map[string]string{
		"provider": c.inner.Name(),
		"model":    model,
	})

	session, err := c.inner.Connect(ctx, model)
	if err != nil {
		tc.RecordException(err)
		tc.End()
		c.collector.RecordRealtime(metrics.RealtimeMetric{
			Provider:  c.inner.Name(),
			Success:   false,
			ErrorCode: errorCode(err),
		})
		return nil, err
	}

	c.collector.BeginOperation(metrics.OpRealtime)
	return &monitoredSession{
		inner:     session,
		provider:  c.inner.Name(),
		collector: c.collector,
		tc:        tc,
		started:   time.Now(),
	}, nil
}

var _ providers.RealtimeClient = (*MonitoredRealtimeClient)(nil)

// monitoredSession counts conversational turns over a realtime session and
// records one realtime metric when the session closes. A turn is one burst
// of sent frames answered by the provider; it is counted at the first
// receive after a send, not per frame.
type monitoredSession struct {
	inner     providers.RealtimeSession
	provider  string
	collector *metrics.Collector
	tc        *tracing.TraceContext
	started   time.Time

	turns   atomic.Int64
	sending atomic.Bool
	failed  atomic.Bool
	closed  atomic.Bool
}

func (s *monitoredSession) Send(ctx context.Context, frame []byte) error {
	err := s.inner.Send(ctx, frame)
	if err != nil {
		s.failed.Store(true)
		s.tc.RecordException(err)
		return err
	}
	s.sending.Store(true)
	return nil
}

func (s *monitoredSession) Receive(ctx context.Context) ([]byte, error) {
	data, err := s.inner.Receive(ctx)
	if err != nil {
		s.failed.Store(true)
		s.tc.RecordException(err)
		return nil, err
	}
	if s.sending.Swap(false) {
		s.turns.Add(1)
	}
	return data, nil
}

func (s *monitoredSession) Close(ctx context.Context) error {
	err := s.inner.Close(ctx)
	if s.closed.Swap(true) {
		return err
	}

	elapsed := time.Since(s.started)
	s.collector.EndOperation(metrics.OpRealtime)

	m := metrics.RealtimeMetric{
		Provider:       s.provider,
		Duration:       elapsed,
		Success:        err == nil && !s.failed.Load(),
		SessionSeconds: elapsed.Seconds(),
		Turns:          int(s.turns.Load()),
	}
	if err != nil {
		m.ErrorCode = errorCode(err)
		s.tc.RecordException(err)
	}
	s.collector.RecordRealtime(m)

	s.tc.AddTag("session.turns", fmt.Sprintf("%d", m.Turns))
	s.tc.End()
	return err
}

var _ providers.RealtimeSession = (*monitoredSession)(nil)
