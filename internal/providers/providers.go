// Package providers defines the provider client contracts the monitoring
// decorator wraps.
//
// DESIGN: The gateway never implements these transports itself; it calls
// whatever client was registered and adds observability around it. Only
// the request/response shapes the decorator depends on are defined here.
package providers

import "context"

// TranscriptionRequest is one speech-to-text request.
type TranscriptionRequest struct {
	Audio    []byte
	Format   string // wav, pcm16, ogg
	Language string // BCP-47 hint, optional
	Model    string
}

// TranscriptionResult is a completed transcription.
type TranscriptionResult struct {
	Text         string
	Language     string
	AudioSeconds float64
}

// TranscriptionClient is a speech-to-text provider.
type TranscriptionClient interface {
	Name() string
	Transcribe(ctx context.Context, req TranscriptionRequest) (*TranscriptionResult, error)
}

// SpeechRequest is one text-to-speech request.
type SpeechRequest struct {
	Text   string
	Voice  string
	Format string
}

// SpeechResult is synthesized audio.
type SpeechResult struct {
	Audio      []byte
	Characters int
	CdnURL     string // set when the provider uploaded to a CDN
}

// SpeechClient is a text-to-speech provider.
type SpeechClient interface {
	Name() string
	Synthesize(ctx context.Context, req SpeechRequest) (*SpeechResult, error)
}

// RealtimeSession is a bidirectional audio stream with a provider.
type RealtimeSession interface {
	// Send writes one audio frame to the provider.
	Send(ctx context.Context, frame []byte) error
	// Receive reads the next frame from the provider.
	Receive(ctx context.Context) ([]byte, error)
	// Close terminates the session.
	Close(ctx context.Context) error
}

// RealtimeClient opens realtime duplex sessions.
type RealtimeClient interface {
	Name() string
	Connect(ctx context.Context, model string) (RealtimeSession, error)
}
