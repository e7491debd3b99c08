// Package metrics - types.go defines metric records and the snapshot.
//
// DESIGN: One value record per operation kind, each carrying provider,
// duration and success plus kind-specific fields. Snapshot is the
// point-in-time read consumed by the alert engine and the ops surface.
package metrics

import "time"

// Operation identifies a kind of gateway operation.
type Operation string

const (
	OpTranscription Operation = "transcription"
	OpSynthesis     Operation = "synthesis"
	OpRealtime      Operation = "realtime"
	OpRouting       Operation = "routing"
)

// TranscriptionMetric captures one speech-to-text call outcome.
type TranscriptionMetric struct {
	Provider     string        `json:"provider"`
	Duration     time.Duration `json:"duration"`
	Success      bool          `json:"success"`
	AudioSeconds float64       `json:"audio_seconds,omitempty"`
	Language     string        `json:"language,omitempty"`
	CacheHit     bool          `json:"cache_hit,omitempty"`
	ErrorCode    string        `json:"error_code,omitempty"`
}

// SynthesisMetric captures one text-to-speech call outcome.
type SynthesisMetric struct {
	Provider   string        `json:"provider"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	Characters int           `json:"characters,omitempty"`
	Voice      string        `json:"voice,omitempty"`
	CacheHit   bool          `json:"cache_hit,omitempty"`
	CdnUpload  bool          `json:"cdn_upload,omitempty"`
	ErrorCode  string        `json:"error_code,omitempty"`
}

// RealtimeMetric captures one realtime duplex session outcome.
type RealtimeMetric struct {
	Provider       string        `json:"provider"`
	Duration       time.Duration `json:"duration"`
	Success        bool          `json:"success"`
	SessionSeconds float64       `json:"session_seconds,omitempty"`
	Turns          int           `json:"turns,omitempty"`
	ErrorCode      string        `json:"error_code,omitempty"`
}

// RoutingMetric captures one provider-routing decision.
type RoutingMetric struct {
	Provider   string        `json:"provider"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	Strategy   string        `json:"strategy,omitempty"`
	Candidates int           `json:"candidates,omitempty"`
}

// ProviderHealthMetric captures one provider health-check result.
type ProviderHealthMetric struct {
	Provider  string        `json:"provider"`
	Duration  time.Duration `json:"duration"`
	Healthy   bool          `json:"healthy"`
	CheckedAt time.Time     `json:"checked_at"`
	Detail    string        `json:"detail,omitempty"`
}

// Snapshot is a point-in-time read of aggregated system metrics.
type Snapshot struct {
	Timestamp              time.Time       `json:"timestamp"`
	ActiveTranscriptions   int64           `json:"active_transcriptions"`
	ActiveSyntheses        int64           `json:"active_syntheses"`
	ActiveRealtimeSessions int64           `json:"active_realtime_sessions"`
	RequestsPerSecond      float64         `json:"requests_per_second"`
	CurrentErrorRate       float64         `json:"current_error_rate"`
	ProviderHealth         map[string]bool `json:"provider_health"`
	ActiveConnections      int64           `json:"active_connections"`
	TotalRequests          int64           `json:"total_requests"`
	FailedRequests         int64           `json:"failed_requests"`
	RealtimeAudioSeconds   float64         `json:"realtime_audio_seconds"`
}
