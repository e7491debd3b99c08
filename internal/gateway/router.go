// Router exposes the operator HTTP surface for the observability core.
//
// DESIGN: Read-mostly JSON endpoints over the collector, engine and trace
// registry, plus the prometheus scrape endpoint. Validation failures fail
// fast with a descriptive 400; the handlers never mutate collector state.
package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/voxlane/audio-gateway/internal/alerting"
	"github.com/voxlane/audio-gateway/internal/metrics"
	"github.com/voxlane/audio-gateway/internal/tracing"
)

// Server wires the observability components into an HTTP handler.
type Server struct {
	collector *metrics.Collector
	engine    *alerting.Engine
	tracer    *tracing.Service
	handler   http.Handler
}

// NewServer builds the operator surface.
func NewServer(collector *metrics.Collector, engine *alerting.Engine, tracer *tracing.Service) *Server {
	s := &Server{collector: collector, engine: engine, tracer: tracer}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /v1/metrics/snapshot", s.handleSnapshot)
	mux.HandleFunc("GET /v1/alerts", s.handleAlertHistory)
	mux.HandleFunc("POST /v1/alerts/{id}/ack", s.handleAcknowledge)
	mux.HandleFunc("GET /v1/traces/{id}", s.handleTrace)
	mux.Handle("GET /metrics", promhttp.Handler())

	s.handler = panicRecovery(requestContext(loggingMiddleware(mux)))
	return s
}

// Handler returns the composed HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("gateway: failed to encode response")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.collector.Snapshot())
}

func (s *Server) handleAlertHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start := time.Time{}
	end := time.Now()
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'since': must be RFC3339", http.StatusBadRequest)
			return
		}
		start = t
	}
	if v := q.Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			http.Error(w, "invalid 'until': must be RFC3339", http.StatusBadRequest)
			return
		}
		end = t
	}

	severity := alerting.Severity(q.Get("severity"))
	switch severity {
	case "", alerting.SeverityInfo, alerting.SeverityWarning, alerting.SeverityCritical:
	default:
		http.Error(w, "invalid 'severity': must be info|warning|critical", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, s.engine.AlertHistory(start, end, severity))
}

func (s *Server) handleAcknowledge(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		http.Error(w, "alert id is required", http.StatusBadRequest)
		return
	}

	var body struct {
		By   string `json:"by"`
		Note string `json:"note"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if body.By == "" {
		http.Error(w, "'by' is required", http.StatusBadRequest)
		return
	}

	if !s.engine.AcknowledgeAlert(id, body.By, body.Note) {
		http.Error(w, "alert not found or already acknowledged", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "acknowledged"})
}

func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	// Serve detached copies; active traces keep receiving writes while
	// the response is encoded.
	if t, ok := s.tracer.ActiveTrace(id); ok {
		writeJSON(w, http.StatusOK, map[string]any{"state": "active", "trace": t.Snapshot()})
		return
	}
	completed := s.tracer.CompletedTraces(id)
	if len(completed) == 0 {
		http.Error(w, "trace not found", http.StatusNotFound)
		return
	}
	// Most recent completion wins for reporting.
	writeJSON(w, http.StatusOK, map[string]any{
		"state": "completed",
		"trace": completed[len(completed)-1].Snapshot(),
	})
}
