package server

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/danielwesterlund/aixo/internal/ratelimit"
	"github.com/danielwesterlund/aixo/internal/util"
	"github.com/danielwesterlund/aixo/pkg/ai"
	"github.com/danielwesterlund/aixo/pkg/usage"
)

// Config wires required dependencies for the HTTP server. Usage and
// Limiter are optional.
type Config struct {
	Service        *ai.Service
	Usage          usage.Recorder
	Limiter        *ratelimit.FixedWindowLimiter
	Defaults       ai.Defaults
	Debug          bool
	TrustForwarded bool
}

// Server exposes the generate entry point plus the status and usage
// dashboards over HTTP.
type Server struct {
	service        *ai.Service
	usage          usage.Recorder
	limiter        *ratelimit.FixedWindowLimiter
	defaults       ai.Defaults
	debug          bool
	trustForwarded bool
	mux            *http.ServeMux
}

// New constructs the server with routes configured.
func New(cfg Config) *Server {
	s := &Server{
		service:        cfg.Service,
		usage:          cfg.Usage,
		limiter:        cfg.Limiter,
		defaults:       cfg.Defaults,
		debug:          cfg.Debug,
		trustForwarded: cfg.TrustForwarded,
		mux:            http.NewServeMux(),
	}
	s.routes()
	return s
}

// Router returns the configured handler with the middleware chain applied.
func (s *Server) Router() http.Handler {
	return util.WithSecurityHeaders(util.WithCORS(util.WithRequestID(util.WithRequestLog(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/generate", s.handleGenerate)
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/usage", s.handleUsage)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	ai.Options
}

type generateResponse struct {
	Text string `json:"text"`
}

// handleGenerate is the template-facing entry point. Provider failures do
// not surface as HTTP errors: the response carries an empty text and the
// diagnostics go to the log, matching the never-break-page-rendering
// contract.
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.limiter != nil && !s.limiter.Allow(util.ClientIP(r, s.trustForwarded)) {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}
	var req generateRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Prompt == "" {
		writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	text := s.service.Process(r.Context(), req.Prompt, req.Options)
	writeJSON(w, http.StatusOK, generateResponse{Text: text})
}

type statusResponse struct {
	DefaultProvider    string          `json:"defaultProvider"`
	DefaultModel       string          `json:"defaultModel"`
	DefaultTemperature float64         `json:"defaultTemperature"`
	Debug              bool            `json:"debug"`
	Providers          []ai.Descriptor `json:"providers"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		DefaultProvider:    s.defaults.Provider,
		DefaultModel:       s.defaults.Model,
		DefaultTemperature: s.defaults.Temperature,
		Debug:              s.debug,
		Providers:          s.service.Providers(),
	})
}

type usageResponse struct {
	Last   *usage.Record `json:"last"`
	Totals []usage.Total `json:"totals"`
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	resp := usageResponse{Totals: []usage.Total{}}
	if s.usage != nil {
		last, ok, err := s.usage.Last()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "usage store unavailable")
			return
		}
		if ok {
			resp.Last = &last
		}
		totals, err := s.usage.Totals()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "usage store unavailable")
			return
		}
		if totals != nil {
			resp.Totals = totals
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
