// Package api exposes the securitygate HTTP API.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/securitygate/securitygate/internal/config"
	"github.com/securitygate/securitygate/internal/github"
	"github.com/securitygate/securitygate/internal/risk"
	"github.com/securitygate/securitygate/internal/scanner"
	"github.com/securitygate/securitygate/internal/store"
)

// Router handles HTTP routing.
type Router struct {
	mux          *http.ServeMux
	cfg          *config.Config
	store        *store.Store
	orchestrator *scanner.Orchestrator
	predictor    *risk.Predictor
	github       *github.Client
	reputation   *risk.ReputationCache
}

// NewRouter wires the API over its collaborators.
func NewRouter(cfg *config.Config, st *store.Store, orch *scanner.Orchestrator, pred *risk.Predictor, gh *github.Client) http.Handler {
	r := &Router{
		mux:          http.NewServeMux(),
		cfg:          cfg,
		store:        st,
		orchestrator: orch,
		predictor:    pred,
		github:       gh,
		reputation:   risk.NewReputationCache(),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.mux.HandleFunc("/api/health", r.handleHealth)
	r.mux.HandleFunc("/api/analyze", r.handleAnalyze)
	r.mux.HandleFunc("/api/analyze_github", r.handleAnalyzeGitHub)
	r.mux.HandleFunc("/api/results", r.handleListResults)
	r.mux.HandleFunc("/api/results/", r.handleGetResult)
}

// ServeHTTP attaches a request id and logs each request.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	requestID := uuid.NewString()
	start := time.Now()

	r.mux.ServeHTTP(w, req)

	log.Debug().
		Str("request_id", requestID).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Dur("duration", time.Since(start)).
		Msg("Request handled")
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       "ok",
		"model_loaded": r.predictor.ModelLoaded(),
		"scanners":     r.orchestrator.Scanners(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
