package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/securitygate/securitygate/internal/store"
)

// analysisTimeout bounds one full background analysis (clone plus scans).
const analysisTimeout = 10 * time.Minute

// gitClone is swapped out in tests so no network or git binary is required.
var gitClone = func(ctx context.Context, repoURL, dir string) error {
	out, err := exec.CommandContext(ctx, "git", "clone", "--depth", "1", repoURL, dir).CombinedOutput()
	if err != nil {
		return fmt.Errorf("git clone failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

type analyzeRequest struct {
	RepoName string `json:"repo_name"`
	PRNumber int    `json:"pr_number"`
	PRURL    string `json:"pr_url"`
}

type analyzeStatusResponse struct {
	ID        int64  `json:"id"`
	Status    string `json:"status"`
	RiskScore *int   `json:"risk_score"`
	Verdict   string `json:"verdict,omitempty"`
	Message   string `json:"message"`
}

// handleAnalyze accepts a PR for analysis and returns immediately; the scan
// runs in the background and results are fetched from /api/results/{id}.
func (r *Router) handleAnalyze(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body analyzeRequest
	if err := decodeJSONBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if body.RepoName == "" || body.PRURL == "" {
		writeError(w, http.StatusBadRequest, "repo_name and pr_url are required")
		return
	}

	analysis, err := r.store.CreateAnalysis(body.RepoName, body.PRNumber, body.PRURL)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create analysis record")
		writeError(w, http.StatusInternalServerError, "Failed to create analysis")
		return
	}

	go r.runAnalysis(analysis.ID, body.PRURL)

	writeJSON(w, http.StatusAccepted, analyzeStatusResponse{
		ID:      analysis.ID,
		Status:  store.StatusPending,
		Message: fmt.Sprintf("PR #%d analysis started. Check status at /api/results/%d", body.PRNumber, analysis.ID),
	})
}

// runAnalysis is the background job for one accepted PR: clone the repo into
// a temporary checkout, run all scanners, persist per-tool results and the
// aggregate verdict.
func (r *Router) runAnalysis(id int64, repoURL string) {
	ctx, cancel := context.WithTimeout(context.Background(), analysisTimeout)
	defer cancel()

	tempDir, err := os.MkdirTemp("", "securitygate-scan-*")
	if err != nil {
		log.Error().Err(err).Int64("analysis", id).Msg("Failed to create scan directory")
		r.failAnalysis(id)
		return
	}
	defer os.RemoveAll(tempDir)

	cloneCtx, cloneCancel := context.WithTimeout(ctx, r.cfg.CloneTimeout)
	err = gitClone(cloneCtx, repoURL, tempDir)
	cloneCancel()
	if err != nil {
		log.Warn().Err(err).Int64("analysis", id).Str("repo", repoURL).Msg("Clone failed")
		r.failAnalysis(id)
		return
	}

	report := r.orchestrator.RunAllScans(ctx, tempDir)

	for _, result := range report.Results {
		if err := r.store.AddScanResult(id, result); err != nil {
			log.Error().Err(err).Int64("analysis", id).Str("tool", result.Tool).Msg("Failed to save scan result")
		}
	}
	if err := r.store.CompleteAnalysis(id, report.Summary.Verdict, report.Summary.RiskScore); err != nil {
		log.Error().Err(err).Int64("analysis", id).Msg("Failed to complete analysis")
	}
}

func (r *Router) failAnalysis(id int64) {
	if err := r.store.FailAnalysis(id); err != nil {
		log.Error().Err(err).Int64("analysis", id).Msg("Failed to mark analysis as errored")
	}
}

// handleGetResult serves /api/results/{id}.
func (r *Router) handleGetResult(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	idStr := strings.TrimPrefix(req.URL.Path, "/api/results/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid analysis id")
		return
	}

	analysis, err := r.store.GetAnalysis(id)
	if err != nil {
		if err == store.ErrNotFound {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Analysis %d not found", id))
			return
		}
		log.Error().Err(err).Int64("analysis", id).Msg("Failed to load analysis")
		writeError(w, http.StatusInternalServerError, "Failed to load analysis")
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

// handleListResults serves /api/results with skip/limit pagination.
func (r *Router) handleListResults(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	skip := queryInt(req, "skip", 0)
	limit := queryInt(req, "limit", 10)

	analyses, err := r.store.ListAnalyses(skip, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list analyses")
		writeError(w, http.StatusInternalServerError, "Failed to list analyses")
		return
	}
	if analyses == nil {
		analyses = []store.Analysis{}
	}
	writeJSON(w, http.StatusOK, analyses)
}

func queryInt(req *http.Request, key string, fallback int) int {
	v := req.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func decodeJSONBody(req *http.Request, v interface{}) error {
	defer req.Body.Close()
	dec := json.NewDecoder(req.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
