package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/securitygate/securitygate/internal/config"
	"github.com/securitygate/securitygate/internal/github"
	"github.com/securitygate/securitygate/internal/risk"
	"github.com/securitygate/securitygate/internal/scanner"
	"github.com/securitygate/securitygate/internal/store"
)

type stubScanner struct {
	name   string
	result scanner.Result
}

func (s stubScanner) Name() string { return s.name }

func (s stubScanner) Probe(context.Context) bool { return true }

func (s stubScanner) Scan(context.Context, string) scanner.Result { return s.result }

type testEnv struct {
	router http.Handler
	store  *store.Store
}

func newTestEnv(t *testing.T, gh *github.Client, scanners ...scanner.Scanner) testEnv {
	t.Helper()

	st, err := store.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	cfg := &config.Config{CloneTimeout: 5 * time.Second}
	router := NewRouter(cfg, st, scanner.NewOrchestrator(scanners...), risk.NewPredictor(""), gh)
	return testEnv{router: router, store: st}
}

func stubGitClone(t *testing.T, fn func(ctx context.Context, repoURL, dir string) error) {
	t.Helper()
	orig := gitClone
	gitClone = fn
	t.Cleanup(func() { gitClone = orig })
}

func postJSON(t *testing.T, handler http.Handler, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func getPath(handler http.Handler, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

// waitForStatus polls the store until the background analysis leaves the
// pending state.
func waitForStatus(t *testing.T, st *store.Store, id int64) store.Analysis {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		analysis, err := st.GetAnalysis(id)
		require.NoError(t, err)
		if analysis.Status != store.StatusPending {
			return *analysis
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("analysis never left pending state")
	return store.Analysis{}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil, stubScanner{name: "semgrep"}, stubScanner{name: "snyk"})

	rec := getPath(env.router, "/api/health")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Status      string   `json:"status"`
		ModelLoaded bool     `json:"model_loaded"`
		Scanners    []string `json:"scanners"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.False(t, body.ModelLoaded)
	assert.Equal(t, []string{"semgrep", "snyk"}, body.Scanners)
}

func TestAnalyzeRunsInBackground(t *testing.T) {
	critical := scanner.Result{
		Tool:     "snyk",
		Severity: scanner.SeverityCritical,
		Summary:  "Found 1 vulnerabilities",
		Findings: []scanner.Finding{{Title: "RCE", Severity: scanner.SeverityCritical, Tool: "snyk"}},
	}
	env := newTestEnv(t, nil, stubScanner{name: "snyk", result: critical})
	stubGitClone(t, func(ctx context.Context, repoURL, dir string) error { return nil })

	rec := postJSON(t, env.router, "/api/analyze", map[string]interface{}{
		"repo_name": "octo/repo",
		"pr_number": 42,
		"pr_url":    "https://github.com/octo/repo/pull/42",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp analyzeStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, store.StatusPending, resp.Status)
	assert.Contains(t, resp.Message, "PR #42 analysis started")

	analysis := waitForStatus(t, env.store, resp.ID)
	assert.Equal(t, store.StatusCompleted, analysis.Status)
	assert.Equal(t, string(scanner.VerdictBlock), analysis.Verdict)
	assert.Equal(t, 25, analysis.RiskScore)
	require.Len(t, analysis.ScanRecords, 1)
	assert.Equal(t, "snyk", analysis.ScanRecords[0].Tool)
}

func TestAnalyzeCloneFailureMarksError(t *testing.T) {
	env := newTestEnv(t, nil, stubScanner{name: "semgrep"})
	stubGitClone(t, func(ctx context.Context, repoURL, dir string) error {
		return assert.AnError
	})

	rec := postJSON(t, env.router, "/api/analyze", map[string]interface{}{
		"repo_name": "octo/repo",
		"pr_number": 1,
		"pr_url":    "https://github.com/octo/repo/pull/1",
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp analyzeStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	analysis := waitForStatus(t, env.store, resp.ID)
	assert.Equal(t, store.StatusError, analysis.Status)
	assert.Equal(t, "ERROR", analysis.Verdict)
}

func TestAnalyzeValidation(t *testing.T) {
	env := newTestEnv(t, nil, stubScanner{name: "semgrep"})

	t.Run("missing fields", func(t *testing.T) {
		rec := postJSON(t, env.router, "/api/analyze", map[string]interface{}{"pr_number": 1})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Contains(t, rec.Body.String(), "repo_name and pr_url are required")
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		rec := postJSON(t, env.router, "/api/analyze", map[string]interface{}{
			"repo_name": "octo/repo",
			"pr_url":    "https://github.com/octo/repo/pull/1",
			"surprise":  true,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("wrong method", func(t *testing.T) {
		rec := getPath(env.router, "/api/analyze")
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

func TestGetResult(t *testing.T) {
	env := newTestEnv(t, nil, stubScanner{name: "semgrep"})

	created, err := env.store.CreateAnalysis("octo/repo", 7, "https://github.com/octo/repo/pull/7")
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		rec := getPath(env.router, "/api/results/1")
		require.Equal(t, http.StatusOK, rec.Code)

		var analysis store.Analysis
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analysis))
		assert.Equal(t, created.ID, analysis.ID)
		assert.Equal(t, "octo/repo", analysis.RepoName)
	})

	t.Run("not found", func(t *testing.T) {
		rec := getPath(env.router, "/api/results/999")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("bad id", func(t *testing.T) {
		rec := getPath(env.router, "/api/results/latest")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestListResults(t *testing.T) {
	env := newTestEnv(t, nil, stubScanner{name: "semgrep"})

	t.Run("empty list is an array", func(t *testing.T) {
		rec := getPath(env.router, "/api/results")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "[]\n", rec.Body.String())
	})

	for i := 1; i <= 3; i++ {
		_, err := env.store.CreateAnalysis("octo/repo", i, "https://github.com/octo/repo/pull/1")
		require.NoError(t, err)
	}

	t.Run("pagination", func(t *testing.T) {
		rec := getPath(env.router, "/api/results?skip=1&limit=1")
		require.Equal(t, http.StatusOK, rec.Code)

		var analyses []store.Analysis
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &analyses))
		require.Len(t, analyses, 1)
		assert.Equal(t, 2, analyses[0].PRNumber)
	})
}

func newMockGitHub(t *testing.T) *github.Client {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/octo/repo/languages", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"JavaScript": 3000, "Python": 1000}`))
	})
	mux.HandleFunc("/repos/octo/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{
				"number": 5,
				"title": "Fix auth token validation vulnerability",
				"body": "Hardens session checks",
				"state": "open",
				"html_url": "https://github.com/octo/repo/pull/5",
				"created_at": "2024-03-04T14:30:00Z",
				"user": {"login": "octocat"},
				"additions": 600,
				"deletions": 20,
				"changed_files": 8,
				"commits": 2
			}
		]`))
	})
	mux.HandleFunc("/repos/octo/repo/pulls/5/files", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[
			{"filename": "internal/auth/login.go"},
			{"filename": "config/settings.yaml"},
			{"filename": "cmd/server/main.go"},
			{"filename": "docs/guide.md"}
		]`))
	})
	mux.HandleFunc("/users/octocat", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"login": "octocat", "public_repos": 100, "followers": 500, "created_at": "2014-01-01T00:00:00Z"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return github.NewClientWithBaseURL("", srv.URL)
}

func TestAnalyzeGitHub(t *testing.T) {
	env := newTestEnv(t, newMockGitHub(t), stubScanner{name: "semgrep"})

	rec := postJSON(t, env.router, "/api/analyze_github", map[string]interface{}{
		"repo": "octo/repo",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp githubAnalyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	assert.Equal(t, "octo/repo", resp.Repo)
	assert.Equal(t, 1, resp.TotalPRsAnalyzed)
	assert.Equal(t, resp.HighRiskCount+resp.LowRiskCount, resp.TotalPRsAnalyzed)
	require.Len(t, resp.Predictions, 1)

	pred := resp.Predictions[0]
	assert.Equal(t, 5, pred.PRNumber)
	assert.Equal(t, "octocat", pred.Author)
	assert.True(t, pred.UsingFallback)
	assert.Equal(t, risk.FallbackModelVersion, pred.ModelVersion)
	assert.Len(t, pred.Features, risk.NumFeatures)
	assert.Equal(t, 0.0, pred.Features["day_of_week"], "Monday maps to 0")
	assert.Equal(t, 8.0, pred.Features["files_changed"], "declared count wins over the file page")
	assert.InDelta(t, resp.AvgRiskScore, pred.RiskScore, 1e-9)

	assert.Contains(t, pred.SecurityFindings, "Sensitive file modified: internal/auth/login.go")
	assert.Contains(t, pred.SecurityFindings, "No test files modified despite multiple file changes")
	assert.Contains(t, pred.SecurityFindings, "Large PR with 600 lines added, harder to review")
}

func TestAnalyzeGitHubBadRepo(t *testing.T) {
	env := newTestEnv(t, newMockGitHub(t), stubScanner{name: "semgrep"})

	rec := postJSON(t, env.router, "/api/analyze_github", map[string]interface{}{"repo": "not-a-repo"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "owner/name")
}

func TestAnalyzeGitHubUnreachableRepo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	env := newTestEnv(t, github.NewClientWithBaseURL("", srv.URL), stubScanner{name: "semgrep"})

	rec := postJSON(t, env.router, "/api/analyze_github", map[string]interface{}{"repo": "octo/missing"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "Could not fetch PRs")
}
