package api

import (
	"fmt"
	"math"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/securitygate/securitygate/internal/github"
	"github.com/securitygate/securitygate/internal/risk"
)

const (
	defaultPRCount = 10
	maxPRCount     = 30
	filesPerPR     = 50
	// Caps on the human-readable findings list so a noisy PR stays legible.
	maxSensitiveFindings = 5
	maxKeywordFindings   = 5
)

type githubAnalyzeRequest struct {
	Repo   string `json:"repo"`
	NumPRs int    `json:"num_prs"`
}

type prPrediction struct {
	PRNumber          int                `json:"pr_number"`
	Title             string             `json:"title"`
	Author            string             `json:"author"`
	RiskScore         float64            `json:"risk_score"`
	RiskLabel         string             `json:"risk_label"`
	RiskPercentage    float64            `json:"risk_percentage"`
	FeatureImportance map[string]float64 `json:"feature_importance"`
	Features          map[string]float64 `json:"features"`
	SecurityFindings  []string           `json:"security_findings"`
	URL               string             `json:"url"`
	CreatedAt         string             `json:"created_at"`
	State             string             `json:"state"`
	ModelVersion      string             `json:"model_version"`
	UsingFallback     bool               `json:"using_fallback"`
}

type githubAnalyzeResponse struct {
	Repo             string         `json:"repo"`
	TotalPRsAnalyzed int            `json:"total_prs_analyzed"`
	HighRiskCount    int            `json:"high_risk_count"`
	LowRiskCount     int            `json:"low_risk_count"`
	AvgRiskScore     float64        `json:"avg_risk_score"`
	Predictions      []prPrediction `json:"predictions"`
}

// handleAnalyzeGitHub fetches recent PRs from a public GitHub repository and
// scores each of them with the risk predictor.
func (r *Router) handleAnalyzeGitHub(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var body githubAnalyzeRequest
	if err := decodeJSONBody(req, &body); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	repo := strings.Trim(strings.TrimSpace(body.Repo), "/")
	if !strings.Contains(repo, "/") {
		writeError(w, http.StatusBadRequest, "Repo must be in 'owner/name' format (e.g., 'facebook/react')")
		return
	}
	numPRs := body.NumPRs
	if numPRs <= 0 {
		numPRs = defaultPRCount
	}
	if numPRs > maxPRCount {
		numPRs = maxPRCount
	}

	ctx := req.Context()

	// Language breakdown is shared by every PR in the repo; a failed lookup
	// degrades to the neutral ratio rather than failing the request.
	languages, err := r.github.GetLanguages(ctx, repo)
	if err != nil {
		log.Warn().Err(err).Str("repo", repo).Msg("Language lookup failed, using neutral ratio")
		languages = nil
	}

	prs, err := r.github.ListPullRequests(ctx, repo, numPRs)
	if err != nil {
		writeError(w, http.StatusNotFound,
			fmt.Sprintf("Could not fetch PRs from '%s'. Check the repo name and ensure GITHUB_TOKEN is set.", repo))
		return
	}
	if len(prs) == 0 {
		writeError(w, http.StatusNotFound, fmt.Sprintf("No PRs found for '%s'.", repo))
		return
	}

	predictions := make([]prPrediction, 0, len(prs))
	for _, pr := range prs {
		predictions = append(predictions, r.analyzePR(req, repo, pr, languages))
	}

	highRisk := 0
	scoreSum := 0.0
	for _, p := range predictions {
		if p.RiskLabel == "high" {
			highRisk++
		}
		scoreSum += p.RiskScore
	}

	writeJSON(w, http.StatusOK, githubAnalyzeResponse{
		Repo:             repo,
		TotalPRsAnalyzed: len(predictions),
		HighRiskCount:    highRisk,
		LowRiskCount:     len(predictions) - highRisk,
		AvgRiskScore:     avgScore(scoreSum, len(predictions)),
		Predictions:      predictions,
	})
}

func (r *Router) analyzePR(req *http.Request, repo string, pr github.PullRequest, languages map[string]int64) prPrediction {
	ctx := req.Context()

	files, err := r.github.ListPullFiles(ctx, repo, pr.Number, filesPerPR)
	if err != nil {
		log.Warn().Err(err).Str("repo", repo).Int("pr", pr.Number).Msg("File list lookup failed")
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Filename)
	}

	author := pr.User.Login
	reputation := r.reputation.Score(author, func() (risk.AuthorProfile, error) {
		user, err := r.github.GetUser(ctx, author)
		if err != nil {
			return risk.AuthorProfile{}, err
		}
		return risk.AuthorProfile{
			PublicRepos: user.PublicRepos,
			Followers:   user.Followers,
			CreatedAt:   user.CreatedAt,
		}, nil
	})

	filesChanged := pr.ChangedFiles
	if filesChanged == 0 {
		filesChanged = len(paths)
	}

	meta := risk.ChangeMetadata{
		Title:            pr.Title,
		Body:             pr.Body,
		FilesChanged:     filesChanged,
		Files:            paths,
		LinesAdded:       pr.Additions,
		LinesDeleted:     pr.Deletions,
		CommitCount:      pr.Commits,
		AuthorReputation: reputation,
		CreatedAt:        pr.CreatedAt,
		CommentCount:     pr.Comments + pr.ReviewComments,
		Languages:        languages,
	}
	features := risk.ExtractFeatures(meta)
	prediction := r.predictor.PredictRisk(features)

	title := pr.Title
	if len(title) > 100 {
		title = title[:100]
	}
	prURL := pr.HTMLURL
	if prURL == "" {
		prURL = fmt.Sprintf("https://github.com/%s/pull/%d", repo, pr.Number)
	}

	return prPrediction{
		PRNumber:          pr.Number,
		Title:             title,
		Author:            author,
		RiskScore:         prediction.RiskScore,
		RiskLabel:         prediction.RiskLabel,
		RiskPercentage:    prediction.RiskPercentage,
		FeatureImportance: prediction.FeatureImportance,
		Features:          features.Named(),
		SecurityFindings:  securityFindings(pr, paths),
		URL:               prURL,
		CreatedAt:         pr.CreatedAt.Format("2006-01-02T15:04:05Z"),
		State:             pr.State,
		ModelVersion:      prediction.ModelVersion,
		UsingFallback:     prediction.UsingFallback,
	}
}

// securityFindings builds the human-readable signal list shown alongside the
// numeric score.
func securityFindings(pr github.PullRequest, paths []string) []string {
	findings := []string{}

	sensitive := risk.SensitiveFiles(paths)
	for i, f := range sensitive {
		if i >= maxSensitiveFindings {
			break
		}
		findings = append(findings, "Sensitive file modified: "+f)
	}

	matched := risk.MatchedKeywords(pr.Title, pr.Body)
	lowerTitle := strings.ToLower(pr.Title)
	for i, kw := range matched {
		if i >= maxKeywordFindings {
			break
		}
		if strings.Contains(lowerTitle, kw) {
			findings = append(findings, fmt.Sprintf("Security keyword %q found in PR title", kw))
		} else {
			findings = append(findings, fmt.Sprintf("Security keyword %q mentioned in description", kw))
		}
	}

	if !risk.HasTestChanges(paths) && len(paths) > 3 {
		findings = append(findings, "No test files modified despite multiple file changes")
	}
	if pr.Additions > 500 {
		findings = append(findings, fmt.Sprintf("Large PR with %d lines added, harder to review", pr.Additions))
	}

	return findings
}

func avgScore(sum float64, n int) float64 {
	if n == 0 {
		return 0
	}
	// four decimal places, matching the per-PR scores
	return math.Round(sum/float64(n)*10000) / 10000
}
