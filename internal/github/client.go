// Package github is a thin client for the pieces of the GitHub REST API the
// analyzer needs: pull requests, changed files, repository languages, and
// user profiles.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const defaultBaseURL = "https://api.github.com"

// Client talks to the GitHub REST API. A zero token works for public data at
// a much lower rate limit.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a GitHub API client.
func NewClient(token string) *Client {
	return NewClientWithBaseURL(token, defaultBaseURL)
}

// NewClientWithBaseURL creates a client against a non-default API endpoint,
// such as a GitHub Enterprise instance or a mock server in tests.
func NewClientWithBaseURL(token, baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PullRequest is one PR from the list endpoint.
type PullRequest struct {
	Number    int       `json:"number"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"`
	HTMLURL   string    `json:"html_url"`
	CreatedAt time.Time `json:"created_at"`
	User      struct {
		Login string `json:"login"`
	} `json:"user"`
	ChangedFiles   int `json:"changed_files"`
	Additions      int `json:"additions"`
	Deletions      int `json:"deletions"`
	Commits        int `json:"commits"`
	Comments       int `json:"comments"`
	ReviewComments int `json:"review_comments"`
}

// PullFile is one changed file within a PR.
type PullFile struct {
	Filename  string `json:"filename"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
}

// User is a GitHub account profile.
type User struct {
	Login       string    `json:"login"`
	PublicRepos int       `json:"public_repos"`
	Followers   int       `json:"followers"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListPullRequests fetches the most recently updated PRs for a repo.
func (c *Client) ListPullRequests(ctx context.Context, repo string, limit int) ([]PullRequest, error) {
	params := url.Values{
		"state":     {"all"},
		"sort":      {"updated"},
		"direction": {"desc"},
		"per_page":  {strconv.Itoa(limit)},
	}
	var prs []PullRequest
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/pulls", repo), params, &prs); err != nil {
		return nil, err
	}
	return prs, nil
}

// ListPullFiles fetches the changed files for one PR (first page only; the
// feature derivation caps its interest at per_page files).
func (c *Client) ListPullFiles(ctx context.Context, repo string, number, perPage int) ([]PullFile, error) {
	params := url.Values{"per_page": {strconv.Itoa(perPage)}}
	var files []PullFile
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/pulls/%d/files", repo, number), params, &files); err != nil {
		return nil, err
	}
	return files, nil
}

// GetLanguages fetches the repository language byte breakdown.
func (c *Client) GetLanguages(ctx context.Context, repo string) (map[string]int64, error) {
	langs := make(map[string]int64)
	if err := c.get(ctx, fmt.Sprintf("/repos/%s/languages", repo), nil, &langs); err != nil {
		return nil, err
	}
	return langs, nil
}

// GetUser fetches a user profile.
func (c *Client) GetUser(ctx context.Context, login string) (*User, error) {
	var user User
	if err := c.get(ctx, "/users/"+url.PathEscape(login), nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, v interface{}) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build github request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	req.Header.Set("User-Agent", "SecurityGate-API")
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("github request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", u).Msg("GitHub API returned non-200")
		return fmt.Errorf("github API returned %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return fmt.Errorf("read github response: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode github response: %w", err)
	}
	return nil
}
