package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// DefaultSemgrepRules are the rulesets used when none are configured.
var DefaultSemgrepRules = []string{
	"p/security-audit",
	"p/owasp-top-ten",
	"p/sql-injection",
	"p/xss",
}

// Semgrep wraps the semgrep CLI for static code analysis.
type Semgrep struct {
	Rules   []string
	Timeout time.Duration
}

// NewSemgrep returns a semgrep adapter with the given rulesets, or the
// defaults when rules is empty.
func NewSemgrep(rules []string) *Semgrep {
	if len(rules) == 0 {
		rules = DefaultSemgrepRules
	}
	return &Semgrep{Rules: rules, Timeout: 180 * time.Second}
}

func (s *Semgrep) Name() string { return "semgrep" }

// Probe reports whether the semgrep CLI is usable in this environment.
func (s *Semgrep) Probe(ctx context.Context) bool {
	return probeCommand(ctx, "semgrep", "--version")
}

// semgrepOutput mirrors the parts of `semgrep --json` output we consume.
type semgrepOutput struct {
	Results []struct {
		CheckID string `json:"check_id"`
		Path    string `json:"path"`
		Start   struct {
			Line int `json:"line"`
		} `json:"start"`
		Extra struct {
			Severity string `json:"severity"`
			Message  string `json:"message"`
			Lines    string `json:"lines"`
			Fix      string `json:"fix"`
		} `json:"extra"`
	} `json:"results"`
}

// Scan runs semgrep against the checkout and parses its JSON report.
func (s *Semgrep) Scan(ctx context.Context, checkoutPath string) Result {
	if !s.Probe(ctx) {
		return degradedResult(s.Name(), "semgrep CLI not installed", SeverityInfo)
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	args := []string{"--config"}
	args = append(args, s.Rules...)
	args = append(args, "--json", checkoutPath)

	// Semgrep exits non-zero when findings exist, so the JSON on stdout is
	// authoritative and the exit code is not.
	out, err := runCommandOutput(scanCtx, "", "semgrep", args...)
	if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		return degradedResult(s.Name(), "semgrep scan timeout", SeverityError)
	}
	if len(out) == 0 {
		if err != nil {
			return degradedResult(s.Name(), "semgrep scan failed: "+err.Error(), SeverityError)
		}
		return Result{
			Tool:     s.Name(),
			Findings: []Finding{},
			Severity: SeverityInfo,
			Summary:  "No issues found",
		}
	}

	var data semgrepOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return degradedResult(s.Name(), "failed to parse semgrep output: "+err.Error(), SeverityError)
	}

	return s.toResult(data)
}

func (s *Semgrep) toResult(data semgrepOutput) Result {
	findings := make([]Finding, 0, len(data.Results))
	for _, r := range data.Results {
		sev := strings.ToLower(r.Extra.Severity)
		if sev == "" {
			sev = string(SeverityMedium)
		}
		findings = append(findings, Finding{
			RuleID:      r.CheckID,
			Severity:    Severity(sev),
			Tool:        s.Name(),
			File:        r.Path,
			Line:        r.Start.Line,
			Message:     r.Extra.Message,
			Remediation: r.Extra.Fix,
		})
	}

	return Result{
		Tool:     s.Name(),
		Findings: findings,
		Severity: semgrepOverallSeverity(findings),
		Summary:  findingsSummary(len(findings), "security issues"),
	}
}

// semgrepOverallSeverity folds semgrep's error/warning/info vocabulary into a
// per-tool severity. Semgrep has no critical level, so its worst case is high.
func semgrepOverallSeverity(findings []Finding) Severity {
	overall := SeverityInfo
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical, SeverityHigh, SeverityError:
			return SeverityHigh
		case SeverityMedium, SeverityWarning:
			overall = SeverityMedium
		case SeverityLow, SeverityInfo:
			if overall == SeverityInfo {
				overall = SeverityLow
			}
		}
	}
	return overall
}

func (s *Semgrep) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 180 * time.Second
}
