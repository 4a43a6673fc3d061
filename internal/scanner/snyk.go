package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Snyk wraps the snyk CLI for dependency vulnerability scanning.
type Snyk struct {
	Timeout time.Duration
}

// NewSnyk returns a snyk adapter with the default execution timeout.
func NewSnyk() *Snyk {
	return &Snyk{Timeout: 120 * time.Second}
}

func (s *Snyk) Name() string { return "snyk" }

// Probe reports whether the snyk CLI is usable in this environment.
func (s *Snyk) Probe(ctx context.Context) bool {
	return probeCommand(ctx, "snyk", "--version")
}

// snykOutput mirrors the parts of `snyk test --json` output we consume.
type snykOutput struct {
	Vulnerabilities []struct {
		ID          string `json:"id"`
		Title       string `json:"title"`
		Severity    string `json:"severity"`
		PackageName string `json:"packageName"`
		Version     string `json:"version"`
		Identifiers struct {
			CVE []string `json:"CVE"`
		} `json:"identifiers"`
		FixedIn     []string `json:"fixedIn"`
		Description string   `json:"description"`
	} `json:"vulnerabilities"`
}

// Scan runs snyk test inside the checkout and parses its JSON report.
func (s *Snyk) Scan(ctx context.Context, checkoutPath string) Result {
	if !s.Probe(ctx) {
		return degradedResult(s.Name(), "snyk CLI not installed", SeverityInfo)
	}

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout())
	defer cancel()

	// Snyk exits 1 when vulnerabilities are found; stdout still carries the
	// full JSON report, so parse whatever we got before looking at the error.
	out, err := runCommandOutput(scanCtx, checkoutPath, "snyk", "test", "--json")
	if errors.Is(scanCtx.Err(), context.DeadlineExceeded) {
		return degradedResult(s.Name(), "snyk scan timeout", SeverityError)
	}
	if len(out) == 0 {
		if err != nil {
			return degradedResult(s.Name(), "snyk scan failed: "+err.Error(), SeverityError)
		}
		return Result{
			Tool:     s.Name(),
			Findings: []Finding{},
			Severity: SeverityInfo,
			Summary:  "No vulnerabilities found",
		}
	}

	var data snykOutput
	if err := json.Unmarshal(out, &data); err != nil {
		return degradedResult(s.Name(), "failed to parse snyk output: "+err.Error(), SeverityError)
	}

	return s.toResult(data)
}

func (s *Snyk) toResult(data snykOutput) Result {
	findings := make([]Finding, 0, len(data.Vulnerabilities))
	for _, v := range data.Vulnerabilities {
		sev := strings.ToLower(v.Severity)
		if sev == "" {
			sev = string(SeverityLow)
		}

		ruleID := v.ID
		if len(v.Identifiers.CVE) > 0 {
			ruleID = v.Identifiers.CVE[0]
		}

		pkg := v.PackageName
		if v.Version != "" {
			pkg += "@" + v.Version
		}

		var remediation string
		if len(v.FixedIn) > 0 {
			remediation = "Fixed in " + strings.Join(v.FixedIn, ", ")
		}

		findings = append(findings, Finding{
			RuleID:      ruleID,
			Title:       v.Title,
			Severity:    Severity(sev),
			Tool:        s.Name(),
			File:        pkg,
			Message:     v.Description,
			Remediation: remediation,
		})
	}

	return Result{
		Tool:     s.Name(),
		Findings: findings,
		Severity: snykOverallSeverity(findings),
		Summary:  findingsSummary(len(findings), "vulnerabilities"),
	}
}

// snykOverallSeverity reports the worst native severity snyk found. Snyk uses
// the canonical critical/high/medium/low scale directly.
func snykOverallSeverity(findings []Finding) Severity {
	overall := SeverityInfo
	for _, f := range findings {
		switch f.Severity {
		case SeverityCritical:
			return SeverityCritical
		case SeverityHigh:
			overall = SeverityHigh
		case SeverityMedium:
			if overall != SeverityHigh {
				overall = SeverityMedium
			}
		case SeverityLow:
			if overall == SeverityInfo {
				overall = SeverityLow
			}
		}
	}
	return overall
}

func (s *Snyk) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return 120 * time.Second
}
