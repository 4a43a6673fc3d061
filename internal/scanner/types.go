// Package scanner runs external security tools against a code checkout and
// normalizes their heterogeneous output into one findings schema, then
// aggregates everything into a single severity verdict.
package scanner

// Severity is a scanner-reported severity level. Adapters store the level the
// tool reported (lowercased); aggregation folds it into one of the four
// canonical counting buckets via Bucket.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"

	// Tool-native vocabulary accepted on input (semgrep reports
	// error/warning/info rather than critical..low).
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Bucket maps a tool severity onto the canonical counting scale. Every
// finding lands in exactly one bucket; levels we do not recognize count as
// low so they are surfaced for review instead of silently dropped.
func (s Severity) Bucket() Severity {
	switch s {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh, SeverityError:
		return SeverityHigh
	case SeverityMedium, SeverityWarning:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Weight returns a numeric rank for ordering severities (higher = worse).
func (s Severity) Weight() int {
	switch s.Bucket() {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	default:
		return 1
	}
}

// Verdict is the categorical decision derived from aggregated findings.
type Verdict string

const (
	VerdictAutoApprove  Verdict = "AUTO_APPROVE"
	VerdictManualReview Verdict = "MANUAL_REVIEW"
	VerdictBlock        Verdict = "BLOCK"
)

// Finding is one normalized issue reported by one tool. Findings are never
// mutated after the adapter creates them.
type Finding struct {
	RuleID      string   `json:"rule_id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Severity    Severity `json:"severity"`
	Tool        string   `json:"tool"`
	File        string   `json:"file,omitempty"`
	Line        int      `json:"line,omitempty"`
	Message     string   `json:"message"`
	Remediation string   `json:"remediation,omitempty"`
}

// Result is one tool's complete outcome for one scan. Error set with empty
// findings means the tool was unavailable or failed; that is not the same as
// a clean run with zero findings (severity info, no error).
type Result struct {
	Tool     string    `json:"tool"`
	Findings []Finding `json:"findings"`
	Severity Severity  `json:"severity"`
	Summary  string    `json:"summary,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// Degraded returns true when the tool did not produce a usable scan.
func (r Result) Degraded() bool {
	return r.Error != ""
}

// Summary aggregates every finding across every tool for one scan cycle.
// It is derived, recomputed fresh each cycle, and never persisted on its own.
type Summary struct {
	TotalFindings   int              `json:"total_findings"`
	Counts          map[Severity]int `json:"counts_by_severity"`
	OverallSeverity Severity         `json:"overall_severity"`
	Verdict         Verdict          `json:"verdict"`
	RiskScore       int              `json:"risk_score"`
	ToolsRun        []string         `json:"tools_run"`
}

// Report is the full output of one orchestrated scan.
type Report struct {
	Results map[string]Result `json:"results"`
	Summary Summary           `json:"summary"`
}
