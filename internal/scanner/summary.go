package scanner

import (
	"fmt"
	"sort"
)

// Summarize folds all per-tool results into one Summary. It is a pure
// function of the results: the same findings always produce the same verdict
// regardless of tool ordering.
func Summarize(results []Result) Summary {
	counts := map[Severity]int{
		SeverityCritical: 0,
		SeverityHigh:     0,
		SeverityMedium:   0,
		SeverityLow:      0,
	}

	total := 0
	tools := make([]string, 0, len(results))
	for _, res := range results {
		tools = append(tools, res.Tool)
		total += len(res.Findings)
		for _, f := range res.Findings {
			counts[f.Severity.Bucket()]++
		}
	}
	sort.Strings(tools)

	verdict, overall := decideVerdict(
		counts[SeverityCritical],
		counts[SeverityHigh],
		counts[SeverityMedium],
		counts[SeverityLow],
	)

	return Summary{
		TotalFindings:   total,
		Counts:          counts,
		OverallSeverity: overall,
		Verdict:         verdict,
		RiskScore:       riskScore(counts[SeverityCritical], counts[SeverityHigh], counts[SeverityMedium]),
		ToolsRun:        tools,
	}
}

// decideVerdict applies the severity policy in strict priority order, first
// match wins:
//
//  1. any critical finding blocks unconditionally
//  2. three or more highs compound into a block
//  3. any high, or five or more mediums, escalates to human review
//  4. any remaining moderate or low signal still goes to human review
//  5. otherwise the change auto-approves
func decideVerdict(critical, high, medium, low int) (Verdict, Severity) {
	switch {
	case critical > 0:
		return VerdictBlock, SeverityCritical
	case high >= 3:
		return VerdictBlock, SeverityHigh
	case high > 0 || medium >= 5:
		if high > 0 {
			return VerdictManualReview, SeverityHigh
		}
		return VerdictManualReview, SeverityMedium
	case medium > 0 || low > 0:
		return VerdictManualReview, SeverityMedium
	default:
		return VerdictAutoApprove, SeverityLow
	}
}

// riskScore derives a coarse 0-100 score from the severity counts. It is an
// explainable complement to the verdict, not a replacement for it.
func riskScore(critical, high, medium int) int {
	score := 25*critical + 10*high + 5*medium
	if score > 100 {
		return 100
	}
	return score
}

func findingsSummary(n int, what string) string {
	if n == 0 {
		return fmt.Sprintf("No %s found", what)
	}
	return fmt.Sprintf("Found %d %s", n, what)
}
