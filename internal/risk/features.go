// Package risk builds the behavioral feature vector for a code change and
// scores it with a trained model, falling back to a deterministic heuristic
// when no model is available.
package risk

import (
	"math"
	"strings"
	"time"
)

// FeatureNames is the twelve-slot feature schema, in the exact order the
// trained model expects. This slice is the single source of truth for slot
// ordering; FeatureVector.Values must emit values in the same order.
var FeatureNames = []string{
	"files_changed",
	"lines_added",
	"lines_deleted",
	"commit_count",
	"author_reputation",
	"time_of_day",
	"day_of_week",
	"has_test_changes",
	"num_issues",
	"num_severity",
	"lang_ratio",
	"historical_vuln_rate",
}

// NumFeatures is the fixed width of the feature vector.
const NumFeatures = 12

// securityKeywords are matched against a change's title and description. The
// historical_vuln_rate feature is the match count normalized by the length of
// this list, so the list is part of the feature schema.
var securityKeywords = []string{
	"security", "vulnerability", "vuln", "cve", "exploit", "injection",
	"xss", "csrf", "ssrf", "rce", "dos", "overflow", "bypass",
	"auth", "authentication", "authorization", "privilege", "sanitize",
	"encrypt", "decrypt", "hash", "token", "password", "secret",
	"credential", "leak", "exposure", "unsafe", "malicious", "attack",
	"patch", "fix", "critical",
}

// sensitivePaths flag changed files that touch security-relevant areas.
var sensitivePaths = []string{
	"auth", "login", "session", "token", "crypto", "encrypt", "security",
	"password", "secret", "key", "cert", "ssl", "tls", "oauth",
	"permission", "access", "admin", "config", ".env",
}

// testPathMarkers identify test files in a change.
var testPathMarkers = []string{"test", "spec", "__test__"}

// FeatureVector is the fixed-order numeric encoding of one code change.
// Boolean signals are coerced to 0.0/1.0.
type FeatureVector struct {
	FilesChanged       float64
	LinesAdded         float64
	LinesDeleted       float64
	CommitCount        float64
	AuthorReputation   float64
	TimeOfDay          float64
	DayOfWeek          float64
	HasTestChanges     float64
	NumIssues          float64
	NumSeverity        float64
	LangRatio          float64
	HistoricalVulnRate float64
}

// Values returns the vector in canonical slot order.
func (v FeatureVector) Values() []float64 {
	return []float64{
		v.FilesChanged,
		v.LinesAdded,
		v.LinesDeleted,
		v.CommitCount,
		v.AuthorReputation,
		v.TimeOfDay,
		v.DayOfWeek,
		v.HasTestChanges,
		v.NumIssues,
		v.NumSeverity,
		v.LangRatio,
		v.HistoricalVulnRate,
	}
}

// Named returns the vector keyed by feature name.
func (v FeatureVector) Named() map[string]float64 {
	vals := v.Values()
	out := make(map[string]float64, NumFeatures)
	for i, name := range FeatureNames {
		out[name] = vals[i]
	}
	return out
}

// ChangeMetadata is the collaborator-supplied raw record for one change.
// The metadata client owns how it is fetched; this package only derives
// features from it.
type ChangeMetadata struct {
	Title            string
	Body             string
	FilesChanged     int // declared count; falls back to len(Files) when zero
	Files            []string
	LinesAdded       int
	LinesDeleted     int
	CommitCount      int
	AuthorReputation float64
	CreatedAt        time.Time
	CommentCount     int
	Languages        map[string]int64
}

// ExtractFeatures derives the twelve-slot vector from raw change metadata.
func ExtractFeatures(meta ChangeMetadata) FeatureVector {
	filesChanged := meta.FilesChanged
	if filesChanged == 0 {
		filesChanged = len(meta.Files)
	}

	commits := meta.CommitCount
	if commits == 0 {
		commits = 1
	}

	hasTests := 0.0
	if HasTestChanges(meta.Files) {
		hasTests = 1.0
	}

	created := meta.CreatedAt.UTC()

	return FeatureVector{
		FilesChanged:       float64(filesChanged),
		LinesAdded:         float64(meta.LinesAdded),
		LinesDeleted:       float64(meta.LinesDeleted),
		CommitCount:        float64(commits),
		AuthorReputation:   meta.AuthorReputation,
		TimeOfDay:          float64(created.Hour()),
		DayOfWeek:          float64(dayOfWeek(created)),
		HasTestChanges:     hasTests,
		NumIssues:          float64(meta.CommentCount),
		NumSeverity:        float64(len(SensitiveFiles(meta.Files))),
		LangRatio:          LangRatio(meta.Languages),
		HistoricalVulnRate: roundTo(float64(len(MatchedKeywords(meta.Title, meta.Body)))/float64(len(securityKeywords)), 4),
	}
}

// dayOfWeek returns 0..6 with Monday as 0, matching the convention the model
// was trained under.
func dayOfWeek(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// HasTestChanges reports whether any changed path looks like a test file.
func HasTestChanges(files []string) bool {
	for _, f := range files {
		lower := strings.ToLower(f)
		for _, marker := range testPathMarkers {
			if strings.Contains(lower, marker) {
				return true
			}
		}
	}
	return false
}

// SensitiveFiles returns the changed paths that match the sensitive-path
// keyword list. Each file matches at most once.
func SensitiveFiles(files []string) []string {
	var matched []string
	for _, f := range files {
		lower := strings.ToLower(f)
		for _, p := range sensitivePaths {
			if strings.Contains(lower, p) {
				matched = append(matched, f)
				break
			}
		}
	}
	return matched
}

// MatchedKeywords returns the security keywords present in the change's
// title or description.
func MatchedKeywords(title, body string) []string {
	combined := strings.ToLower(title + " " + body)
	var matched []string
	for _, kw := range securityKeywords {
		if strings.Contains(combined, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}

// LangRatio computes the script-language share of the repository's byte
// volume (JavaScript and TypeScript versus Python), defaulting to 0.5 when
// the language breakdown is unavailable or inconclusive.
func LangRatio(languages map[string]int64) float64 {
	script := languages["JavaScript"] + languages["TypeScript"]
	total := script + languages["Python"]
	if total <= 0 {
		return 0.5
	}
	return roundTo(float64(script)/float64(total), 3)
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
