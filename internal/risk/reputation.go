package risk

import (
	"sync"
	"time"
)

// AuthorProfile is the subset of author metadata that feeds the reputation
// score.
type AuthorProfile struct {
	PublicRepos int
	Followers   int
	CreatedAt   time.Time
}

// ReputationScore blends repository count, follower count, and account age
// into a bounded [0,1] score. Each sub-score is min-normalized and clipped
// before the fixed 0.3/0.4/0.3 weighting.
func ReputationScore(p AuthorProfile, now time.Time) float64 {
	repos := clip01(float64(p.PublicRepos) / 100)
	followers := clip01(float64(p.Followers) / 500)

	ageYears := 1.0
	if !p.CreatedAt.IsZero() {
		ageYears = now.Sub(p.CreatedAt).Hours() / 24 / 365
	}
	age := clip01(ageYears / 10)

	return roundTo(clip01(repos*0.3+followers*0.4+age*0.3), 3)
}

// ReputationCache memoizes author reputation for the process lifetime so
// repeated changes from one author do not trigger redundant lookups. Entries
// are idempotent for a given author, so redundant population under light
// races is harmless.
type ReputationCache struct {
	mu     sync.Mutex
	scores map[string]float64
}

// NewReputationCache returns an empty cache.
func NewReputationCache() *ReputationCache {
	return &ReputationCache{scores: make(map[string]float64)}
}

// Score returns the cached reputation for username, fetching and scoring the
// author profile on first use. A failed fetch caches the neutral 0.5 default.
func (c *ReputationCache) Score(username string, fetch func() (AuthorProfile, error)) float64 {
	c.mu.Lock()
	if score, ok := c.scores[username]; ok {
		c.mu.Unlock()
		return score
	}
	c.mu.Unlock()

	// Fetch outside the lock; a concurrent duplicate fetch writes the same
	// value.
	score := 0.5
	if profile, err := fetch(); err == nil {
		score = ReputationScore(profile, time.Now())
	}

	c.mu.Lock()
	c.scores[username] = score
	c.mu.Unlock()
	return score
}

// Len reports how many authors are cached.
func (c *ReputationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.scores)
}
