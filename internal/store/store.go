// Package store persists analysis records and their per-tool scan results in
// SQLite.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/securitygate/securitygate/internal/scanner"
)

// Analysis lifecycle states.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusError     = "error"
)

const dbFileName = "securitygate.db"

// ErrNotFound is returned when an analysis id does not exist.
var ErrNotFound = errors.New("analysis not found")

// Analysis is one PR analysis request and its outcome.
type Analysis struct {
	ID          int64        `json:"id"`
	RepoName    string       `json:"repo_name"`
	PRNumber    int          `json:"pr_number"`
	PRURL       string       `json:"pr_url"`
	Status      string       `json:"status"`
	RiskScore   int          `json:"risk_score"`
	Verdict     string       `json:"verdict,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	ScanRecords []ScanRecord `json:"scan_results,omitempty"`
}

// ScanRecord is one tool's persisted scan outcome.
type ScanRecord struct {
	ID        int64             `json:"id"`
	Tool      string            `json:"tool"`
	Severity  scanner.Severity  `json:"severity"`
	Summary   string            `json:"summary,omitempty"`
	Error     string            `json:"error,omitempty"`
	Findings  []scanner.Finding `json:"findings"`
	CreatedAt time.Time         `json:"created_at"`
}

// Store is a SQLite-backed analysis store.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens or creates the store under dataDir.
func New(dataDir string) (*Store, error) {
	path := filepath.Join(dataDir, dbFileName)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := path + "?" + url.Values{
		"_pragma": []string{
			"busy_timeout(30000)",
			"journal_mode(WAL)",
			"synchronous(NORMAL)",
			"foreign_keys(ON)",
		},
	}.Encode()

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open analysis db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{db: db, dbPath: path}
	if err := s.initSchema(); err != nil {
		initErr := fmt.Errorf("initialize analysis schema for %q: %w", path, err)
		if closeErr := db.Close(); closeErr != nil {
			return nil, errors.Join(initErr, fmt.Errorf("close analysis db after init failure: %w", closeErr))
		}
		return nil, initErr
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS pull_requests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			repo_name TEXT NOT NULL,
			pr_number INTEGER NOT NULL,
			pr_url TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			risk_score INTEGER NOT NULL DEFAULT 0,
			verdict TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS scan_results (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			pr_id INTEGER NOT NULL REFERENCES pull_requests(id) ON DELETE CASCADE,
			tool TEXT NOT NULL,
			severity TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			findings TEXT NOT NULL DEFAULT '[]',
			created_at TIMESTAMP NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_scan_results_pr ON scan_results(pr_id);
	`)
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAnalysis inserts a new pending analysis and returns it.
func (s *Store) CreateAnalysis(repoName string, prNumber int, prURL string) (*Analysis, error) {
	now := time.Now().UTC()
	res, err := s.db.Exec(
		`INSERT INTO pull_requests (repo_name, pr_number, pr_url, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		repoName, prNumber, prURL, StatusPending, now, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create analysis: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("create analysis id: %w", err)
	}
	return &Analysis{
		ID:        id,
		RepoName:  repoName,
		PRNumber:  prNumber,
		PRURL:     prURL,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompleteAnalysis marks an analysis finished with its verdict and 0-100
// risk score.
func (s *Store) CompleteAnalysis(id int64, verdict scanner.Verdict, riskScore int) error {
	return s.setOutcome(id, StatusCompleted, string(verdict), riskScore)
}

// FailAnalysis marks an analysis as errored (for example when the checkout
// could not be cloned).
func (s *Store) FailAnalysis(id int64) error {
	return s.setOutcome(id, StatusError, "ERROR", 0)
}

func (s *Store) setOutcome(id int64, status, verdict string, riskScore int) error {
	res, err := s.db.Exec(
		`UPDATE pull_requests SET status = ?, verdict = ?, risk_score = ?, updated_at = ? WHERE id = ?`,
		status, verdict, riskScore, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("update analysis %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddScanResult persists one tool's scan outcome for an analysis.
func (s *Store) AddScanResult(id int64, result scanner.Result) error {
	findings, err := json.Marshal(result.Findings)
	if err != nil {
		return fmt.Errorf("encode findings for %s: %w", result.Tool, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO scan_results (pr_id, tool, severity, summary, error, findings, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, result.Tool, string(result.Severity), result.Summary, result.Error, string(findings), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("save scan result for %s: %w", result.Tool, err)
	}
	return nil
}

// GetAnalysis returns one analysis with its scan records.
func (s *Store) GetAnalysis(id int64) (*Analysis, error) {
	row := s.db.QueryRow(
		`SELECT id, repo_name, pr_number, pr_url, status, risk_score, verdict, created_at, updated_at
		 FROM pull_requests WHERE id = ?`, id,
	)
	a, err := scanAnalysis(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	rows, err := s.db.Query(
		`SELECT id, tool, severity, summary, error, findings, created_at
		 FROM scan_results WHERE pr_id = ? ORDER BY id`, id,
	)
	if err != nil {
		return nil, fmt.Errorf("load scan results for %d: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec ScanRecord
		var severity, findings string
		if err := rows.Scan(&rec.ID, &rec.Tool, &severity, &rec.Summary, &rec.Error, &findings, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Severity = scanner.Severity(severity)
		if err := json.Unmarshal([]byte(findings), &rec.Findings); err != nil {
			// Stored findings are always written by us; treat corruption as
			// an empty list rather than failing the whole read.
			rec.Findings = []scanner.Finding{}
		}
		a.ScanRecords = append(a.ScanRecords, rec)
	}
	return a, rows.Err()
}

// ListAnalyses returns analyses ordered by newest first.
func (s *Store) ListAnalyses(skip, limit int) ([]Analysis, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.db.Query(
		`SELECT id, repo_name, pr_number, pr_url, status, risk_score, verdict, created_at, updated_at
		 FROM pull_requests ORDER BY id DESC LIMIT ? OFFSET ?`, limit, skip,
	)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*Analysis, error) {
	var a Analysis
	if err := row.Scan(&a.ID, &a.RepoName, &a.PRNumber, &a.PRURL, &a.Status, &a.RiskScore, &a.Verdict, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
