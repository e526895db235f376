package daemon

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store manages daemon state in SQLite.
type Store struct {
	DBPath string
	db     *sql.DB
}

// Job represents a queued or running daemon job.
type Job struct {
	ID             string
	Type           string
	Status         string
	ScheduledAt    time.Time
	StartedAt      *time.Time
	FinishedAt     *time.Time
	PayloadJSON    string
	ResultJSON     string
	LeaseOwner     string
	LeaseExpiresAt *time.Time
}

// Open opens or creates the daemon state database.
func Open(path string) (*Store, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve daemon db path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("ensure daemon db dir: %w", err)
	}

	db, err := sql.Open("sqlite", absPath)
	if err != nil {
		return nil, fmt.Errorf("open daemon db: %w", err)
	}

	store := &Store{DBPath: absPath, db: db}
	if err := store.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *Store) ensureSchema() error {
	schema := `
CREATE TABLE IF NOT EXISTS daemon_jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL,
	scheduled_at TEXT NOT NULL,
	started_at TEXT,
	finished_at TEXT,
	payload_json TEXT,
	result_json TEXT,
	lease_owner TEXT,
	lease_expires_at TEXT
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_scheduled ON daemon_jobs(status, scheduled_at);

CREATE TABLE IF NOT EXISTS daemon_kv (
	key TEXT PRIMARY KEY,
	value TEXT
);
`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create daemon schema: %w", err)
	}
	return nil
}

// EnqueueUnique enqueues a job if no job with the same type and scheduled_at
// exists. created is true if a new job was inserted.
func (s *Store) EnqueueUnique(jobType string, scheduledAt time.Time, payload any) (jobID string, created bool, err error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return "", false, fmt.Errorf("marshal payload: %w", err)
	}

	scheduledAtStr := scheduledAt.UTC().Format(time.RFC3339)
	jobID = fmt.Sprintf("%s_%s", jobType, scheduledAt.UTC().Format("2006-01-02T15:04:05"))

	var existingID string
	err = s.db.QueryRow(
		"SELECT id FROM daemon_jobs WHERE type = ? AND scheduled_at = ?",
		jobType, scheduledAtStr,
	).Scan(&existingID)
	if err == nil {
		return existingID, false, nil
	}
	if err != sql.ErrNoRows {
		return "", false, fmt.Errorf("check existing job: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO daemon_jobs (id, type, status, scheduled_at, payload_json)
		VALUES (?, ?, 'queued', ?, ?)
	`, jobID, jobType, scheduledAtStr, string(payloadJSON))
	if err != nil {
		return "", false, fmt.Errorf("insert job: %w", err)
	}
	return jobID, true, nil
}

// ClaimNext atomically claims the next queued job that is ready to run.
func (s *Store) ClaimNext(now time.Time, leaseOwner string, leaseFor time.Duration) (*Job, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	nowStr := now.UTC().Format(time.RFC3339)

	var jobID string
	err = tx.QueryRow(`
		SELECT id FROM daemon_jobs
		WHERE status = 'queued' AND scheduled_at <= ?
		ORDER BY scheduled_at ASC
		LIMIT 1
	`, nowStr).Scan(&jobID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find next job: %w", err)
	}

	_, err = tx.Exec(`
		UPDATE daemon_jobs
		SET status = 'running',
		    started_at = ?,
		    lease_owner = ?,
		    lease_expires_at = ?
		WHERE id = ?
	`, nowStr, leaseOwner, now.Add(leaseFor).UTC().Format(time.RFC3339), jobID)
	if err != nil {
		return nil, fmt.Errorf("claim job: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}
	return s.GetJob(jobID)
}

// GetJob retrieves a job by ID.
func (s *Store) GetJob(jobID string) (*Job, error) {
	row := s.db.QueryRow(`
		SELECT id, type, status, scheduled_at, started_at, finished_at,
		       payload_json, result_json, lease_owner, lease_expires_at
		FROM daemon_jobs
		WHERE id = ?
	`, jobID)

	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// Succeed marks a job as succeeded.
func (s *Store) Succeed(jobID string, result any) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	return s.finish(jobID, "succeeded", string(resultJSON))
}

// Fail marks a job as failed.
func (s *Store) Fail(jobID string, jobErr error) error {
	resultJSON, _ := json.Marshal(map[string]string{"error": jobErr.Error()})
	return s.finish(jobID, "failed", string(resultJSON))
}

func (s *Store) finish(jobID, status, resultJSON string) error {
	_, err := s.db.Exec(`
		UPDATE daemon_jobs
		SET status = ?, finished_at = ?, result_json = ?
		WHERE id = ?
	`, status, time.Now().UTC().Format(time.RFC3339), resultJSON, jobID)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// ListJobs returns up to limit jobs ordered by scheduled_at, newest first.
func (s *Store) ListJobs(limit int) ([]Job, error) {
	rows, err := s.db.Query(`
		SELECT id, type, status, scheduled_at, started_at, finished_at,
		       payload_json, result_json, lease_owner, lease_expires_at
		FROM daemon_jobs
		ORDER BY scheduled_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// GetKV retrieves a value from the key-value store.
func (s *Store) GetKV(key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM daemon_kv WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get kv: %w", err)
	}
	return value, nil
}

// SetKV sets a value in the key-value store.
func (s *Store) SetKV(key, value string) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO daemon_kv (key, value)
		VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set kv: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var scheduledAt string
	var startedAt, finishedAt, leaseExpiresAt sql.NullString
	var payloadJSON, resultJSON, leaseOwner sql.NullString

	err := row.Scan(
		&job.ID, &job.Type, &job.Status, &scheduledAt,
		&startedAt, &finishedAt, &payloadJSON, &resultJSON,
		&leaseOwner, &leaseExpiresAt,
	)
	if err != nil {
		return nil, err
	}

	job.ScheduledAt, _ = time.Parse(time.RFC3339, scheduledAt)
	job.StartedAt = parseNullTime(startedAt)
	job.FinishedAt = parseNullTime(finishedAt)
	job.LeaseExpiresAt = parseNullTime(leaseExpiresAt)
	job.PayloadJSON = payloadJSON.String
	job.ResultJSON = resultJSON.String
	job.LeaseOwner = leaseOwner.String
	return &job, nil
}

func parseNullTime(v sql.NullString) *time.Time {
	if !v.Valid || v.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, v.String)
	if err != nil {
		return nil
	}
	return &t
}
