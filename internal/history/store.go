// Package history provides SQLite-backed persistence for jobs the user
// has submitted or watched, plus the decision log.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// JobRecord is one locally remembered job. Status and stage track the
// latest snapshot observed from the backend.
type JobRecord struct {
	JobID     string
	JobType   string
	Status    string
	Stage     string
	TicketKey string
	PRURL     string
	FirstSeen time.Time
	LastSeen  time.Time
}

// Decision is one recorded state-mutating action taken by this client.
type Decision struct {
	ID         string
	Action     string
	InputsHash string
	Outcome    string
	JobID      string
	Details    string
	Timestamp  time.Time
}

// Store provides access to the local history database.
type Store struct {
	db *sql.DB
}

// New creates a new Store and runs migrations.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	// WAL mode for better concurrency
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate runs idempotent schema migrations.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS jobs (
		job_id TEXT PRIMARY KEY,
		job_type TEXT NOT NULL,
		status TEXT NOT NULL,
		stage TEXT,
		ticket_key TEXT,
		pr_url TEXT,
		first_seen DATETIME NOT NULL,
		last_seen DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		action TEXT NOT NULL,
		inputs_hash TEXT NOT NULL,
		outcome TEXT NOT NULL,
		job_id TEXT,
		details TEXT,
		timestamp DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_jobs_last_seen ON jobs(last_seen);
	CREATE INDEX IF NOT EXISTS idx_decisions_job_id ON decisions(job_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// --- Job Operations ---

// RecordJob inserts or updates a job record. The first_seen timestamp is
// preserved across updates.
func (s *Store) RecordJob(rec JobRecord) error {
	now := time.Now().UTC()
	if rec.FirstSeen.IsZero() {
		rec.FirstSeen = now
	}
	if rec.LastSeen.IsZero() {
		rec.LastSeen = now
	}

	_, err := s.db.Exec(
		`INSERT INTO jobs (job_id, job_type, status, stage, ticket_key, pr_url, first_seen, last_seen)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(job_id) DO UPDATE SET
			job_type = excluded.job_type,
			status = excluded.status,
			stage = excluded.stage,
			ticket_key = excluded.ticket_key,
			pr_url = excluded.pr_url,
			last_seen = excluded.last_seen`,
		rec.JobID, rec.JobType, rec.Status, rec.Stage, rec.TicketKey, rec.PRURL, rec.FirstSeen, rec.LastSeen,
	)
	if err != nil {
		return fmt.Errorf("upsert job: %w", err)
	}
	return nil
}

// GetJob retrieves a job record by ID. Returns nil when unknown.
func (s *Store) GetJob(jobID string) (*JobRecord, error) {
	rec := &JobRecord{}
	var stage, ticketKey, prURL sql.NullString

	err := s.db.QueryRow(
		`SELECT job_id, job_type, status, stage, ticket_key, pr_url, first_seen, last_seen FROM jobs WHERE job_id = ?`,
		jobID,
	).Scan(&rec.JobID, &rec.JobType, &rec.Status, &stage, &ticketKey, &prURL, &rec.FirstSeen, &rec.LastSeen)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query job: %w", err)
	}
	rec.Stage = stage.String
	rec.TicketKey = ticketKey.String
	rec.PRURL = prURL.String
	return rec, nil
}

// ListRecent returns the most recently seen jobs, newest first.
func (s *Store) ListRecent(limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT job_id, job_type, status, stage, ticket_key, pr_url, first_seen, last_seen FROM jobs ORDER BY last_seen DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var recs []JobRecord
	for rows.Next() {
		var rec JobRecord
		var stage, ticketKey, prURL sql.NullString
		if err := rows.Scan(&rec.JobID, &rec.JobType, &rec.Status, &stage, &ticketKey, &prURL, &rec.FirstSeen, &rec.LastSeen); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		rec.Stage = stage.String
		rec.TicketKey = ticketKey.String
		rec.PRURL = prURL.String
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// DeleteJob removes a job record.
func (s *Store) DeleteJob(jobID string) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE job_id = ?`, jobID)
	return err
}

// --- Decision Operations ---

// WriteDecision appends a decision record.
func (s *Store) WriteDecision(action, inputsHash, outcome, jobID, details string) (*Decision, error) {
	d := &Decision{
		ID:         uuid.New().String(),
		Action:     action,
		InputsHash: inputsHash,
		Outcome:    outcome,
		JobID:      jobID,
		Details:    details,
		Timestamp:  time.Now().UTC(),
	}

	_, err := s.db.Exec(
		`INSERT INTO decisions (id, action, inputs_hash, outcome, job_id, details, timestamp) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Action, d.InputsHash, d.Outcome, d.JobID, d.Details, d.Timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert decision: %w", err)
	}
	return d, nil
}

// ListDecisions returns decisions, optionally filtered by job, newest
// first.
func (s *Store) ListDecisions(jobID string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, action, inputs_hash, outcome, job_id, details, timestamp FROM decisions`
	var args []interface{}
	if jobID != "" {
		query += ` WHERE job_id = ?`
		args = append(args, jobID)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	var out []Decision
	for rows.Next() {
		var d Decision
		var jID, details sql.NullString
		if err := rows.Scan(&d.ID, &d.Action, &d.InputsHash, &d.Outcome, &jID, &details, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		d.JobID = jID.String
		d.Details = details.String
		out = append(out, d)
	}
	return out, rows.Err()
}
