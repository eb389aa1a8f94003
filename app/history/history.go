// Package history records submitted jobs and their progress snapshots in sqlite
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/jacvision/tunetrack/app/finetune"
)

const opTimeout = 5 * time.Second

// ErrNotFound returned for unknown task id
var ErrNotFound = errors.New("job not found")

// Store implements job history with SQLite
type Store struct {
	db *sqlx.DB
}

type jobRow struct {
	TaskID    string  `db:"task_id"`
	Model     string  `db:"model"`
	Dataset   string  `db:"dataset"`
	AppName   string  `db:"app_name"`
	Status    string  `db:"status"`
	Progress  float64 `db:"progress"`
	Error     string  `db:"error"`
	CreatedAt int64   `db:"created_at"`
	UpdatedAt int64   `db:"updated_at"`
}

type snapshotRow struct {
	ID         int64   `db:"id"`
	TaskID     string  `db:"task_id"`
	Seq        int     `db:"seq"`
	Type       string  `db:"type"`
	Status     string  `db:"status"`
	Progress   float64 `db:"progress"`
	Epoch      string  `db:"epoch"`
	Loss       string  `db:"loss"`
	Error      string  `db:"error"`
	ReceivedAt int64   `db:"received_at"`
}

// New opens database and makes schema
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// single connection, recorder and api share the db
	db.SetMaxOpenConns(1)

	// enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to set WAL mode: %w (also failed to close db: %v)", err, closeErr)
		}
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	res := &Store{db: db}
	if err := res.initialize(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return res, nil
}

func (s *Store) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			task_id TEXT PRIMARY KEY,
			model TEXT NOT NULL DEFAULT '',
			dataset TEXT NOT NULL DEFAULT '',
			app_name TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			progress REAL NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL DEFAULT 0,
			updated_at INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			task_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT '',
			progress REAL NOT NULL DEFAULT 0,
			epoch TEXT NOT NULL DEFAULT '',
			loss TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			received_at INTEGER NOT NULL DEFAULT 0,
			FOREIGN KEY (task_id) REFERENCES jobs(task_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_snapshots_task_id ON snapshots(task_id, seq)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

// SaveJob inserts or updates the job. Creation time and non-empty fields of the stored job are kept.
func (s *Store) SaveJob(job finetune.Job) error {
	if job.TaskID == "" {
		return errors.New("empty task id")
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	updated := job.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	row := jobRow{TaskID: job.TaskID, Model: job.Model, Dataset: job.Dataset, AppName: job.AppName,
		Status: string(job.Status), Progress: job.Progress, Error: job.Error,
		CreatedAt: toMillis(job.CreatedAt), UpdatedAt: toMillis(updated)}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO jobs (task_id, model, dataset, app_name, status, progress, error, created_at, updated_at)
		VALUES (:task_id, :model, :dataset, :app_name, :status, :progress, :error, :created_at, :updated_at)
		ON CONFLICT(task_id) DO UPDATE SET
			model = CASE WHEN excluded.model != '' THEN excluded.model ELSE jobs.model END,
			dataset = CASE WHEN excluded.dataset != '' THEN excluded.dataset ELSE jobs.dataset END,
			app_name = CASE WHEN excluded.app_name != '' THEN excluded.app_name ELSE jobs.app_name END,
			status = excluded.status,
			progress = excluded.progress,
			error = excluded.error,
			updated_at = excluded.updated_at`, row)
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.TaskID, err)
	}
	return nil
}

// RecordSnapshot logs a snapshot of the task, seq is the snapshot number since submission
func (s *Store) RecordSnapshot(taskID string, seq int, snap finetune.Snapshot) error {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	row := snapshotRow{TaskID: taskID, Seq: seq, Type: snap.Type, Status: snap.Status, Progress: snap.Progress,
		Epoch: snap.Epoch, Loss: snap.Loss, Error: snap.Error, ReceivedAt: toMillis(snap.ReceivedAt)}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO snapshots (task_id, seq, type, status, progress, epoch, loss, error, received_at)
		VALUES (:task_id, :seq, :type, :status, :progress, :epoch, :loss, :error, :received_at)`, row)
	if err != nil {
		return fmt.Errorf("failed to record snapshot for %s: %w", taskID, err)
	}
	return nil
}

// LoadJobs returns recent jobs, newest first. Limit 0 returns all jobs.
func (s *Store) LoadJobs(limit int) ([]finetune.Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT task_id, model, dataset, app_name, status, progress, error, created_at, updated_at
		FROM jobs ORDER BY created_at DESC, rowid DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows := []jobRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query jobs: %w", err)
	}
	res := make([]finetune.Job, 0, len(rows))
	for _, r := range rows {
		res = append(res, r.job())
	}
	return res, nil
}

// GetJob returns job by task id, ErrNotFound if missing
func (s *Store) GetJob(taskID string) (finetune.Job, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var r jobRow
	err := s.db.GetContext(ctx, &r, `SELECT task_id, model, dataset, app_name, status, progress, error,
		created_at, updated_at FROM jobs WHERE task_id = ?`, taskID)
	if errors.Is(err, sql.ErrNoRows) {
		return finetune.Job{}, ErrNotFound
	}
	if err != nil {
		return finetune.Job{}, fmt.Errorf("failed to get job %s: %w", taskID, err)
	}
	return r.job(), nil
}

// GetSnapshots returns snapshots of the task in arrival order. Limit > 0 returns the last limit snapshots.
func (s *Store) GetSnapshots(taskID string, limit int) ([]finetune.Snapshot, error) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	query := `SELECT id, task_id, seq, type, status, progress, epoch, loss, error, received_at
		FROM snapshots WHERE task_id = ? ORDER BY id DESC`
	args := []any{taskID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows := []snapshotRow{}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query snapshots for %s: %w", taskID, err)
	}
	res := make([]finetune.Snapshot, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		res = append(res, finetune.Snapshot{Type: r.Type, Status: r.Status, Progress: r.Progress, Epoch: r.Epoch,
			Loss: r.Loss, Error: r.Error, ReceivedAt: fromMillis(r.ReceivedAt)})
	}
	return res, nil
}

// CleanupOldJobs keeps the most recent jobs and removes the rest with their snapshots
func (s *Store) CleanupOldJobs(keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() // nolint

	stale := `SELECT task_id FROM jobs ORDER BY created_at DESC, rowid DESC LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM snapshots WHERE task_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("failed to delete snapshots: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE task_id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("failed to delete jobs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transaction: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get deleted count: %w", err)
	}
	if deleted > 0 {
		log.Printf("[INFO] removed %d old jobs from history", deleted)
	}
	return deleted, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (r jobRow) job() finetune.Job {
	return finetune.Job{TaskID: r.TaskID, Model: r.Model, Dataset: r.Dataset, AppName: r.AppName,
		Status: finetune.Status(r.Status), Progress: r.Progress, Error: r.Error,
		CreatedAt: fromMillis(r.CreatedAt), UpdatedAt: fromMillis(r.UpdatedAt)}
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(v int64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	return time.UnixMilli(v)
}
