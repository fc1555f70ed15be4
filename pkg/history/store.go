// Package history persists admission decisions to SQLite for offline
// inspection. The engine itself never reads from it.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gatewise-ai/gatewise/pkg/models"
)

// Store writes and queries admission records in a SQLite database.
type Store struct {
	db *sql.DB
}

const createTable = `
CREATE TABLE IF NOT EXISTS admissions (
	id TEXT PRIMARY KEY,
	caller_id TEXT NOT NULL,
	request_type TEXT NOT NULL,
	fingerprint TEXT NOT NULL,
	decision TEXT NOT NULL,
	predicted_cost REAL NOT NULL,
	actual_cost REAL NOT NULL,
	confidence REAL NOT NULL,
	latency_ms INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_admissions_caller_time ON admissions(caller_id, created_at);
CREATE INDEX IF NOT EXISTS idx_admissions_decision ON admissions(decision);
`

// New opens the admission log database and runs auto-migration.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(createTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &Store{db: db}, nil
}

// Record stores one admission record.
func (s *Store) Record(ctx context.Context, rec models.AdmissionRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO admissions (id, caller_id, request_type, fingerprint, decision, predicted_cost, actual_cost, confidence, latency_ms, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CallerID, rec.RequestType, rec.Fingerprint, string(rec.Decision),
		rec.PredictedCost, rec.ActualCost, rec.Confidence, rec.LatencyMs, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record admission: %w", err)
	}
	return nil
}

// Query returns admission records matching the given filters, most recent
// first.
func (s *Store) Query(ctx context.Context, opts models.HistoryQueryOpts) ([]models.AdmissionRecord, error) {
	query := `SELECT id, caller_id, request_type, fingerprint, decision, predicted_cost, actual_cost, confidence, latency_ms, created_at
		 FROM admissions WHERE 1=1`
	var args []any
	if opts.CallerID != "" {
		query += ` AND caller_id = ?`
		args = append(args, opts.CallerID)
	}
	if opts.RequestType != "" {
		query += ` AND request_type = ?`
		args = append(args, opts.RequestType)
	}
	if opts.Decision != "" {
		query += ` AND decision = ?`
		args = append(args, string(opts.Decision))
	}
	if !opts.Since.IsZero() {
		query += ` AND created_at >= ?`
		args = append(args, opts.Since)
	}
	query += ` ORDER BY created_at DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query admissions: %w", err)
	}
	defer rows.Close()

	var records []models.AdmissionRecord
	for rows.Next() {
		var r models.AdmissionRecord
		var decision string
		if err := rows.Scan(&r.ID, &r.CallerID, &r.RequestType, &r.Fingerprint, &decision,
			&r.PredictedCost, &r.ActualCost, &r.Confidence, &r.LatencyMs, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan admission: %w", err)
		}
		r.Decision = models.Decision(decision)
		records = append(records, r)
	}
	return records, rows.Err()
}

// Summary aggregates outcomes grouped by caller and request type, optionally
// filtered by caller.
func (s *Store) Summary(ctx context.Context, callerID string) ([]models.HistorySummary, error) {
	query := `SELECT caller_id, request_type, COUNT(*),
		 SUM(CASE WHEN decision = 'admitted' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN decision = 'cache_hit' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN decision = 'rejected' THEN 1 ELSE 0 END),
		 SUM(CASE WHEN decision = 'failed' THEN 1 ELSE 0 END),
		 SUM(actual_cost), SUM(predicted_cost)
		 FROM admissions`
	var args []any
	if callerID != "" {
		query += ` WHERE caller_id = ?`
		args = append(args, callerID)
	}
	query += ` GROUP BY caller_id, request_type ORDER BY caller_id, request_type`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("summarize admissions: %w", err)
	}
	defer rows.Close()

	var summaries []models.HistorySummary
	for rows.Next() {
		var h models.HistorySummary
		if err := rows.Scan(&h.CallerID, &h.RequestType, &h.Requests,
			&h.Admitted, &h.CacheHits, &h.Rejected, &h.Failed,
			&h.TotalCost, &h.PredictedCost); err != nil {
			return nil, fmt.Errorf("scan summary: %w", err)
		}
		summaries = append(summaries, h)
	}
	return summaries, rows.Err()
}

// TotalCost sums committed cost for a caller since the given time.
func (s *Store) TotalCost(ctx context.Context, callerID string, since time.Time) (float64, error) {
	var total float64
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(actual_cost), 0) FROM admissions WHERE caller_id = ? AND created_at >= ?`,
		callerID, since,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("total cost: %w", err)
	}
	return total, nil
}

// Purge deletes records older than the cutoff and returns the number removed.
func (s *Store) Purge(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM admissions WHERE created_at < ?`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge admissions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge admissions: %w", err)
	}
	return n, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
