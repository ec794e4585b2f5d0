package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLRecorder stores history in the catalog database's history table.
type SQLRecorder struct {
	db    *sql.DB
	limit int
}

// NewSQLRecorder wraps an open database that already carries the history table.
func NewSQLRecorder(db *sql.DB, limit int) *SQLRecorder {
	return &SQLRecorder{db: db, limit: normalizeLimit(limit)}
}

// Record inserts r and trims the table in one transaction so the cap holds
// with concurrent writers.
func (s *SQLRecorder) Record(ctx context.Context, r Record) error {
	r, err := normalize(r)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin history tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (record_id, image_url, text_output, prompt, created_at, width, height, menu_id)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ImageURL, r.TextOutput, r.Prompt, r.Timestamp.UnixMilli(), r.Width, r.Height, r.MenuID,
	); err != nil {
		return fmt.Errorf("insert history: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM history WHERE seq NOT IN (SELECT seq FROM history ORDER BY seq DESC LIMIT ?)`,
		s.limit,
	); err != nil {
		return fmt.Errorf("trim history: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// List returns up to the configured limit, newest first.
func (s *SQLRecorder) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record_id, image_url, text_output, prompt, created_at, width, height, menu_id
         FROM history ORDER BY seq DESC LIMIT ?`,
		s.limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0, s.limit)
	for rows.Next() {
		var (
			r       Record
			created int64
		)
		if err := rows.Scan(&r.ID, &r.ImageURL, &r.TextOutput, &r.Prompt, &created, &r.Width, &r.Height, &r.MenuID); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		r.Timestamp = time.UnixMilli(created).UTC()
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return records, nil
}

// Clear removes every record.
func (s *SQLRecorder) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}
	return nil
}
