package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ListBackends returns every configured backend in display order.
func (s *Store) ListBackends(ctx context.Context) ([]Backend, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, url, allowed_departments_json, enabled FROM backends ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("list backends: %w", err)
	}
	defer rows.Close()

	var out []Backend
	for rows.Next() {
		var (
			b     Backend
			depts string
		)
		if err := rows.Scan(&b.ID, &b.Name, &b.URL, &depts, &b.Enabled); err != nil {
			return nil, fmt.Errorf("scan backend: %w", err)
		}
		if err := json.Unmarshal([]byte(depts), &b.AllowedDepartments); err != nil {
			return nil, fmt.Errorf("decode backend %s departments: %w", b.ID, err)
		}
		if b.AllowedDepartments == nil {
			b.AllowedDepartments = []string{}
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveBackend inserts or updates one backend. An empty ID is generated.
func (s *Store) SaveBackend(ctx context.Context, b Backend) (Backend, error) {
	b, err := normalizeBackend(b)
	if err != nil {
		return Backend{}, err
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var position int
		err := tx.QueryRowContext(ctx, `SELECT position FROM backends WHERE id = ?`, b.ID).Scan(&position)
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM backends`).Scan(&position); err != nil {
				return fmt.Errorf("next backend position: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup backend: %w", err)
		}
		return upsertBackend(ctx, tx, b, position)
	})
	if err != nil {
		return Backend{}, err
	}
	s.publish(EventBackends)
	return b, nil
}

// SaveBackends replaces the backend list.
func (s *Store) SaveBackends(ctx context.Context, backends []Backend) error {
	seen := make(map[string]struct{}, len(backends))
	for i := range backends {
		b, err := normalizeBackend(backends[i])
		if err != nil {
			return err
		}
		if _, dup := seen[b.ID]; dup {
			return fmt.Errorf("%w: duplicate backend id %q", ErrInvalid, b.ID)
		}
		seen[b.ID] = struct{}{}
		backends[i] = b
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM backends`); err != nil {
			return fmt.Errorf("clear backends: %w", err)
		}
		for i, b := range backends {
			if err := upsertBackend(ctx, tx, b, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(EventBackends)
	return nil
}

// DeleteBackend removes a backend.
func (s *Store) DeleteBackend(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backends WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backend: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: backend %q", ErrNotFound, id)
	}
	s.publish(EventBackends)
	return nil
}

func normalizeBackend(b Backend) (Backend, error) {
	b.ID = strings.TrimSpace(b.ID)
	if b.ID == "" {
		b.ID = "srv_" + uuid.NewString()
	}
	b.Name = strings.TrimSpace(b.Name)
	if b.Name == "" {
		return Backend{}, fmt.Errorf("%w: backend %q name is required", ErrInvalid, b.ID)
	}
	b.URL = strings.TrimRight(strings.TrimSpace(b.URL), "/")
	depts := make([]string, 0, len(b.AllowedDepartments))
	for _, d := range b.AllowedDepartments {
		if d = strings.TrimSpace(d); d != "" {
			depts = append(depts, d)
		}
	}
	b.AllowedDepartments = depts
	return b, nil
}

func upsertBackend(ctx context.Context, tx *sql.Tx, b Backend, position int) error {
	depts, err := json.Marshal(b.AllowedDepartments)
	if err != nil {
		return fmt.Errorf("encode departments: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO backends (id, position, name, url, allowed_departments_json, enabled)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			position = excluded.position,
			name = excluded.name,
			url = excluded.url,
			allowed_departments_json = excluded.allowed_departments_json,
			enabled = excluded.enabled`,
		b.ID, position, b.Name, b.URL, string(depts), b.Enabled,
	)
	if err != nil {
		return fmt.Errorf("save backend %s: %w", b.ID, err)
	}
	return nil
}
