package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// GetSettings returns the site settings.
func (s *Store) GetSettings(ctx context.Context) (Settings, error) {
	var doc string
	if err := s.db.QueryRowContext(ctx, `SELECT doc_json FROM site_settings WHERE id = 1`).Scan(&doc); err != nil {
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}
	var settings Settings
	if err := json.Unmarshal([]byte(doc), &settings); err != nil {
		return Settings{}, fmt.Errorf("decode settings: %w", err)
	}
	if settings.Departments == nil {
		settings.Departments = []string{}
	}
	return settings, nil
}

// SaveSettings replaces the site settings.
func (s *Store) SaveSettings(ctx context.Context, settings Settings) error {
	settings.Title = strings.TrimSpace(settings.Title)
	if settings.Title == "" {
		return fmt.Errorf("%w: site title is required", ErrInvalid)
	}
	depts := make([]string, 0, len(settings.Departments))
	seen := make(map[string]struct{}, len(settings.Departments))
	for _, d := range settings.Departments {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}
		depts = append(depts, d)
	}
	settings.Departments = depts

	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO site_settings (id, doc_json) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET doc_json = excluded.doc_json`, string(doc)); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	s.publish(EventSettings)
	return nil
}
