package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"magpie/internal/workflow"
)

const pageColumns = `id, label, icon, page_title, page_desc, workflow_id, enabled, output_node_id,
	layout_json, mappings_json, presets_json`

// ListPages returns every page in menu order.
func (s *Store) ListPages(ctx context.Context) ([]Page, error) {
	return listPages(ctx, s.db, "")
}

// GetPage fetches one page.
func (s *Store) GetPage(ctx context.Context, id string) (Page, error) {
	pages, err := listPages(ctx, s.db, "WHERE id = ?", id)
	if err != nil {
		return Page{}, err
	}
	if len(pages) == 0 {
		return Page{}, fmt.Errorf("%w: page %q", ErrNotFound, id)
	}
	return pages[0], nil
}

// SavePage inserts or replaces one page. New pages are appended to the menu.
// Mappings are checked against the bound workflow and rejected with
// ErrInvalidMapping when they reference nodes the graph lacks.
func (s *Store) SavePage(ctx context.Context, page Page) (Page, error) {
	page = normalizePage(page)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if err := validatePage(ctx, tx, page); err != nil {
			return err
		}
		var position int
		err := tx.QueryRowContext(ctx, `SELECT position FROM pages WHERE id = ?`, page.ID).Scan(&position)
		if errors.Is(err, sql.ErrNoRows) {
			if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM pages`).Scan(&position); err != nil {
				return fmt.Errorf("next page position: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup page: %w", err)
		}
		return upsertPage(ctx, tx, page, position)
	})
	if err != nil {
		return Page{}, err
	}
	s.publish(EventPages)
	return page, nil
}

// SavePages replaces the whole menu. Order follows the slice.
func (s *Store) SavePages(ctx context.Context, pages []Page) error {
	seen := make(map[string]struct{}, len(pages))
	for i := range pages {
		pages[i] = normalizePage(pages[i])
		if _, dup := seen[pages[i].ID]; dup {
			return fmt.Errorf("%w: duplicate page id %q", ErrInvalid, pages[i].ID)
		}
		seen[pages[i].ID] = struct{}{}
	}
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for _, page := range pages {
			if err := validatePage(ctx, tx, page); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages`); err != nil {
			return fmt.Errorf("clear pages: %w", err)
		}
		for i, page := range pages {
			if err := upsertPage(ctx, tx, page, i); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(EventPages)
	return nil
}

// DeletePage removes a page from the menu.
func (s *Store) DeletePage(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete page: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: page %q", ErrNotFound, id)
	}
	s.publish(EventPages)
	return nil
}

func normalizePage(page Page) Page {
	page.ID = strings.TrimSpace(page.ID)
	page.Label = strings.TrimSpace(page.Label)
	page.WorkflowID = strings.TrimSpace(page.WorkflowID)
	page.OutputNodeID = strings.TrimSpace(page.OutputNodeID)
	if page.InputMappings == nil {
		page.InputMappings = workflow.Mappings{}
	}
	if page.Layout.Modules == nil {
		page.Layout.Modules = []LayoutModule{}
	}
	return page
}

func validatePage(ctx context.Context, q queryer, page Page) error {
	if page.ID == "" {
		return fmt.Errorf("%w: page id is required", ErrInvalid)
	}
	if page.Label == "" {
		return fmt.Errorf("%w: page %q label is required", ErrInvalid, page.ID)
	}
	for _, m := range page.Layout.Modules {
		if _, err := workflow.ParseModule(string(m.ID)); err != nil {
			return fmt.Errorf("%w: page %q layout: %w", ErrInvalid, page.ID, err)
		}
	}
	for module := range page.InputMappings {
		if _, err := workflow.ParseModule(string(module)); err != nil {
			return fmt.Errorf("%w: page %q: %w", ErrInvalidMapping, page.ID, err)
		}
	}
	if page.WorkflowID == "" {
		return nil
	}
	wf, err := getWorkflow(ctx, q, page.WorkflowID)
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: page %q references unknown workflow %q", ErrInvalidMapping, page.ID, page.WorkflowID)
	}
	if err != nil {
		return err
	}
	return validatePageAgainst(page, wf.Graph)
}

func validatePageAgainst(page Page, graph workflow.Graph) error {
	if err := workflow.ValidateMappings(graph, page.InputMappings); err != nil {
		return fmt.Errorf("%w: page %q: %w", ErrInvalidMapping, page.ID, err)
	}
	if page.OutputNodeID != "" {
		if _, ok := graph[page.OutputNodeID]; !ok {
			return fmt.Errorf("%w: page %q output node %q not found", ErrInvalidMapping, page.ID, page.OutputNodeID)
		}
	}
	return nil
}

func upsertPage(ctx context.Context, tx *sql.Tx, page Page, position int) error {
	layout, err := json.Marshal(page.Layout)
	if err != nil {
		return fmt.Errorf("encode page layout: %w", err)
	}
	mappings, err := json.Marshal(page.InputMappings)
	if err != nil {
		return fmt.Errorf("encode page mappings: %w", err)
	}
	presets := page.ModelPresets
	if presets == nil {
		presets = []ModelPreset{}
	}
	presetJSON, err := json.Marshal(presets)
	if err != nil {
		return fmt.Errorf("encode model presets: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO pages (`+pageColumns+`, position) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			label = excluded.label,
			icon = excluded.icon,
			page_title = excluded.page_title,
			page_desc = excluded.page_desc,
			workflow_id = excluded.workflow_id,
			enabled = excluded.enabled,
			output_node_id = excluded.output_node_id,
			layout_json = excluded.layout_json,
			mappings_json = excluded.mappings_json,
			presets_json = excluded.presets_json,
			position = excluded.position`,
		page.ID, page.Label, page.Icon, page.PageTitle, page.PageDesc,
		nullableString(page.WorkflowID), page.Enabled, nullableString(page.OutputNodeID),
		string(layout), string(mappings), string(presetJSON), position,
	)
	if err != nil {
		return fmt.Errorf("save page %s: %w", page.ID, err)
	}
	return nil
}

func listPages(ctx context.Context, q queryer, where string, args ...any) ([]Page, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages `+where+` ORDER BY position, id`, args...)
	if err != nil {
		return nil, fmt.Errorf("list pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var (
			page                                  Page
			workflowID, outputNodeID              sql.NullString
			layoutJSON, mappingsJSON, presetsJSON string
		)
		if err := rows.Scan(&page.ID, &page.Label, &page.Icon, &page.PageTitle, &page.PageDesc,
			&workflowID, &page.Enabled, &outputNodeID, &layoutJSON, &mappingsJSON, &presetsJSON); err != nil {
			return nil, fmt.Errorf("scan page: %w", err)
		}
		page.WorkflowID = workflowID.String
		page.OutputNodeID = outputNodeID.String
		if err := json.Unmarshal([]byte(layoutJSON), &page.Layout); err != nil {
			return nil, fmt.Errorf("decode page %s layout: %w", page.ID, err)
		}
		if err := json.Unmarshal([]byte(mappingsJSON), &page.InputMappings); err != nil {
			return nil, fmt.Errorf("decode page %s mappings: %w", page.ID, err)
		}
		if err := json.Unmarshal([]byte(presetsJSON), &page.ModelPresets); err != nil {
			return nil, fmt.Errorf("decode page %s presets: %w", page.ID, err)
		}
		if page.InputMappings == nil {
			page.InputMappings = workflow.Mappings{}
		}
		pages = append(pages, page)
	}
	return pages, rows.Err()
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
