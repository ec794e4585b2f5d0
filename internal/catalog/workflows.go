package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"magpie/internal/workflow"
)

// WorkflowInput carries the fields accepted when importing a workflow.
type WorkflowInput struct {
	ID          string
	Name        string
	Description string
	// Graph is the raw API-format export.
	Graph []byte
}

// SaveWorkflow parses and stores a new workflow. An empty ID is generated.
func (s *Store) SaveWorkflow(ctx context.Context, in WorkflowInput) (Workflow, error) {
	graph, err := workflow.Parse(in.Graph)
	if err != nil {
		return Workflow{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Workflow{}, fmt.Errorf("%w: workflow name is required", ErrInvalid)
	}
	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = "wf_" + uuid.NewString()
	}
	encoded, err := json.Marshal(graph)
	if err != nil {
		return Workflow{}, fmt.Errorf("encode workflow graph: %w", err)
	}

	created := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO workflows (id, name, description, graph_json, created_at) VALUES (?, ?, ?, ?, ?)`,
		id, name, strings.TrimSpace(in.Description), string(encoded), created.UnixMilli(),
	)
	if err != nil {
		if isConstraintError(err) {
			return Workflow{}, fmt.Errorf("%w: workflow %q", ErrConflict, id)
		}
		return Workflow{}, fmt.Errorf("insert workflow: %w", err)
	}
	s.publish(EventWorkflows)
	return Workflow{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Graph:       graph,
		CreatedAt:   time.UnixMilli(created.UnixMilli()).UTC(),
	}, nil
}

// UpdateWorkflow replaces the name, description and optionally the graph of
// an existing workflow. A nil Graph keeps the stored one. Replacing the graph
// is rejected when a bound page's mappings no longer resolve.
func (s *Store) UpdateWorkflow(ctx context.Context, in WorkflowInput) (Workflow, error) {
	var updated Workflow
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getWorkflow(ctx, tx, in.ID)
		if err != nil {
			return err
		}
		if name := strings.TrimSpace(in.Name); name != "" {
			current.Name = name
		}
		current.Description = strings.TrimSpace(in.Description)
		if in.Graph != nil {
			graph, err := workflow.Parse(in.Graph)
			if err != nil {
				return fmt.Errorf("%w: %w", ErrInvalid, err)
			}
			pages, err := listPages(ctx, tx, "WHERE workflow_id = ?", current.ID)
			if err != nil {
				return err
			}
			for _, page := range pages {
				if err := validatePageAgainst(page, graph); err != nil {
					return err
				}
			}
			current.Graph = graph
		}
		encoded, err := json.Marshal(current.Graph)
		if err != nil {
			return fmt.Errorf("encode workflow graph: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE workflows SET name = ?, description = ?, graph_json = ? WHERE id = ?`,
			current.Name, current.Description, string(encoded), current.ID,
		); err != nil {
			return fmt.Errorf("update workflow: %w", err)
		}
		updated = current
		return nil
	})
	if err != nil {
		return Workflow{}, err
	}
	s.publish(EventWorkflows)
	return updated, nil
}

// DeleteWorkflow removes a workflow. Pages bound to it are left unbound.
func (s *Store) DeleteWorkflow(ctx context.Context, id string) error {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE pages SET workflow_id = NULL WHERE workflow_id = ?`, id); err != nil {
			return fmt.Errorf("unbind pages: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM workflows WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("delete workflow: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: workflow %q", ErrNotFound, id)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.publish(EventWorkflows, EventPages)
	return nil
}

// GetWorkflow fetches a workflow with its graph.
func (s *Store) GetWorkflow(ctx context.Context, id string) (Workflow, error) {
	return getWorkflow(ctx, s.db, id)
}

// ListWorkflows returns workflow summaries, newest first.
func (s *Store) ListWorkflows(ctx context.Context) ([]WorkflowSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, graph_json, created_at FROM workflows ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("list workflows: %w", err)
	}
	defer rows.Close()

	var out []WorkflowSummary
	for rows.Next() {
		wf, err := scanWorkflow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			NodeCount:   len(wf.Graph),
			CreatedAt:   wf.CreatedAt,
		})
	}
	return out, rows.Err()
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func getWorkflow(ctx context.Context, q queryer, id string) (Workflow, error) {
	row := q.QueryRowContext(ctx,
		`SELECT id, name, description, graph_json, created_at FROM workflows WHERE id = ?`, id)
	wf, err := scanWorkflow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Workflow{}, fmt.Errorf("%w: workflow %q", ErrNotFound, id)
	}
	return wf, err
}

func scanWorkflow(row rowScanner) (Workflow, error) {
	var (
		wf        Workflow
		graphJSON string
		created   int64
	)
	if err := row.Scan(&wf.ID, &wf.Name, &wf.Description, &graphJSON, &created); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Workflow{}, err
		}
		return Workflow{}, fmt.Errorf("scan workflow: %w", err)
	}
	if err := json.Unmarshal([]byte(graphJSON), &wf.Graph); err != nil {
		return Workflow{}, fmt.Errorf("decode workflow %s graph: %w", wf.ID, err)
	}
	wf.CreatedAt = time.UnixMilli(created).UTC()
	return wf, nil
}

func isConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
