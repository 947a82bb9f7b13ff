package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rmax-ai/lambdanodes/pkg/pipeline"
)

// PipelineRepo persists submitted pipelines and their trigger routes.
type PipelineRepo struct {
	db *sql.DB
}

const pipelineColumns = `id, name, content, method, url`

func scanPipeline(row rowScanner) (pipeline.Record, error) {
	var (
		rec     pipeline.Record
		content string
	)
	if err := row.Scan(&rec.ID, &rec.Name, &content, &rec.Method, &rec.URL); err != nil {
		return pipeline.Record{}, err
	}
	rec.Content = json.RawMessage(content)
	return rec, nil
}

// Create stores doc and registers its route when trigger.URL is set. A route
// that is already taken fails with ErrRouteConflict and nothing is stored.
func (r *PipelineRepo) Create(ctx context.Context, doc pipeline.Document, trigger pipeline.Trigger) (pipeline.Record, error) {
	rec, err := newRecord(uuid.NewString(), doc, trigger)
	if err != nil {
		return pipeline.Record{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO pipelines (id, name, content, method, url)
		VALUES (?, ?, ?, ?, ?)
	`, rec.ID, rec.Name, string(rec.Content), rec.Method, rec.URL)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to insert pipeline: %w", err)
	}
	if err := registerRoute(ctx, tx, rec); err != nil {
		return pipeline.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to commit pipeline: %w", err)
	}
	return rec, nil
}

// Update replaces the document and trigger of an existing pipeline.
func (r *PipelineRepo) Update(ctx context.Context, id string, doc pipeline.Document, trigger pipeline.Trigger) (pipeline.Record, error) {
	rec, err := newRecord(id, doc, trigger)
	if err != nil {
		return pipeline.Record{}, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE pipelines SET name = ?, content = ?, method = ?, url = ? WHERE id = ?
	`, rec.Name, string(rec.Content), rec.Method, rec.URL, id)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to update pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pipeline.Record{}, fmt.Errorf("%w: pipeline %s", ErrNotFound, id)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE pipeline_id = ?`, id); err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to clear routes: %w", err)
	}
	if err := registerRoute(ctx, tx, rec); err != nil {
		return pipeline.Record{}, err
	}

	if err := tx.Commit(); err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to commit pipeline: %w", err)
	}
	return rec, nil
}

// ReplaceContent rewrites only the graph of a stored pipeline. Used after
// reconciliation, which never touches the trigger.
func (r *PipelineRepo) ReplaceContent(ctx context.Context, id string, doc pipeline.Document) error {
	content, err := pipeline.EncodeContent(doc)
	if err != nil {
		return fmt.Errorf("failed to encode content: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `UPDATE pipelines SET content = ? WHERE id = ?`, string(content), id)
	if err != nil {
		return fmt.Errorf("failed to update pipeline content: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pipeline %s", ErrNotFound, id)
	}
	return nil
}

// Get returns the pipeline, or nil if it does not exist.
func (r *PipelineRepo) Get(ctx context.Context, id string) (*pipeline.Record, error) {
	rec, err := scanPipeline(r.db.QueryRowContext(ctx, `SELECT `+pipelineColumns+` FROM pipelines WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get pipeline: %w", err)
	}
	return &rec, nil
}

// List returns a page of pipelines ordered by name.
func (r *PipelineRepo) List(ctx context.Context, limit, offset int) ([]pipeline.Record, error) {
	limit, offset = page(limit, offset, 10)
	return r.query(ctx, `SELECT `+pipelineColumns+` FROM pipelines ORDER BY name, id LIMIT ? OFFSET ?`, limit, offset)
}

func (r *PipelineRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipelines`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count pipelines: %w", err)
	}
	return n, nil
}

// Referencing returns every pipeline that places an instance of definitionID.
func (r *PipelineRepo) Referencing(ctx context.Context, definitionID string) ([]pipeline.Record, error) {
	return r.query(ctx, `
		SELECT `+pipelineColumns+` FROM pipelines
		WHERE id IN (
			SELECT p.id FROM pipelines p, json_each(p.content, '$.nodes') n
			WHERE json_extract(n.value, '$.data.definitionId') = ?
		)
		ORDER BY name, id
	`, definitionID)
}

// Delete removes the pipeline together with its routes and history.
func (r *PipelineRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM pipelines WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete pipeline: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: pipeline %s", ErrNotFound, id)
	}
	return nil
}

func (r *PipelineRepo) query(ctx context.Context, query string, args ...any) ([]pipeline.Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipelines: %w", err)
	}
	defer rows.Close()

	recs := []pipeline.Record{}
	for rows.Next() {
		rec, err := scanPipeline(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan pipeline: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func newRecord(id string, doc pipeline.Document, trigger pipeline.Trigger) (pipeline.Record, error) {
	trigger, err := trigger.Normalize()
	if err != nil {
		return pipeline.Record{}, err
	}
	content, err := pipeline.EncodeContent(doc)
	if err != nil {
		return pipeline.Record{}, fmt.Errorf("failed to encode content: %w", err)
	}
	return pipeline.Record{
		ID:      id,
		Name:    doc.Name,
		Content: content,
		Method:  trigger.Method,
		URL:     trigger.URL,
	}, nil
}

func registerRoute(ctx context.Context, tx *sql.Tx, rec pipeline.Record) error {
	if rec.URL == "" {
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO routes (id, pipeline_id, path, method) VALUES (?, ?, ?, ?)
	`, uuid.NewString(), rec.ID, rec.URL, rec.Method)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s %s", ErrRouteConflict, rec.Method, rec.URL)
		}
		return fmt.Errorf("failed to register route: %w", err)
	}
	return nil
}
