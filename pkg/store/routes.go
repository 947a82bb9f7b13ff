package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Route binds an HTTP method and path to a pipeline.
type Route struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipelineId"`
	Path       string `json:"path"`
	Method     string `json:"method"`
}

type RouteRepo struct {
	db *sql.DB
}

func (r *RouteRepo) List(ctx context.Context, limit, offset int) ([]Route, error) {
	limit, offset = page(limit, offset, 20)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, pipeline_id, path, method FROM routes ORDER BY path, method LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []Route{}
	for rows.Next() {
		var rt Route
		if err := rows.Scan(&rt.ID, &rt.PipelineID, &rt.Path, &rt.Method); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		routes = append(routes, rt)
	}
	return routes, rows.Err()
}

func (r *RouteRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM routes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count routes: %w", err)
	}
	return n, nil
}

// Get returns the route, or nil if it does not exist.
func (r *RouteRepo) Get(ctx context.Context, id string) (*Route, error) {
	var rt Route
	err := r.db.QueryRowContext(ctx, `
		SELECT id, pipeline_id, path, method FROM routes WHERE id = ?
	`, id).Scan(&rt.ID, &rt.PipelineID, &rt.Path, &rt.Method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return &rt, nil
}

// Match finds the route bound to method and path, or nil.
func (r *RouteRepo) Match(ctx context.Context, method, path string) (*Route, error) {
	var rt Route
	err := r.db.QueryRowContext(ctx, `
		SELECT id, pipeline_id, path, method FROM routes WHERE method = ? AND path = ?
	`, method, path).Scan(&rt.ID, &rt.PipelineID, &rt.Path, &rt.Method)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to match route: %w", err)
	}
	return &rt, nil
}

func (r *RouteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete route: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: route %s", ErrNotFound, id)
	}
	return nil
}
