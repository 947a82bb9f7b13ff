package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the state of one pipeline run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// HistoryEntry records one run of a stored pipeline.
type HistoryEntry struct {
	ID         string          `json:"id"`
	PipelineID string          `json:"pipelineId"`
	Status     RunStatus       `json:"status"`
	StartAt    time.Time       `json:"startAt"`
	EndAt      *time.Time      `json:"endAt,omitempty"`
	Error      string          `json:"error,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
}

// HistoryFilter selects a page of history, newest first.
type HistoryFilter struct {
	PipelineID string
	Limit      int
	Offset     int
}

// HistoryRepo is written by whatever executes pipelines and read by the API.
type HistoryRepo struct {
	db *sql.DB
}

const historyColumns = `id, pipeline_id, status, start_at, end_at, error, result`

func scanHistory(row rowScanner) (HistoryEntry, error) {
	var (
		h      HistoryEntry
		endAt  sql.NullTime
		result sql.NullString
	)
	if err := row.Scan(&h.ID, &h.PipelineID, &h.Status, &h.StartAt, &endAt, &h.Error, &result); err != nil {
		return HistoryEntry{}, err
	}
	if endAt.Valid {
		t := endAt.Time
		h.EndAt = &t
	}
	if result.Valid && result.String != "" {
		h.Result = json.RawMessage(result.String)
	}
	return h, nil
}

// Start opens a running entry for pipelineID.
func (r *HistoryRepo) Start(ctx context.Context, pipelineID string) (HistoryEntry, error) {
	h := HistoryEntry{
		ID:         uuid.NewString(),
		PipelineID: pipelineID,
		Status:     RunRunning,
		StartAt:    time.Now().UTC(),
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO history (id, pipeline_id, status, start_at) VALUES (?, ?, ?, ?)
	`, h.ID, h.PipelineID, h.Status, h.StartAt)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("failed to start history entry: %w", err)
	}
	return h, nil
}

// Succeed closes a running entry with its result.
func (r *HistoryRepo) Succeed(ctx context.Context, id string, result json.RawMessage) error {
	var res any
	if len(result) > 0 {
		res = string(result)
	}
	return r.finish(ctx, id, RunSuccess, "", res)
}

// Fail closes a running entry with an error message.
func (r *HistoryRepo) Fail(ctx context.Context, id string, msg string) error {
	return r.finish(ctx, id, RunError, msg, nil)
}

func (r *HistoryRepo) finish(ctx context.Context, id string, status RunStatus, msg string, result any) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE history SET status = ?, end_at = ?, error = ?, result = ?
		WHERE id = ? AND status = ?
	`, status, time.Now().UTC(), msg, result, id, RunRunning)
	if err != nil {
		return fmt.Errorf("failed to finish history entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: running history entry %s", ErrNotFound, id)
	}
	return nil
}

// Get returns the entry, or nil if it does not exist.
func (r *HistoryRepo) Get(ctx context.Context, id string) (*HistoryEntry, error) {
	h, err := scanHistory(r.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get history entry: %w", err)
	}
	return &h, nil
}

func (r *HistoryRepo) List(ctx context.Context, f HistoryFilter) ([]HistoryEntry, error) {
	limit, offset := page(f.Limit, f.Offset, 10)

	query := `SELECT ` + historyColumns + ` FROM history`
	args := []any{}
	if f.PipelineID != "" {
		query += ` WHERE pipeline_id = ?`
		args = append(args, f.PipelineID)
	}
	query += ` ORDER BY start_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []HistoryEntry{}
	for rows.Next() {
		h, err := scanHistory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func (r *HistoryRepo) Count(ctx context.Context, pipelineID string) (int, error) {
	query := `SELECT COUNT(*) FROM history`
	args := []any{}
	if pipelineID != "" {
		query += ` WHERE pipeline_id = ?`
		args = append(args, pipelineID)
	}
	var n int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count history: %w", err)
	}
	return n, nil
}
