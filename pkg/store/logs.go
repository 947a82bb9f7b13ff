package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// LogEntry is one persisted operational log line.
type LogEntry struct {
	ID       int64     `json:"id"`
	Level    string    `json:"level"`
	Category string    `json:"category"`
	Message  string    `json:"message"`
	CreateAt time.Time `json:"createAt"`
}

type LogRepo struct {
	db *sql.DB
}

// Append stores e. A zero CreateAt is set to now.
func (r *LogRepo) Append(ctx context.Context, e LogEntry) error {
	if e.CreateAt.IsZero() {
		e.CreateAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO logs (level, category, message, create_at) VALUES (?, ?, ?, ?)
	`, e.Level, e.Category, e.Message, e.CreateAt)
	if err != nil {
		return fmt.Errorf("failed to append log: %w", err)
	}
	return nil
}

// List returns a page of logs, newest first.
func (r *LogRepo) List(ctx context.Context, limit, offset int) ([]LogEntry, error) {
	limit, offset = page(limit, offset, 10)
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, level, category, message, create_at FROM logs
		ORDER BY create_at DESC, id DESC LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	entries := []LogEntry{}
	for rows.Next() {
		var e LogEntry
		if err := rows.Scan(&e.ID, &e.Level, &e.Category, &e.Message, &e.CreateAt); err != nil {
			return nil, fmt.Errorf("failed to scan log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *LogRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return n, nil
}
