package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound indicates an unknown pipeline, route or history id.
	ErrNotFound = errors.New("not found")

	// ErrRouteConflict indicates a (method, path) pair already bound to a pipeline.
	ErrRouteConflict = errors.New("route already registered")
)

// Store manages the SQLite connection and schema.
type Store struct {
	db *sql.DB
}

// NewStore initializes the SQLite database connection.
// It enables WAL mode for concurrency and durability.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite db: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Routes and history cascade with their pipeline.
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &Store{db: db}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("schema migration failed: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Nodes() *NodeRepo { return &NodeRepo{db: s.db} }

func (s *Store) Pipelines() *PipelineRepo { return &PipelineRepo{db: s.db} }

func (s *Store) Routes() *RouteRepo { return &RouteRepo{db: s.db} }

func (s *Store) History() *HistoryRepo { return &HistoryRepo{db: s.db} }

func (s *Store) Logs() *LogRepo { return &LogRepo{db: s.db} }

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS nodes (
		id TEXT PRIMARY KEY,
		is_internal INTEGER NOT NULL DEFAULT 0,
		name TEXT NOT NULL,
		script TEXT NOT NULL DEFAULT '',
		-- JSON arrays of port names, order preserved
		inputs JSON NOT NULL DEFAULT '[]',
		outputs JSON NOT NULL DEFAULT '[]'
	);
	CREATE INDEX IF NOT EXISTS idx_nodes_name ON nodes(name);

	CREATE TABLE IF NOT EXISTS pipelines (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		-- {nodes, edges} of the wire document
		content JSON NOT NULL,
		method TEXT NOT NULL DEFAULT 'GET',
		url TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_pipelines_name ON pipelines(name);

	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		pipeline_id TEXT NOT NULL REFERENCES pipelines(id) ON DELETE CASCADE,
		path TEXT NOT NULL,
		method TEXT NOT NULL,
		UNIQUE(path, method)
	);

	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		pipeline_id TEXT NOT NULL REFERENCES pipelines(id) ON DELETE CASCADE,
		status TEXT NOT NULL,
		start_at DATETIME NOT NULL,
		end_at DATETIME,
		error TEXT NOT NULL DEFAULT '',
		result JSON
	);
	CREATE INDEX IF NOT EXISTS idx_history_pipeline ON history(pipeline_id, start_at);

	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		level TEXT NOT NULL,
		category TEXT NOT NULL,
		message TEXT NOT NULL,
		create_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_logs_create_at ON logs(create_at);
	`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// page normalizes pagination arguments.
func page(limit, offset, defaultLimit int) (int, int) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
