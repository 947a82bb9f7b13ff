package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/rmax-ai/lambdanodes/pkg/catalog"
)

// NodeRepo is the durable node catalog. It implements catalog.Catalog and
// catalog.Seeder.
type NodeRepo struct {
	db *sql.DB
}

const nodeColumns = `id, is_internal, name, script, inputs, outputs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (catalog.NodeDefinition, error) {
	var (
		def             catalog.NodeDefinition
		inputs, outputs string
	)
	if err := row.Scan(&def.ID, &def.IsInternal, &def.Name, &def.Script, &inputs, &outputs); err != nil {
		return catalog.NodeDefinition{}, err
	}
	if err := json.Unmarshal([]byte(inputs), &def.Inputs); err != nil {
		return catalog.NodeDefinition{}, fmt.Errorf("failed to decode inputs of node %s: %w", def.ID, err)
	}
	if err := json.Unmarshal([]byte(outputs), &def.Outputs); err != nil {
		return catalog.NodeDefinition{}, fmt.Errorf("failed to decode outputs of node %s: %w", def.ID, err)
	}
	return def.Clone(), nil
}

func encodePorts(d catalog.Draft) (string, string, error) {
	def := d.Apply(catalog.NodeDefinition{})
	in, err := json.Marshal(def.Inputs)
	if err != nil {
		return "", "", err
	}
	out, err := json.Marshal(def.Outputs)
	if err != nil {
		return "", "", err
	}
	return string(in), string(out), nil
}

// List returns every definition ordered by name, then id.
func (r *NodeRepo) List(ctx context.Context) ([]catalog.NodeDefinition, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes ORDER BY name, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	defs := []catalog.NodeDefinition{}
	for rows.Next() {
		def, err := scanNode(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (r *NodeRepo) Get(ctx context.Context, id string) (catalog.NodeDefinition, error) {
	def, err := scanNode(r.db.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.NodeDefinition{}, catalog.NotFound(id)
		}
		return catalog.NodeDefinition{}, fmt.Errorf("failed to get node: %w", err)
	}
	return def, nil
}

func (r *NodeRepo) Create(ctx context.Context, d catalog.Draft) (catalog.NodeDefinition, error) {
	if err := catalog.ValidateDraft(d); err != nil {
		return catalog.NodeDefinition{}, err
	}
	return r.insert(ctx, r.db, d, false)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *NodeRepo) insert(ctx context.Context, db execer, d catalog.Draft, internal bool) (catalog.NodeDefinition, error) {
	in, out, err := encodePorts(d)
	if err != nil {
		return catalog.NodeDefinition{}, fmt.Errorf("failed to encode ports: %w", err)
	}

	def := d.Apply(catalog.NodeDefinition{ID: uuid.NewString(), IsInternal: internal})
	_, err = db.ExecContext(ctx, `
		INSERT INTO nodes (id, is_internal, name, script, inputs, outputs)
		VALUES (?, ?, ?, ?, ?, ?)
	`, def.ID, def.IsInternal, def.Name, def.Script, in, out)
	if err != nil {
		return catalog.NodeDefinition{}, fmt.Errorf("failed to insert node: %w", err)
	}
	return def, nil
}

func (r *NodeRepo) Update(ctx context.Context, id string, d catalog.Draft) (catalog.NodeDefinition, error) {
	current, err := r.Get(ctx, id)
	if err != nil {
		return catalog.NodeDefinition{}, err
	}
	if current.IsInternal {
		return catalog.NodeDefinition{}, catalog.Forbidden(current)
	}
	if err := catalog.ValidateDraft(d); err != nil {
		return catalog.NodeDefinition{}, err
	}

	in, out, err := encodePorts(d)
	if err != nil {
		return catalog.NodeDefinition{}, fmt.Errorf("failed to encode ports: %w", err)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE nodes SET name = ?, script = ?, inputs = ?, outputs = ?
		WHERE id = ? AND is_internal = 0
	`, d.Name, d.Script, in, out, id)
	if err != nil {
		return catalog.NodeDefinition{}, fmt.Errorf("failed to update node: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return catalog.NodeDefinition{}, catalog.NotFound(id)
	}
	return d.Apply(current), nil
}

// Delete removes a user definition. Definitions still placed in a stored
// pipeline are refused with catalog.ErrInUse.
func (r *NodeRepo) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	current, err := scanNode(tx.QueryRowContext(ctx, `SELECT `+nodeColumns+` FROM nodes WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.NotFound(id)
		}
		return fmt.Errorf("failed to get node: %w", err)
	}
	if current.IsInternal {
		return catalog.Forbidden(current)
	}

	var uses int
	err = tx.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT p.id)
		FROM pipelines p, json_each(p.content, '$.nodes') n
		WHERE json_extract(n.value, '$.data.definitionId') = ?
	`, id).Scan(&uses)
	if err != nil {
		return fmt.Errorf("failed to check node usage: %w", err)
	}
	if uses > 0 {
		return fmt.Errorf("%w: %s is placed in %d pipeline(s)", catalog.ErrInUse, current.Name, uses)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete node: %w", err)
	}
	return tx.Commit()
}

// SeedInternal upserts internal definitions by name.
func (r *NodeRepo) SeedInternal(ctx context.Context, drafts []catalog.Draft) ([]catalog.NodeDefinition, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	seeded := make([]catalog.NodeDefinition, 0, len(drafts))
	for _, d := range drafts {
		if err := catalog.ValidateDraft(d); err != nil {
			return nil, err
		}

		var id string
		err := tx.QueryRowContext(ctx, `SELECT id FROM nodes WHERE is_internal = 1 AND name = ?`, d.Name).Scan(&id)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			def, err := r.insert(ctx, tx, d, true)
			if err != nil {
				return nil, err
			}
			seeded = append(seeded, def)
		case err != nil:
			return nil, fmt.Errorf("failed to look up internal node %s: %w", d.Name, err)
		default:
			in, out, err := encodePorts(d)
			if err != nil {
				return nil, fmt.Errorf("failed to encode ports: %w", err)
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE nodes SET script = ?, inputs = ?, outputs = ? WHERE id = ?
			`, d.Script, in, out, id); err != nil {
				return nil, fmt.Errorf("failed to update internal node %s: %w", d.Name, err)
			}
			seeded = append(seeded, d.Apply(catalog.NodeDefinition{ID: id, IsInternal: true}))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit seed: %w", err)
	}
	return seeded, nil
}
