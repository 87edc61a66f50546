package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jormio/chronicle/pkg/api"
)

// entityApplier folds one entity type's events into its projection table.
// Apply is a pure function of the event and the prior projection state; it
// must behave identically during incremental application and a replay from
// empty, or Rebuild stops being equivalent.
type entityApplier interface {
	Apply(ctx context.Context, tx *sql.Tx, ev api.Event) error

	// Reset deletes the projection rows for a workspace ahead of a replay.
	Reset(ctx context.Context, tx *sql.Tx, workspaceID string) error
}

// appliers maps entity types to their appliers. Future entity types plug in
// here; Append rejects entity types with no entry.
var appliers = map[string]entityApplier{
	api.EntityCoworker: coworkerApplier{},
}

type coworkerApplier struct{}

var _ entityApplier = coworkerApplier{}

func (a coworkerApplier) Apply(ctx context.Context, tx *sql.Tx, ev api.Event) error {
	var err error
	switch ev.Type {
	case api.EventCreated:
		err = a.applyCreated(ctx, tx, ev)
	case api.EventUpdated:
		err = a.applyUpdated(ctx, tx, ev)
	case api.EventDeleted:
		err = a.applyDeleted(ctx, tx, ev)
	default:
		err = fmt.Errorf("unknown coworker event type %q", ev.Type)
	}
	if err != nil {
		return fmt.Errorf("apply %s event for coworker %q: %w", ev.Type, ev.EntityID, err)
	}
	return nil
}

func (coworkerApplier) applyCreated(ctx context.Context, tx *sql.Tx, ev api.Event) error {
	// Any existing row, live or soft-deleted, makes a create a corrupt
	// history: ids are never reused after a soft delete.
	var n int
	err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM coworkers WHERE workspace_id = ? AND id = ?`,
		ev.WorkspaceID, ev.EntityID,
	).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return api.ErrCoworkerExists
	}

	p := decodeCoworkerPayload(ev.Payload)
	name := ""
	if p.Name != nil {
		name = *p.Name
	}

	// Row timestamps derive from the event, never the wall clock, so a
	// rebuild reproduces them exactly.
	ts := ev.Ts.UnixMilli()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO coworkers (id, workspace_id, name, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		ev.EntityID, ev.WorkspaceID, name, p.Description, ts, ts)
	return err
}

func (coworkerApplier) applyUpdated(ctx context.Context, tx *sql.Tx, ev api.Event) error {
	p := decodeCoworkerPayload(ev.Payload)

	// Merge only the fields present in the payload.
	sets := []string{"updated_at = ?"}
	args := []any{ev.Ts.UnixMilli()}
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	args = append(args, ev.EntityID, ev.WorkspaceID)

	res, err := tx.ExecContext(ctx, `
		UPDATE coworkers SET `+strings.Join(sets, ", ")+`
		WHERE id = ? AND workspace_id = ?`,
		args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Update before create means the log is corrupt.
		return api.ErrCoworkerNotFound
	}
	return nil
}

func (coworkerApplier) applyDeleted(ctx context.Context, tx *sql.Tx, ev api.Event) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE coworkers SET deleted_at = ?
		WHERE id = ? AND workspace_id = ?`,
		ev.Ts.UnixMilli(), ev.EntityID, ev.WorkspaceID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return api.ErrCoworkerNotFound
	}
	return nil
}

func (coworkerApplier) Reset(ctx context.Context, tx *sql.Tx, workspaceID string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM coworkers WHERE workspace_id = ?`, workspaceID)
	if err != nil {
		return fmt.Errorf("reset coworkers for workspace %q: %w", workspaceID, err)
	}
	return nil
}

const coworkerColumns = `id, workspace_id, name, description, created_at, updated_at, deleted_at`

// findActiveCoworker returns the coworker if it exists and is not
// soft-deleted.
func findActiveCoworker(ctx context.Context, q dbtx, workspaceID, id string) (*api.Coworker, error) {
	row := q.QueryRowContext(ctx, `
		SELECT `+coworkerColumns+`
		FROM coworkers
		WHERE workspace_id = ? AND id = ? AND deleted_at IS NULL`,
		workspaceID, id)

	c, err := scanCoworker(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, api.ErrCoworkerNotFound
		}
		return nil, err
	}
	return c, nil
}

// listActiveCoworkers returns the workspace's coworkers that are not
// soft-deleted.
func listActiveCoworkers(ctx context.Context, q dbtx, workspaceID string) ([]*api.Coworker, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+coworkerColumns+`
		FROM coworkers
		WHERE workspace_id = ? AND deleted_at IS NULL
		ORDER BY id`,
		workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*api.Coworker
	for rows.Next() {
		c, err := scanCoworker(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func scanCoworker(scan func(dest ...any) error) (*api.Coworker, error) {
	var (
		c           api.Coworker
		description sql.NullString
		createdMs   int64
		updatedMs   int64
		deletedMs   sql.NullInt64
	)
	if err := scan(&c.ID, &c.WorkspaceID, &c.Name, &description, &createdMs, &updatedMs, &deletedMs); err != nil {
		return nil, err
	}

	if description.Valid {
		d := description.String
		c.Description = &d
	}
	c.CreatedAt = time.UnixMilli(createdMs)
	c.UpdatedAt = time.UnixMilli(updatedMs)
	if deletedMs.Valid {
		d := time.UnixMilli(deletedMs.Int64)
		c.DeletedAt = &d
	}
	return &c, nil
}
