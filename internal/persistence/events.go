package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jormio/chronicle/pkg/api"
)

// dbtx is the subset of *sql.DB and *sql.Tx the queries here run against.
// Reads that must see uncommitted state (sequence allocation, rebuild
// replay) are handed the enclosing transaction; plain reads get the pool.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const eventColumns = `id, workspace_id, seq, ts, actor, entity_type, entity_id, event_type, payload`

// nextSeq returns the next unused sequence number for a workspace. It must
// run inside the same transaction as the insert so the number is computed
// and reserved atomically; two concurrent appends can then never be handed
// the same seq.
func nextSeq(ctx context.Context, tx *sql.Tx, workspaceID string) (int64, error) {
	var next int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq) + 1, 0) FROM events WHERE workspace_id = ?`,
		workspaceID,
	).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("allocate seq for workspace %q: %w", workspaceID, err)
	}
	return next, nil
}

// insertEvent appends ev inside tx. The UNIQUE(workspace_id, seq)
// constraint turns a double-allocated sequence number into a hard error
// here instead of silent disorder.
func insertEvent(ctx context.Context, tx *sql.Tx, ev api.Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO events (`+eventColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.WorkspaceID,
		ev.Seq,
		ev.Ts.UnixMilli(),
		ev.Actor,
		ev.EntityType,
		ev.EntityID,
		string(ev.Type),
		string(ev.Payload),
	)
	if err != nil {
		return fmt.Errorf("append event %s/%d: %w", ev.WorkspaceID, ev.Seq, err)
	}
	return nil
}

// listByEntity returns one entity's history in ascending seq order.
func listByEntity(ctx context.Context, q dbtx, workspaceID, entityType, entityID string) ([]api.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE workspace_id = ? AND entity_type = ? AND entity_id = ?
		ORDER BY seq ASC`,
		workspaceID, entityType, entityID)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

// listByWorkspace returns a workspace's history in ascending seq order.
// sinceSeq is an exclusive lower bound; pass -1 for the full history.
func listByWorkspace(ctx context.Context, q dbtx, workspaceID string, sinceSeq int64) ([]api.Event, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM events
		WHERE workspace_id = ? AND seq > ?
		ORDER BY seq ASC`,
		workspaceID, sinceSeq)
	if err != nil {
		return nil, err
	}
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]api.Event, error) {
	defer rows.Close()

	var out []api.Event
	for rows.Next() {
		var (
			ev      api.Event
			tsMs    int64
			typ     string
			payload string
		)
		if err := rows.Scan(
			&ev.ID,
			&ev.WorkspaceID,
			&ev.Seq,
			&tsMs,
			&ev.Actor,
			&ev.EntityType,
			&ev.EntityID,
			&typ,
			&payload,
		); err != nil {
			return nil, err
		}
		ev.Ts = time.UnixMilli(tsMs)
		ev.Type = api.EventType(typ)
		ev.Payload = json.RawMessage(payload)
		out = append(out, ev)
	}
	return out, rows.Err()
}
