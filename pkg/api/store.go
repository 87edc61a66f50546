package api

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var (
	// ErrCoworkerExists is returned when a "created" event targets an id
	// that already has a row, live or soft-deleted. Re-creating an id
	// after a soft delete is not allowed.
	ErrCoworkerExists = errors.New("coworker already exists")

	// ErrCoworkerNotFound is returned when an update or delete targets an
	// id with no row, or a read finds no active row.
	ErrCoworkerNotFound = errors.New("coworker not found")

	// ErrUnknownEntityType is returned by Append when no applier is
	// registered for the requested entity type. Rejecting the append keeps
	// the log free of events nothing can fold.
	ErrUnknownEntityType = errors.New("unknown entity type")

	// ErrNotAbsolutePath is returned by Open for relative database paths.
	ErrNotAbsolutePath = errors.New("database path is not absolute")
)

// Store is a per-workspace event store: an append-only log plus materialized
// projections kept in step with it. All writes go through Append; nothing
// else may touch the underlying tables.
type Store interface {
	// Append records one mutation. It allocates the next sequence number
	// for the workspace, persists the event and folds it into the
	// projection in a single transaction: either both land or neither.
	Append(ctx context.Context, req AppendRequest) (Event, error)

	// ListByEntity returns one entity's full history in ascending Seq
	// order, including any deletion event.
	ListByEntity(ctx context.Context, workspaceID, entityType, entityID string) ([]Event, error)

	// ListByWorkspace returns a workspace's full history in ascending Seq
	// order.
	ListByWorkspace(ctx context.Context, workspaceID string) ([]Event, error)

	// ListByWorkspaceSince returns events with Seq > sinceSeq in ascending
	// order, for incremental catch-up.
	ListByWorkspaceSince(ctx context.Context, workspaceID string, sinceSeq int64) ([]Event, error)

	// FindActiveCoworker returns the coworker if it exists and is not
	// soft-deleted; otherwise ErrCoworkerNotFound.
	FindActiveCoworker(ctx context.Context, workspaceID, id string) (*Coworker, error)

	// ListActiveCoworkers returns all coworkers in the workspace that are
	// not soft-deleted.
	ListActiveCoworkers(ctx context.Context, workspaceID string) ([]*Coworker, error)

	// Rebuild discards the workspace's projection rows and replays its
	// entire event history in Seq order, inside one transaction. The
	// result is identical to the state incremental application produced.
	Rebuild(ctx context.Context, workspaceID string) error

	// Close releases the store. For durable stores this checkpoints the
	// write-ahead log back into the database file first; a checkpoint
	// failure is logged but does not block the close.
	Close() error
}

// Options configures an opened store. The zero value is usable.
type Options struct {
	// Logger receives operational logs (migrations, checkpoint failures).
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Observer receives store lifecycle callbacks. Defaults to
	// NoopObserver.
	Observer Observer

	// Clock supplies event timestamps. Defaults to time.Now. Tests may
	// pin it.
	Clock func() time.Time
}
