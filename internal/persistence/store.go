package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/jormio/chronicle/pkg/api"
)

// SQLiteStore is an api.Store backed by one SQLite file per workspace
// database. All writes share a single pooled connection; SQLite's WAL mode
// keeps concurrent readers unblocked while a write transaction runs.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	obs    api.Observer
	now    func() time.Time
}

// Ensure SQLiteStore implements api.Store.
var _ api.Store = (*SQLiteStore)(nil)

// OpenSQLiteStore opens the database file at path (absolute; created if
// absent), runs any pending schema migrations and returns a ready store.
// A migration failure aborts the open: the store never serves a partially
// migrated workspace.
func OpenSQLiteStore(path string, opts api.Options) (*SQLiteStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	obs := opts.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}

	// Migrations run before anything else may touch the handle, so no
	// append can interleave with them.
	ctx := context.Background()
	from, to, err := runMigrations(ctx, db)
	if err != nil {
		_ = closeDB(db, logger)
		return nil, err
	}
	if from != to {
		logger.Info("schema migrated",
			slog.String("path", path),
			slog.Int("from_version", from),
			slog.Int("to_version", to),
		)
	}
	obs.OnMigrate(ctx, from, to)

	return &SQLiteStore{
		db:     db,
		logger: logger,
		obs:    obs,
		now:    now,
	}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, req api.AppendRequest) (api.Event, error) {
	start := time.Now()
	ev, err := s.append(ctx, req)
	if err != nil {
		s.obs.OnAppendFailed(ctx, req, err)
		return api.Event{}, err
	}
	s.obs.OnAppend(ctx, ev, time.Since(start))
	return ev, nil
}

func (s *SQLiteStore) append(ctx context.Context, req api.AppendRequest) (api.Event, error) {
	applier, ok := appliers[req.EntityType]
	if !ok {
		return api.Event{}, fmt.Errorf("%w: %q", api.ErrUnknownEntityType, req.EntityType)
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return api.Event{}, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return api.Event{}, fmt.Errorf("begin append: %w", err)
	}

	seq, err := nextSeq(ctx, tx, req.WorkspaceID)
	if err != nil {
		_ = tx.Rollback()
		return api.Event{}, err
	}

	ev := api.Event{
		ID:          uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		Seq:         seq,
		Ts:          s.now().Truncate(time.Millisecond),
		Actor:       req.Actor,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Type:        req.Type,
		Payload:     payload,
	}

	if err := insertEvent(ctx, tx, ev); err != nil {
		_ = tx.Rollback()
		return api.Event{}, err
	}

	// The projection update commits with the event or not at all: readers
	// never see one without the other.
	if err := applier.Apply(ctx, tx, ev); err != nil {
		_ = tx.Rollback()
		return api.Event{}, err
	}

	if err := tx.Commit(); err != nil {
		return api.Event{}, fmt.Errorf("commit append: %w", err)
	}
	return ev, nil
}

func (s *SQLiteStore) ListByEntity(ctx context.Context, workspaceID, entityType, entityID string) ([]api.Event, error) {
	return listByEntity(ctx, s.db, workspaceID, entityType, entityID)
}

func (s *SQLiteStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]api.Event, error) {
	return listByWorkspace(ctx, s.db, workspaceID, -1)
}

func (s *SQLiteStore) ListByWorkspaceSince(ctx context.Context, workspaceID string, sinceSeq int64) ([]api.Event, error) {
	return listByWorkspace(ctx, s.db, workspaceID, sinceSeq)
}

func (s *SQLiteStore) FindActiveCoworker(ctx context.Context, workspaceID, id string) (*api.Coworker, error) {
	return findActiveCoworker(ctx, s.db, workspaceID, id)
}

func (s *SQLiteStore) ListActiveCoworkers(ctx context.Context, workspaceID string) ([]*api.Coworker, error) {
	return listActiveCoworkers(ctx, s.db, workspaceID)
}

func (s *SQLiteStore) Rebuild(ctx context.Context, workspaceID string) error {
	start := time.Now()
	n, err := s.rebuild(ctx, workspaceID)
	s.obs.OnRebuild(ctx, workspaceID, n, err, time.Since(start))
	return err
}

func (s *SQLiteStore) rebuild(ctx context.Context, workspaceID string) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rebuild: %w", err)
	}

	for _, applier := range appliers {
		if err := applier.Reset(ctx, tx, workspaceID); err != nil {
			_ = tx.Rollback()
			return 0, err
		}
	}

	// Replay through the transaction so the truncate-and-refold is
	// invisible to readers until commit.
	events, err := listByWorkspace(ctx, tx, workspaceID, -1)
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("rebuild workspace %q: %w", workspaceID, err)
	}

	for _, ev := range events {
		applier, ok := appliers[ev.EntityType]
		if !ok {
			_ = tx.Rollback()
			return 0, fmt.Errorf("rebuild workspace %q: %w: %q", workspaceID, api.ErrUnknownEntityType, ev.EntityType)
		}
		if err := applier.Apply(ctx, tx, ev); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("rebuild workspace %q at seq %d: %w", workspaceID, ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rebuild: %w", err)
	}
	return len(events), nil
}

// Close checkpoints the WAL into the main database file and releases the
// handle. Safe to call once; the store must not be used afterwards.
func (s *SQLiteStore) Close() error {
	return closeDB(s.db, s.logger)
}
