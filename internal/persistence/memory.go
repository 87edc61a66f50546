package persistence

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jormio/chronicle/pkg/api"
)

// InMemoryStore is a goroutine-safe, non-durable api.Store backed by maps.
// It mirrors the SQLite store's semantics exactly (sequence allocation,
// atomic append+apply, soft delete, rebuild) and is intended for host
// application tests.
type InMemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	obs       api.Observer
	events    map[string][]api.Event             // workspace -> ordered log
	coworkers map[string]map[string]api.Coworker // workspace -> id -> row
}

// Ensure InMemoryStore implements api.Store.
var _ api.Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithOptions(api.Options{})
}

// NewInMemoryStoreWithOptions is NewInMemoryStore with an explicit observer
// and clock. The Logger option is unused here; the store has no file to
// checkpoint or migrate.
func NewInMemoryStoreWithOptions(opts api.Options) *InMemoryStore {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	obs := opts.Observer
	if obs == nil {
		obs = api.NoopObserver{}
	}
	return &InMemoryStore{
		now:       now,
		obs:       obs,
		events:    make(map[string][]api.Event),
		coworkers: make(map[string]map[string]api.Coworker),
	}
}

func (s *InMemoryStore) Append(ctx context.Context, req api.AppendRequest) (api.Event, error) {
	start := time.Now()
	ev, err := s.append(req)
	if err != nil {
		s.obs.OnAppendFailed(ctx, req, err)
		return api.Event{}, err
	}
	s.obs.OnAppend(ctx, ev, time.Since(start))
	return ev, nil
}

func (s *InMemoryStore) append(req api.AppendRequest) (api.Event, error) {
	if req.EntityType != api.EntityCoworker {
		return api.Event{}, fmt.Errorf("%w: %q", api.ErrUnknownEntityType, req.EntityType)
	}

	payload, err := encodePayload(req.Payload)
	if err != nil {
		return api.Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.events[req.WorkspaceID]
	ev := api.Event{
		ID:          uuid.NewString(),
		WorkspaceID: req.WorkspaceID,
		Seq:         int64(len(log)),
		Ts:          s.now().Truncate(time.Millisecond),
		Actor:       req.Actor,
		EntityType:  req.EntityType,
		EntityID:    req.EntityID,
		Type:        req.Type,
		Payload:     payload,
	}

	rows := s.coworkers[req.WorkspaceID]
	if rows == nil {
		rows = make(map[string]api.Coworker)
		s.coworkers[req.WorkspaceID] = rows
	}

	// Apply first: a failed apply must leave the log untouched.
	if err := applyCoworkerToMap(rows, ev); err != nil {
		return api.Event{}, err
	}
	s.events[req.WorkspaceID] = append(log, ev)
	return ev, nil
}

// applyCoworkerToMap folds one coworker event into the projection map,
// with the same semantics as the SQLite applier.
func applyCoworkerToMap(rows map[string]api.Coworker, ev api.Event) error {
	wrap := func(err error) error {
		return fmt.Errorf("apply %s event for coworker %q: %w", ev.Type, ev.EntityID, err)
	}

	switch ev.Type {
	case api.EventCreated:
		if _, exists := rows[ev.EntityID]; exists {
			return wrap(api.ErrCoworkerExists)
		}
		p := decodeCoworkerPayload(ev.Payload)
		name := ""
		if p.Name != nil {
			name = *p.Name
		}
		rows[ev.EntityID] = api.Coworker{
			ID:          ev.EntityID,
			WorkspaceID: ev.WorkspaceID,
			Name:        name,
			Description: p.Description,
			CreatedAt:   ev.Ts,
			UpdatedAt:   ev.Ts,
		}
		return nil

	case api.EventUpdated:
		row, exists := rows[ev.EntityID]
		if !exists {
			return wrap(api.ErrCoworkerNotFound)
		}
		p := decodeCoworkerPayload(ev.Payload)
		if p.Name != nil {
			row.Name = *p.Name
		}
		if p.Description != nil {
			row.Description = p.Description
		}
		row.UpdatedAt = ev.Ts
		rows[ev.EntityID] = row
		return nil

	case api.EventDeleted:
		row, exists := rows[ev.EntityID]
		if !exists {
			return wrap(api.ErrCoworkerNotFound)
		}
		ts := ev.Ts
		row.DeletedAt = &ts
		rows[ev.EntityID] = row
		return nil

	default:
		return wrap(fmt.Errorf("unknown coworker event type %q", ev.Type))
	}
}

func (s *InMemoryStore) ListByEntity(ctx context.Context, workspaceID, entityType, entityID string) ([]api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Event
	for _, ev := range s.events[workspaceID] {
		if ev.EntityType == entityType && ev.EntityID == entityID {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *InMemoryStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]api.Event, error) {
	return s.ListByWorkspaceSince(ctx, workspaceID, -1)
}

func (s *InMemoryStore) ListByWorkspaceSince(ctx context.Context, workspaceID string, sinceSeq int64) ([]api.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []api.Event
	for _, ev := range s.events[workspaceID] {
		if ev.Seq > sinceSeq {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (s *InMemoryStore) FindActiveCoworker(ctx context.Context, workspaceID, id string) (*api.Coworker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, exists := s.coworkers[workspaceID][id]
	if !exists || row.DeletedAt != nil {
		return nil, api.ErrCoworkerNotFound
	}
	copied := row
	return &copied, nil
}

func (s *InMemoryStore) ListActiveCoworkers(ctx context.Context, workspaceID string) ([]*api.Coworker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*api.Coworker
	for _, row := range s.coworkers[workspaceID] {
		if row.DeletedAt != nil {
			continue
		}
		copied := row
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemoryStore) Rebuild(ctx context.Context, workspaceID string) error {
	start := time.Now()
	n, err := s.rebuild(workspaceID)
	s.obs.OnRebuild(ctx, workspaceID, n, err, time.Since(start))
	return err
}

func (s *InMemoryStore) rebuild(workspaceID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Refold into a fresh map and only swap it in if the whole replay
	// succeeds, mirroring the SQLite store's transactional rebuild.
	rows := make(map[string]api.Coworker)
	for _, ev := range s.events[workspaceID] {
		if err := applyCoworkerToMap(rows, ev); err != nil {
			return 0, fmt.Errorf("rebuild workspace %q at seq %d: %w", workspaceID, ev.Seq, err)
		}
	}
	s.coworkers[workspaceID] = rows
	return len(s.events[workspaceID]), nil
}

func (s *InMemoryStore) Close() error { return nil }
