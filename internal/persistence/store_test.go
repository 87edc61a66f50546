package persistence

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/jormio/chronicle/pkg/api"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	path := filepath.Join(t.TempDir(), "workspace.db")
	store, err := OpenSQLiteStore(path, api.Options{})
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}

	t.Cleanup(func() {
		_ = store.Close()
	})

	return store
}

func strptr(s string) *string { return &s }

func appendCoworker(t *testing.T, store api.Store, workspaceID, id string, typ api.EventType, p api.CoworkerPayload) api.Event {
	t.Helper()

	ev, err := store.Append(context.Background(), api.AppendRequest{
		WorkspaceID: workspaceID,
		Actor:       "user-1",
		EntityType:  api.EntityCoworker,
		EntityID:    id,
		Type:        typ,
		Payload:     p,
	})
	if err != nil {
		t.Fatalf("Append(%s %s) failed: %v", typ, id, err)
	}
	return ev
}

func TestSQLiteStore_CoworkerLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	ev := appendCoworker(t, store, "w1", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Ada")})
	if ev.Seq != 0 {
		t.Fatalf("expected first seq 0, got %d", ev.Seq)
	}

	got, err := store.FindActiveCoworker(ctx, "w1", "c1")
	if err != nil {
		t.Fatalf("FindActiveCoworker failed: %v", err)
	}
	if got.Name != "Ada" {
		t.Fatalf("expected name Ada, got %q", got.Name)
	}
	if got.Description != nil {
		t.Fatalf("expected no description, got %q", *got.Description)
	}
	if got.DeletedAt != nil {
		t.Fatalf("expected live row, got deleted_at %v", got.DeletedAt)
	}

	// Update merges only the fields present in the payload.
	appendCoworker(t, store, "w1", "c1", api.EventUpdated, api.CoworkerPayload{Name: strptr("Ada L.")})

	got, err = store.FindActiveCoworker(ctx, "w1", "c1")
	if err != nil {
		t.Fatalf("FindActiveCoworker after update failed: %v", err)
	}
	if got.Name != "Ada L." {
		t.Fatalf("expected updated name, got %q", got.Name)
	}
	if got.Description != nil {
		t.Fatalf("description should be untouched by a name-only update")
	}

	appendCoworker(t, store, "w1", "c1", api.EventDeleted, api.CoworkerPayload{})

	if _, err := store.FindActiveCoworker(ctx, "w1", "c1"); !errors.Is(err, api.ErrCoworkerNotFound) {
		t.Fatalf("expected ErrCoworkerNotFound after delete, got %v", err)
	}

	active, err := store.ListActiveCoworkers(ctx, "w1")
	if err != nil {
		t.Fatalf("ListActiveCoworkers failed: %v", err)
	}
	if len(active) != 0 {
		t.Fatalf("expected no active coworkers, got %d", len(active))
	}

	// The full history survives the soft delete.
	history, err := store.ListByEntity(ctx, "w1", api.EntityCoworker, "c1")
	if err != nil {
		t.Fatalf("ListByEntity failed: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("expected 3 events, got %d", len(history))
	}
	for i, ev := range history {
		if ev.Seq != int64(i) {
			t.Fatalf("expected seq %d at position %d, got %d", i, i, ev.Seq)
		}
	}
	if history[2].Type != api.EventDeleted {
		t.Fatalf("expected final event to be the deletion, got %q", history[2].Type)
	}
}

func TestSQLiteStore_AppendOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e1 := appendCoworker(t, store, "w1", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Ada")})
	e2 := appendCoworker(t, store, "w1", "c2", api.EventCreated, api.CoworkerPayload{Name: strptr("Grace")})

	if e1.Seq >= e2.Seq {
		t.Fatalf("expected strictly increasing seq, got %d then %d", e1.Seq, e2.Seq)
	}

	events, err := store.ListByWorkspace(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if len(events) != 2 || events[0].ID != e1.ID || events[1].ID != e2.ID {
		t.Fatalf("expected append order preserved, got %+v", events)
	}

	// Workspaces have independent sequences.
	other := appendCoworker(t, store, "w2", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Edsger")})
	if other.Seq != 0 {
		t.Fatalf("expected w2 to start at seq 0, got %d", other.Seq)
	}

	since, err := store.ListByWorkspaceSince(ctx, "w1", 0)
	if err != nil {
		t.Fatalf("ListByWorkspaceSince failed: %v", err)
	}
	if len(since) != 1 || since[0].Seq != 1 {
		t.Fatalf("expected only seq 1 after sinceSeq 0, got %+v", since)
	}
}

func TestSQLiteStore_ConcurrentAppendsGapFree(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Sequence allocation must hold up under concurrent writers, not just
	// back-to-back calls: every append commits a distinct seq and together
	// they cover 0..N-1 with no gaps.
	const writers = 16
	seqs := make(chan int64, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ev, err := store.Append(ctx, api.AppendRequest{
				WorkspaceID: "w1",
				Actor:       "user-1",
				EntityType:  api.EntityCoworker,
				EntityID:    fmt.Sprintf("c%d", i),
				Type:        api.EventCreated,
				Payload:     api.CoworkerPayload{Name: strptr("Ada")},
			})
			if err != nil {
				t.Errorf("concurrent Append failed: %v", err)
				return
			}
			seqs <- ev.Seq
		}(i)
	}
	wg.Wait()
	close(seqs)

	seen := make(map[int64]bool, writers)
	for seq := range seqs {
		if seen[seq] {
			t.Fatalf("seq %d allocated twice", seq)
		}
		seen[seq] = true
	}
	if len(seen) != writers {
		t.Fatalf("expected %d committed appends, got %d", writers, len(seen))
	}
	for i := int64(0); i < writers; i++ {
		if !seen[i] {
			t.Fatalf("seq %d missing, allocation left a gap", i)
		}
	}

	events, err := store.ListByWorkspace(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if len(events) != writers {
		t.Fatalf("expected %d events in the log, got %d", writers, len(events))
	}
}

func TestSQLiteStore_AtomicAppend(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Update before create is a corrupt history; the event must not be
	// persisted either.
	_, err := store.Append(ctx, api.AppendRequest{
		WorkspaceID: "w1",
		Actor:       "user-1",
		EntityType:  api.EntityCoworker,
		EntityID:    "ghost",
		Type:        api.EventUpdated,
		Payload:     api.CoworkerPayload{Name: strptr("Ghost")},
	})
	if !errors.Is(err, api.ErrCoworkerNotFound) {
		t.Fatalf("expected ErrCoworkerNotFound, got %v", err)
	}

	events, err := store.ListByWorkspace(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events after rolled-back append, got %d", len(events))
	}

	// The next successful append still gets seq 0.
	ev := appendCoworker(t, store, "w1", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Ada")})
	if ev.Seq != 0 {
		t.Fatalf("expected seq 0 after rollback, got %d", ev.Seq)
	}
}

func TestSQLiteStore_CreateTwiceFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendCoworker(t, store, "w1", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Ada")})

	_, err := store.Append(ctx, api.AppendRequest{
		WorkspaceID: "w1",
		Actor:       "user-1",
		EntityType:  api.EntityCoworker,
		EntityID:    "c1",
		Type:        api.EventCreated,
		Payload:     api.CoworkerPayload{Name: strptr("Ada again")},
	})
	if !errors.Is(err, api.ErrCoworkerExists) {
		t.Fatalf("expected ErrCoworkerExists, got %v", err)
	}
}

func TestSQLiteStore_RecreateAfterDeleteFails(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendCoworker(t, store, "w1", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Ada")})
	appendCoworker(t, store, "w1", "c1", api.EventDeleted, api.CoworkerPayload{})

	// Ids are never reused after a soft delete.
	_, err := store.Append(ctx, api.AppendRequest{
		WorkspaceID: "w1",
		Actor:       "user-1",
		EntityType:  api.EntityCoworker,
		EntityID:    "c1",
		Type:        api.EventCreated,
		Payload:     api.CoworkerPayload{Name: strptr("Ada 2")},
	})
	if !errors.Is(err, api.ErrCoworkerExists) {
		t.Fatalf("expected ErrCoworkerExists, got %v", err)
	}

	events, err := store.ListByWorkspace(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected rejected create to append nothing, got %d events", len(events))
	}
}

func TestSQLiteStore_UnknownEntityType(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, api.AppendRequest{
		WorkspaceID: "w1",
		Actor:       "user-1",
		EntityType:  "starship",
		EntityID:    "s1",
		Type:        api.EventCreated,
	})
	if !errors.Is(err, api.ErrUnknownEntityType) {
		t.Fatalf("expected ErrUnknownEntityType, got %v", err)
	}

	events, err := store.ListByWorkspace(ctx, "w1")
	if err != nil {
		t.Fatalf("ListByWorkspace failed: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
}

func TestSQLiteStore_MalformedPayloadTreatedAsEmpty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	appendCoworker(t, store, "w1", "c1", api.EventCreated, api.CoworkerPayload{Name: strptr("Ada")})

	// A stored document that doesn't match the coworker shape merges
	// nothing instead of failing the fold.
	_, err := store.Append(ctx, api.AppendRequest{
		WorkspaceID: "w1",
		Actor:       "user-1",
		EntityType:  api.EntityCoworker,
		EntityID:    "c1",
		Type:        api.EventUpdated,
		Payload:     []string{"not", "a", "document"},
	})
	if err != nil {
		t.Fatalf("Append with mismatched payload failed: %v", err)
	}

	got, err := store.FindActiveCoworker(ctx, "w1", "c1")
	if err != nil {
		t.Fatalf("FindActiveCoworker failed: %v", err)
	}
	if got.Name != "Ada" {
		t.Fatalf("expected name unchanged, got %q", got.Name)
	}
}
