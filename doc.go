// Package chronicle provides an embedded, per-workspace event store for Go.
//
// Chronicle is designed for desktop and single-process applications that
// keep each workspace's data in its own SQLite file and want every mutation
// recorded as an immutable fact. It runs fully in Go (the SQLite driver is
// pure Go), needs no server, and exposes a small, explicit API.
//
// # Core Concepts
//
// The programming model is intentionally small:
//
//  1. Store
//  2. Event
//  3. Projection
//  4. Observer
//
// # Store
//
// A Store owns one workspace database file. Open configures the file for
// write-ahead logging, runs schema migrations, and returns a handle whose
// only write entry point is Append:
//
//	store, err := chronicle.Open("/home/me/.app/workspaces/w1.db")
//	if err != nil { ... }
//	defer store.Close()
//
//	name := "Ada"
//	ev, err := store.Append(ctx, chronicle.AppendRequest{
//	    WorkspaceID: "w1",
//	    Actor:       "user-7",
//	    EntityType:  chronicle.EntityCoworker,
//	    EntityID:    "c1",
//	    Type:        chronicle.EventCreated,
//	    Payload:     chronicle.CoworkerPayload{Name: &name},
//	})
//
// Close checkpoints the write-ahead log back into the database file so the
// file on disk is self-contained.
//
// # Event
//
// Every mutation is appended to an ordered, immutable log. Within a
// workspace, events carry a gap-free sequence number starting at 0; the
// sequence number is the only ordering key. The log is the source of truth
// and supports full replay and audit via ListByEntity and ListByWorkspace.
//
// # Projection
//
// Current state lives in materialized tables derived from the log (today,
// the coworkers table). Each append folds its event into the projection in
// the same transaction, so readers never observe an event without its
// effect or an effect without its event. FindActiveCoworker and
// ListActiveCoworkers read current, non-deleted state; deletes are soft.
// Rebuild discards a workspace's projection rows and refolds the whole log,
// producing state identical to incremental application.
//
// # Observer
//
// An Observer receives append, rebuild and migration callbacks for logging
// and metrics. LoggingObserver writes structured logs via log/slog;
// BasicMetrics keeps counters; NewCompositeObserver combines observers.
//
// # In-memory store
//
// NewInMemory returns a Store with the same semantics and no durability,
// for fast unit tests in applications that embed chronicle.
//
// For examples, see the /examples directory.
package chronicle
