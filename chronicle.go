package chronicle

import (
	"github.com/jormio/chronicle/internal/persistence"
	"github.com/jormio/chronicle/pkg/api"
)

// Re-export key types so users don't need to dig into pkg/api.

type (
	Store                = api.Store
	Options              = api.Options
	Event                = api.Event
	EventType            = api.EventType
	AppendRequest        = api.AppendRequest
	Coworker             = api.Coworker
	CoworkerPayload      = api.CoworkerPayload
	Observer             = api.Observer
	NoopObserver         = api.NoopObserver
	CompositeObserver    = api.CompositeObserver
	LoggingObserver      = api.LoggingObserver
	BasicMetrics         = api.BasicMetrics
	BasicMetricsSnapshot = api.BasicMetricsSnapshot
)

// Re-export common observer helpers.

var (
	NewLoggingObserver   = api.NewLoggingObserver
	NewCompositeObserver = api.NewCompositeObserver
)

// Re-export event type values and well-known names for convenience.

const (
	EventCreated = api.EventCreated
	EventUpdated = api.EventUpdated
	EventDeleted = api.EventDeleted

	EntityCoworker = api.EntityCoworker
	ActorSystem    = api.ActorSystem
)

// Re-export sentinel errors for errors.Is checks.

var (
	ErrCoworkerExists    = api.ErrCoworkerExists
	ErrCoworkerNotFound  = api.ErrCoworkerNotFound
	ErrUnknownEntityType = api.ErrUnknownEntityType
	ErrNotAbsolutePath   = api.ErrNotAbsolutePath
)

// Store constructors
// These wrap the internal/persistence package so external callers
// never need to import internal packages.

// Open opens the workspace database at path (an absolute filesystem path;
// the file is created if absent), runs any pending schema migrations and
// returns a ready Store. A migration or open failure aborts: the caller
// must not fall back to a partially opened workspace.
func Open(path string) (Store, error) {
	return OpenWithOptions(path, Options{})
}

// OpenWithOptions is Open with an explicit logger, observer and clock.
func OpenWithOptions(path string, opts Options) (Store, error) {
	return persistence.OpenSQLiteStore(path, opts)
}

// OpenWithObserver is Open with a store Observer attached.
func OpenWithObserver(path string, obs Observer) (Store, error) {
	return OpenWithOptions(path, Options{Observer: obs})
}

// NewInMemory returns a Store backed entirely by memory. It is not durable
// and is intended for tests; semantics match the SQLite-backed store.
func NewInMemory() Store {
	return persistence.NewInMemoryStore()
}

// NewInMemoryWithOptions is NewInMemory with an explicit observer and clock.
func NewInMemoryWithOptions(opts Options) Store {
	return persistence.NewInMemoryStoreWithOptions(opts)
}
