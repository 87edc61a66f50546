package api

import (
	"encoding/json"
	"time"
)

// EventType identifies what happened to an entity.
type EventType string

const (
	EventCreated EventType = "created"
	EventUpdated EventType = "updated"
	EventDeleted EventType = "deleted"
)

// EntityCoworker is the entity type of coworker events.
const EntityCoworker = "coworker"

// ActorSystem marks events produced by the application itself rather than
// a user.
const ActorSystem = "system"

// Event is one immutable entry in a workspace's append-only log. Events are
// never updated or deleted once committed; current state is derived from
// them by folding in Seq order.
type Event struct {
	ID          string
	WorkspaceID string

	// Seq orders events within a workspace. It starts at 0, increases by
	// exactly one per committed append and has no gaps. It is the only
	// ordering key; Ts is informational and may repeat or run backwards
	// under clock skew.
	Seq int64

	// Ts is the append time, millisecond precision.
	Ts time.Time

	Actor      string
	EntityType string
	EntityID   string
	Type       EventType

	// Payload is the entity-specific change document, stored verbatim as
	// JSON. It is schema-on-read: consumers must tolerate documents they
	// cannot parse.
	Payload json.RawMessage
}

// AppendRequest describes a mutation to record.
type AppendRequest struct {
	WorkspaceID string
	Actor       string
	EntityType  string
	EntityID    string
	Type        EventType

	// Payload is marshalled to JSON. A json.RawMessage is stored as-is;
	// nil becomes an empty document.
	Payload any
}
