package api

import "time"

// Coworker is the materialized current state of one coworker, derived from
// its event history. The event log is the source of truth; rows here are a
// rebuildable cache.
type Coworker struct {
	ID          string
	WorkspaceID string
	Name        string
	Description *string

	CreatedAt time.Time
	UpdatedAt time.Time

	// DeletedAt marks a soft delete. The row is kept for history; reads
	// through FindActiveCoworker and ListActiveCoworkers exclude it.
	DeletedAt *time.Time
}

// Deleted reports whether the coworker has been soft-deleted.
func (c *Coworker) Deleted() bool { return c.DeletedAt != nil }

// CoworkerPayload is the change document carried by coworker events.
// Nil fields mean "not present"; an update merges only present fields
// into the projection row.
type CoworkerPayload struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
