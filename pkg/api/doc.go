// Package api defines the public types of the chronicle event store: the
// Event record, the Coworker projection, the Store interface and the
// Observer callbacks.
//
// Most users should import the root chronicle package, which re-exports
// everything here.
package api
