// Package registry implements the Queue Registry (spec C1): the read side
// of queue configuration, behind a single interface with a file-backed and
// a database-backed adapter.
package registry

import (
	"errors"
	"time"

	"github.com/facile-ops/queuerunner/internal/domain"
)

// ErrUnavailable is returned by a Registry when the underlying source is
// exhausted (e.g. the DB adapter ran out of reconnect attempts). Callers
// treat this as the RegistryError of spec.md §7: fatal for the process.
var ErrUnavailable = errors.New("registry: source unavailable")

// Registry answers queue-list queries. Implementations must be safe for
// concurrent use; lookups are expected to be cheap (an in-memory read, or a
// pooled DB round trip) since they are called on every delivery.
type Registry interface {
	// List returns every configured queue definition.
	List() ([]domain.QueueDefinition, error)
	// Lookup returns the definition for id, or ok=false if it no longer
	// exists.
	Lookup(id int32) (def domain.QueueDefinition, ok bool)
}

// Command returns the configured command for id, or "" if the queue is
// unknown — callers are never expected to fail a lookup mid-dispatch.
func Command(r Registry, id int32) string {
	def, ok := r.Lookup(id)
	if !ok {
		return ""
	}
	return def.Command
}

// CommandTimeoutMS returns the dispatch timeout for id.
func CommandTimeoutMS(r Registry, id int32) uint64 {
	def, ok := r.Lookup(id)
	if !ok {
		return domain.DefaultCommandTimeoutSeconds * 60 * 1000
	}
	return def.CommandTimeoutMS()
}

// Enabled reports whether id is enabled right now, applying the hour-window
// gate (spec 3, 4.1).
func Enabled(r Registry, id int32) bool {
	def, ok := r.Lookup(id)
	if !ok {
		return false
	}
	return def.EnabledAt(time.Now())
}

// Changed reports whether id's configured worker count no longer matches
// observedCount — or the queue has disappeared entirely, which also counts
// as changed.
func Changed(r Registry, id int32, observedCount int32) bool {
	def, ok := r.Lookup(id)
	if !ok {
		return true
	}
	return def.Count != observedCount
}
