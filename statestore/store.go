// Package statestore persists finguard's small amount of durable state:
// ordered id sequences stored under well-known keys.
package statestore

import "context"

// Keys used by finguard.
const (
	// KeySuppressed holds the ids disabled by the policy engine.
	KeySuppressed = "disabledExtensions"
	// KeyQuarantined holds the ids awaiting quarantine review.
	KeyQuarantined = "quarantinedExtensions"
	// KeyReleased holds quarantined ids approved while the browser was
	// not connected; they are enabled on the next start.
	KeyReleased = "releasedExtensions"
)

// Store is a key-value store whose values are ordered id sequences.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) ([]string, bool, error)
	// Set replaces the value for key.
	Set(ctx context.Context, key string, ids []string) error
}
