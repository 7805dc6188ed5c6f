// Package state provides durable key/value persistence for the offline
// record store, the sync queue, and the compliance cache. Two backends
// exist: one file per key (json) and a single database (sqlite).
package state

import (
	"encoding/json"
	"errors"
	"time"
)

// Store manages durable key/value state.
type Store interface {
	// Get unmarshals the value for key into out.
	Get(key string, out any) error

	// Put marshals value and persists it under key.
	Put(key string, value any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(key string) error

	// Keys returns all keys with the given prefix, sorted.
	Keys(prefix string) ([]string, error)

	// Close releases resources.
	Close() error
}

// Errors
var (
	ErrKeyNotFound  = errors.New("key not found")
	ErrStateCorrupt = errors.New("state entry is corrupt")
)

// CurrentSchemaVersion for migrations.
const CurrentSchemaVersion = 1

// envelope wraps a stored value with integrity metadata. The checksum
// covers the raw value bytes only, so backends can verify without
// re-marshalling.
type envelope struct {
	SchemaVersion int             `json:"schema_version"`
	SavedAt       time.Time       `json:"saved_at"`
	Checksum      string          `json:"checksum"`
	Data          json.RawMessage `json:"data"`
}
