// Package history persists a bounded, time-windowed log of chat messages per
// room. Retention is configured in whole hours; zero disables persistence
// entirely, in which case the store degrades to a silent no-op.
package history

import (
	"github.com/townsquare/townsquare/internal/room"
)

// Store records chat messages and serves the recent window for one room key.
type Store interface {
	// Record appends a message to the durable log.
	Record(key room.Key, msg room.Message) error
	// Recent returns up to limit messages for key that are inside the
	// retention window, oldest first. Expired records for every room are
	// pruned as a side effect of the call.
	Recent(key room.Key, limit int) ([]room.Message, error)
	Close() error
}

// Disabled is the Store used when retention is turned off. All operations
// succeed and do nothing; this is deliberate configuration, not an error.
type Disabled struct{}

// Record discards the message.
func (Disabled) Record(room.Key, room.Message) error { return nil }

// Recent always reports an empty history.
func (Disabled) Recent(room.Key, int) ([]room.Message, error) { return []room.Message{}, nil }

// Close is a no-op.
func (Disabled) Close() error { return nil }

// Open returns the Store matching the configuration: a Pebble-backed store at
// dir when retentionHours is positive, Disabled otherwise.
func Open(dir string, retentionHours int) (Store, error) {
	if retentionHours <= 0 {
		return Disabled{}, nil
	}
	return openPebbleStore(dir, retentionHours)
}
