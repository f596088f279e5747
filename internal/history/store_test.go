package history

import (
	"testing"
	"time"

	"github.com/townsquare/townsquare/internal/room"
)

// TestDisabledStoreIsSilent verifies that with retention off, records are
// discarded and reads always come back empty, regardless of prior calls.
func TestDisabledStoreIsSilent(t *testing.T) {
	store, err := Open(t.TempDir(), 0)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, ok := store.(Disabled); !ok {
		t.Fatalf("expected Disabled store for retention 0, got %T", store)
	}

	key := room.NewKey("central", "music")
	if err := store.Record(key, room.Message{Nick: "alice", Text: "hi", TS: time.Now().Unix()}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	msgs, err := store.Recent(key, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("expected empty history with retention disabled, got %d messages", len(msgs))
	}
}

// TestRecentOrdersOldestFirst verifies the window comes back oldest first and
// that the limit keeps the newest messages.
func TestRecentOrdersOldestFirst(t *testing.T) {
	s := newTestStore(t, 1)
	key := room.NewKey("central", "music")
	now := s.now().Unix()

	for i, text := range []string{"one", "two", "three"} {
		msg := room.Message{Nick: "alice", Text: text, TS: now - int64(30-10*i)}
		if err := s.Record(key, msg); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	msgs, err := s.Recent(key, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Text != "two" || msgs[1].Text != "three" {
		t.Errorf("expected the newest two messages oldest-first, got %v", msgs)
	}
}

// TestRecentPrunesExpired verifies that reading a room's history drops every
// record older than the retention window and returns only what remains.
func TestRecentPrunesExpired(t *testing.T) {
	s := newTestStore(t, 1)
	key := room.NewKey("central", "music")
	now := s.now().Unix()

	records := []room.Message{
		{Nick: "alice", Text: "ancient", TS: now - 2*3600},
		{Nick: "alice", Text: "recent", TS: now - 10},
		{Nick: "alice", Text: "fresh", TS: now},
	}
	for _, msg := range records {
		if err := s.Record(key, msg); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	msgs, err := s.Recent(key, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "recent" || msgs[1].Text != "fresh" {
		t.Fatalf("expected [recent fresh], got %v", msgs)
	}

	// The expired record must be physically gone, not just filtered.
	if n := countRecords(t, s); n != 2 {
		t.Errorf("expected 2 stored records after prune, got %d", n)
	}
}

// TestRecentPruneIsGlobal pins the cross-room prune: reading one room's
// history also deletes expired records belonging to every other room. This
// mirrors the behavior the relay has always had; scoping the prune per key
// would be a behavior change.
func TestRecentPruneIsGlobal(t *testing.T) {
	s := newTestStore(t, 1)
	music := room.NewKey("central", "music")
	sports := room.NewKey("north", "sports")
	now := s.now().Unix()

	if err := s.Record(music, room.Message{Nick: "alice", Text: "hi", TS: now}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(sports, room.Message{Nick: "bob", Text: "old news", TS: now - 2*3600}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	// Reading music's history prunes sports' expired record too.
	if _, err := s.Recent(music, 50); err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if n := countRecords(t, s); n != 1 {
		t.Errorf("expected the expired record of the other room to be pruned, got %d records", n)
	}
}

// TestRecentPruneRepeats verifies back-to-back reads each run a full prune
// cycle cleanly, whether or not anything expired since the last one.
func TestRecentPruneRepeats(t *testing.T) {
	s := newTestStore(t, 1)
	key := room.NewKey("central", "music")
	now := s.now().Unix()

	if err := s.Record(key, room.Message{Nick: "alice", Text: "old", TS: now - 2*3600}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := s.Recent(key, 50); err != nil {
		t.Fatalf("first Recent: %v", err)
	}

	if err := s.Record(key, room.Message{Nick: "alice", Text: "older", TS: now - 3*3600}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := s.Recent(key, 50); err != nil {
		t.Fatalf("second Recent: %v", err)
	}
	if _, err := s.Recent(key, 50); err != nil {
		t.Fatalf("third Recent: %v", err)
	}

	if n := countRecords(t, s); n != 0 {
		t.Errorf("expected all expired records pruned, got %d", n)
	}
}

// TestRecentScopedToKey verifies that one room's read never returns another
// room's messages.
func TestRecentScopedToKey(t *testing.T) {
	s := newTestStore(t, 1)
	music := room.NewKey("central", "music")
	sports := room.NewKey("central", "sports")
	now := s.now().Unix()

	if err := s.Record(music, room.Message{Nick: "alice", Text: "tune", TS: now}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Record(sports, room.Message{Nick: "bob", Text: "score", TS: now}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	msgs, err := s.Recent(music, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "tune" {
		t.Errorf("expected only music's message, got %v", msgs)
	}
}

// TestRecordSurvivesReopen verifies durability across store restarts.
func TestRecordSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	key := room.NewKey("central", "music")

	s, err := openPebbleStore(dir, 1)
	if err != nil {
		t.Fatalf("openPebbleStore: %v", err)
	}
	ts := time.Now().Unix()
	if err := s.Record(key, room.Message{Nick: "alice", Text: "persisted", TS: ts}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := openPebbleStore(dir, 1)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	msgs, err := reopened.Recent(key, 50)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "persisted" {
		t.Errorf("expected the persisted message after reopen, got %v", msgs)
	}
}

// newTestStore opens a pebble store in a temp dir with the clock pinned so
// retention math is deterministic.
func newTestStore(t *testing.T, retentionHours int) *pebbleStore {
	t.Helper()
	s, err := openPebbleStore(t.TempDir(), retentionHours)
	if err != nil {
		t.Fatalf("openPebbleStore: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	fixed := time.Now()
	s.now = func() time.Time { return fixed }
	return s
}

// countRecords walks the whole keyspace.
func countRecords(t *testing.T, s *pebbleStore) int {
	t.Helper()
	it, err := s.db.NewIter(nil)
	if err != nil {
		t.Fatalf("NewIter: %v", err)
	}
	defer func() { _ = it.Close() }()

	n := 0
	for ok := it.First(); ok; ok = it.Next() {
		n++
	}
	return n
}
