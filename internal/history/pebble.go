package history

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"

	"github.com/townsquare/townsquare/internal/room"
)

// pebbleStore keeps messages in a PebbleDB key-value store. Keys are
//
//	city 0x00 circle 0x00 ts(8B big-endian) seq(8B big-endian)
//
// so one room's window is a single prefix range ordered by timestamp, and the
// value is the JSON-encoded message. seq disambiguates messages that share a
// timestamp; it is seeded from the wall clock so it stays monotonic across
// restarts.
type pebbleStore struct {
	db        *pebble.DB
	retention time.Duration

	mu   sync.Mutex
	next uint64

	// now is split out so tests can pin the clock.
	now func() time.Time
}

func openPebbleStore(dir string, retentionHours int) (*pebbleStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	db, err := pebble.Open(filepath.Clean(dir), &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	return &pebbleStore{
		db:        db,
		retention: time.Duration(retentionHours) * time.Hour,
		next:      uint64(time.Now().UnixNano()),
		now:       time.Now,
	}, nil
}

func (s *pebbleStore) Record(key room.Key, msg room.Message) error {
	s.mu.Lock()
	seq := s.next
	s.next++
	s.mu.Unlock()

	val, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := s.db.Set(recordKey(key, msg.TS, seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("write message: %w", err)
	}
	return nil
}

func (s *pebbleStore) Recent(key room.Key, limit int) ([]room.Message, error) {
	cutoff := s.now().Unix() - int64(s.retention/time.Second)
	if err := s.prune(cutoff); err != nil {
		return nil, err
	}

	prefix := roomPrefix(key)
	it, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: recordKeyBound(prefix, cutoff),
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	defer func() { _ = it.Close() }()

	// Walk newest-first so the limit keeps the latest messages, then reverse
	// into the oldest-first order callers display.
	out := make([]room.Message, 0, limit)
	for ok := it.Last(); ok && len(out) < limit; ok = it.Prev() {
		var m room.Message
		if err := json.Unmarshal(it.Value(), &m); err != nil {
			continue
		}
		out = append(out, m)
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// prune deletes every record older than cutoff across all rooms, matching the
// original delete-before-select behavior. The timestamp sits mid-key, so this
// is a full scan rather than a range delete.
func (s *pebbleStore) prune(cutoff int64) error {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	defer func() { _ = it.Close() }()

	batch := s.db.NewBatch()
	defer func() { _ = batch.Close() }()

	for ok := it.First(); ok; ok = it.Next() {
		ts, valid := recordTS(it.Key())
		if valid && ts < cutoff {
			if err := batch.Delete(append([]byte(nil), it.Key()...), nil); err != nil {
				return fmt.Errorf("prune history: %w", err)
			}
		}
	}
	if err := it.Error(); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	if batch.Empty() {
		return nil
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("prune history: %w", err)
	}
	return nil
}

func (s *pebbleStore) Close() error {
	return s.db.Close()
}

func roomPrefix(key room.Key) []byte {
	prefix := make([]byte, 0, len(key.City)+len(key.Circle)+2)
	prefix = append(prefix, key.City...)
	prefix = append(prefix, 0)
	prefix = append(prefix, key.Circle...)
	prefix = append(prefix, 0)
	return prefix
}

func recordKey(key room.Key, ts int64, seq uint64) []byte {
	k := roomPrefix(key)
	k = binary.BigEndian.AppendUint64(k, uint64(ts))
	k = binary.BigEndian.AppendUint64(k, seq)
	return k
}

// recordKeyBound is the smallest key for the given prefix at timestamp ts.
func recordKeyBound(prefix []byte, ts int64) []byte {
	k := append([]byte(nil), prefix...)
	k = binary.BigEndian.AppendUint64(k, uint64(ts))
	return k
}

// prefixUpperBound returns the exclusive upper bound of a prefix range. The
// prefix always ends in the 0x00 separator, so bumping the last byte is safe.
func prefixUpperBound(prefix []byte) []byte {
	upper := append([]byte(nil), prefix...)
	upper[len(upper)-1]++
	return upper
}

// recordTS extracts the timestamp embedded in a record key.
func recordTS(key []byte) (int64, bool) {
	if len(key) < 16 {
		return 0, false
	}
	return int64(binary.BigEndian.Uint64(key[len(key)-16 : len(key)-8])), true
}
