package replay

import (
	"encoding/binary"
	"encoding/json"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var sessionsBucket = []byte("sessions")

// IndexEntry is one completed or in-progress session's side-index
// record: enough to find and describe its log without re-scanning it
// (SPEC_FULL.md §4.4 EXPANSION).
type IndexEntry struct {
	SessionID  uint64 `json:"session_id"`
	LogPath    string `json:"log_path"`
	StartedAt  int64  `json:"started_at"`
	Ops        uint64 `json:"ops"`
	Bytes      uint64 `json:"bytes"`
	Mismatches uint64 `json:"mismatches"`
}

// ReplayIndex is a bbolt-backed side index from session ID to
// IndexEntry, so a long-running server can list or look up past
// sessions without seeking through every .rpl file on disk (grounded
// on backend/cache's storage_persistent.go bucket-of-JSON-values
// pattern, same dependency, same on-disk shape).
type ReplayIndex struct {
	db *bolt.DB
}

// OpenIndex opens (creating if necessary) the bbolt database at path
// and ensures the sessions bucket exists.
func OpenIndex(path string) (*ReplayIndex, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "replay: opening index")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(sessionsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "replay: initializing index bucket")
	}
	return &ReplayIndex{db: db}, nil
}

// Close closes the underlying database.
func (idx *ReplayIndex) Close() error {
	return idx.db.Close()
}

func sessionKey(id uint64) []byte {
	var key [8]byte
	binary.BigEndian.PutUint64(key[:], id)
	return key[:]
}

// Put writes or overwrites one session's entry.
func (idx *ReplayIndex) Put(entry IndexEntry) error {
	encoded, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "replay: encoding index entry")
	}
	return idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		return b.Put(sessionKey(entry.SessionID), encoded)
	})
}

// Get looks up one session by ID.
func (idx *ReplayIndex) Get(sessionID uint64) (IndexEntry, bool, error) {
	var entry IndexEntry
	found := false
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		val := b.Get(sessionKey(sessionID))
		if val == nil {
			return nil
		}
		found = true
		return json.Unmarshal(val, &entry)
	})
	if err != nil {
		return IndexEntry{}, false, errors.Wrap(err, "replay: reading index entry")
	}
	return entry, found, nil
}

// List returns every indexed session, ordered by session ID ascending
// (bbolt iterates a bucket in key order, and keys are big-endian
// session IDs, so this falls out of the storage layout for free).
func (idx *ReplayIndex) List() ([]IndexEntry, error) {
	var out []IndexEntry
	err := idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		return b.ForEach(func(k, v []byte) error {
			var entry IndexEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			out = append(out, entry)
			return nil
		})
	})
	if err != nil {
		return nil, errors.Wrap(err, "replay: listing index")
	}
	return out, nil
}

// Delete removes a session's entry, e.g. once its log has been rotated
// away.
func (idx *ReplayIndex) Delete(sessionID uint64) error {
	return idx.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(sessionsBucket)
		return b.Delete(sessionKey(sessionID))
	})
}
