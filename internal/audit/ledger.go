// Package audit — ledger.go
//
// BoltDB-backed operational audit ledger for a shadowgraph node. This
// is explicitly NOT the shadow graph's own storage: the DAG stays pure
// in-memory (internal/shadowgraph never touches disk). The ledger
// records one entry per completed or aborted sync attempt, for
// post-mortem and capacity-planning use, entirely outside the hot
// reconciliation path.
//
// Schema (BoltDB bucket layout):
//
//	/sessions
//	    key:   RFC3339Nano timestamp + "_" + session id  [sortable]
//	    value: JSON-encoded SessionEntry
//
//	/meta
//	    key:   "schema_version"
//	    value: "1"
//
// Consistency model:
//   - Single-process, single-writer (BoltDB does not support concurrent
//     writers).
//   - All writes use ACID transactions (bbolt Tx.Commit()).
//   - Reads use read-only transactions (bbolt.View()).
//
// Retention:
//   - Entries older than RetentionDays are pruned by Prune; shadowgraphd
//     calls it once, on startup.
//
// Failure modes:
//   - Database file corruption: bbolt detects it via CRC and returns an
//     error on Open(). The process logs a fatal event and refuses to
//     start.
//   - Disk full: bbolt.Update() returns an error. The caller logs it
//     and continues — a failed audit write must never abort a sync.
package audit

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	// SchemaVersion is the current database schema version.
	SchemaVersion = "1"

	// DefaultRetentionDays is the default entry retention period.
	DefaultRetentionDays = 30

	bucketSessions = "sessions"
	bucketMeta     = "meta"
)

// SessionEntry is a single audit log record for one sync attempt.
// Stored as JSON in the sessions bucket.
type SessionEntry struct {
	// SessionID is an optional caller-supplied identifier for the
	// attempt. The synchronizer's per-sync session id appears only in its
	// log lines and is not exposed, so shadowgraphd leaves this empty.
	SessionID string `json:"session_id"`

	// Timestamp is when the sync attempt concluded.
	Timestamp time.Time `json:"timestamp"`

	// Peer is the remote node id this node synced with.
	Peer uint32 `json:"peer"`

	// Outbound is true if this node initiated the sync.
	Outbound bool `json:"outbound"`

	// Phase is the furthest phase reached: "rejected", "fallen_behind",
	// "exchanged", or "failed".
	Phase string `json:"phase"`

	// EventsSent / EventsReceived count events exchanged in phase 3.
	EventsSent     int `json:"events_sent"`
	EventsReceived int `json:"events_received"`

	// Duration is how long the attempt took end to end.
	Duration time.Duration `json:"duration"`

	// FailureReason is non-empty only when Phase == "failed"; it holds
	// the error text of the failed sync.
	FailureReason string `json:"failure_reason,omitempty"`
}

// Ledger wraps a BoltDB instance with typed accessors for the audit
// trail.
type Ledger struct {
	db            *bolt.DB
	retentionDays int
}

// Open opens (or creates) the BoltDB database at path. Initialises the
// required buckets and verifies the schema version.
func Open(path string, retentionDays int) (*Ledger, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}

	bdb, err := bolt.Open(path, 0o600, &bolt.Options{
		Timeout:      5 * time.Second,
		FreelistType: bolt.FreelistArrayType,
	})
	if err != nil {
		return nil, fmt.Errorf("bolt.Open(%q): %w", path, err)
	}

	l := &Ledger{db: bdb, retentionDays: retentionDays}

	if err := l.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketSessions, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("CreateBucketIfNotExists(%q): %w", name, err)
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte("schema_version")) == nil {
			if err := meta.Put([]byte("schema_version"), []byte(SchemaVersion)); err != nil {
				return fmt.Errorf("write schema_version: %w", err)
			}
		}
		return nil
	}); err != nil {
		_ = bdb.Close()
		return nil, fmt.Errorf("ledger initialisation failed: %w", err)
	}

	if err := l.checkSchemaVersion(); err != nil {
		_ = bdb.Close()
		return nil, err
	}

	return l, nil
}

func (l *Ledger) checkSchemaVersion() error {
	return l.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		v := meta.Get([]byte("schema_version"))
		if string(v) != SchemaVersion {
			return fmt.Errorf(
				"schema version mismatch: ledger has %q, process requires %q",
				string(v), SchemaVersion)
		}
		return nil
	})
}

// Close closes the underlying BoltDB file.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// sessionKey constructs a sortable BoltDB key: RFC3339Nano + "_" +
// session id. Lexicographic sort equals chronological sort.
func sessionKey(t time.Time, sessionID string) []byte {
	return []byte(fmt.Sprintf("%s_%s", t.UTC().Format(time.RFC3339Nano), sessionID))
}

// Append writes a new audit ledger entry. Uses a single ACID write
// transaction. A write failure here must never abort the sync it
// describes — callers should log and continue.
func (l *Ledger) Append(entry SessionEntry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("audit.Append marshal: %w", err)
	}

	key := sessionKey(entry.Timestamp, entry.SessionID)

	return l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		if err := b.Put(key, data); err != nil {
			return fmt.Errorf("audit.Append bolt.Put: %w", err)
		}
		return nil
	})
}

// PruneOld deletes entries older than retentionDays. Returns the number
// of entries deleted.
func (l *Ledger) PruneOld() (int, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -l.retentionDays)
	cutoffKey := sessionKey(cutoff, "")

	var deleted int
	err := l.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		c := b.Cursor()

		var toDelete [][]byte
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			if string(k) >= string(cutoffKey) {
				break
			}
			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			toDelete = append(toDelete, keyCopy)
		}

		for _, k := range toDelete {
			if err := b.Delete(k); err != nil {
				return fmt.Errorf("PruneOld delete: %w", err)
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// ReadAll returns every entry in chronological order. For operational
// inspection only; not called on the hot sync path.
func (l *Ledger) ReadAll() ([]SessionEntry, error) {
	var entries []SessionEntry
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		return b.ForEach(func(_, v []byte) error {
			var entry SessionEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	return entries, err
}

// Count returns the current number of ledger entries, for the
// observability gauge.
func (l *Ledger) Count() (int, error) {
	count := 0
	err := l.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketSessions))
		return b.ForEach(func(_, _ []byte) error {
			count++
			return nil
		})
	})
	return count, err
}
