package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.etcd.io/bbolt"
)

const (
	indexFileName = "index.db"

	// bucketName is the BoltDB bucket holding committed entries
	bucketName = "installs"
)

// Index is an advisory BoltDB record of committed cache entries, backing
// the list command and cache statistics. The filesystem completion marker
// remains the source of truth for the reuse decision; the index may lag or
// be rebuilt without affecting correctness.
type Index struct {
	db *bbolt.DB
}

// OpenIndex opens (creating if needed) the index under the cache root.
// Opening takes an exclusive file lock, so callers hold it briefly and
// close promptly.
func OpenIndex(root string) (*Index, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache root: %w", err)
	}

	path := filepath.Join(root, indexFileName)
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open install index: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create index bucket: %w", err)
	}

	return &Index{db: db}, nil
}

// Close closes the index database
func (i *Index) Close() error {
	if i.db != nil {
		return i.db.Close()
	}

	return nil
}

// Record stores a committed entry, keyed by fingerprint
func (i *Index) Record(entry *Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode index entry: %w", err)
	}

	return i.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).Put([]byte(entry.Fingerprint), data)
	})
}

// List returns all recorded entries, sorted by package then version
func (i *Index) List() ([]Entry, error) {
	var entries []Entry

	err := i.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucketName)).ForEach(func(k, v []byte) error {
			var entry Entry
			if err := json.Unmarshal(v, &entry); err != nil {
				// skip records written by an incompatible version
				return nil
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(entries, func(a, b int) bool {
		if entries[a].Package != entries[b].Package {
			return entries[a].Package < entries[b].Package
		}
		return entries[a].ResolvedVersion < entries[b].ResolvedVersion
	})

	return entries, nil
}

// Stats returns the number of recorded entries
func (i *Index) Stats() (int, error) {
	var count int
	err := i.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucketName)).Stats().KeyN
		return nil
	})

	return count, err
}
