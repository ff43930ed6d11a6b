package store

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketOutbound = []byte("outbound")
	bucketInbound  = []byte("inbound")
	bucketReceipts = []byte("receipts")
)

// Store owns the node's embedded key-value database. It is safe for
// concurrent use: bbolt serializes writers and allows unlimited concurrent
// readers, so a single Store is meant to be shared by reference across the
// pipeline and overlay runtime.
type Store struct {
	db *bolt.DB
}

// Open creates path's parent directory if needed and opens (or initializes)
// the bbolt database file at path, creating the outbound, inbound, and receipts buckets on first
// use. Crash recovery is automatic: bbolt replays its own write-ahead log on
// open.
func Open(path string) (*Store, error) {
	log := logrus.WithFields(logrus.Fields{"function": "Open", "path": path})
	log.Info("opening persistent store")

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("store: open: create parent directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		log.WithError(err).Error("failed to open database")
		return nil, fmt.Errorf("store: open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketOutbound, bucketInbound, bucketReceipts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return fmt.Errorf("create bucket %q: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("store: open: %w", err)
	}

	return &Store{db: db}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
