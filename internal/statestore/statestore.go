// Package statestore keeps sitebak's durable cross-invocation state (the
// job queue, notices and scheduler markers) in a bbolt database.
//
// The database is opened for each operation and closed right after, so
// separate sitebak processes take turns: bbolt's file lock serializes
// them and every committed transaction is on disk before the call returns.
package statestore

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	bolt "go.etcd.io/bbolt"
)

// DefaultTimeout is how long an operation waits for another process to
// release the database.
const DefaultTimeout = 10 * time.Second

// Store is a handle on the state database. It holds no open resources.
type Store struct {
	path    string
	timeout time.Duration
}

// New creates a Store for the database at path.
func New(path string) *Store {
	return &Store{path: path, timeout: DefaultTimeout}
}

// WithTimeout returns a copy of s using timeout for the database lock.
func (s *Store) WithTimeout(timeout time.Duration) *Store {
	c := *s
	c.timeout = timeout
	return &c
}

// Path returns the database path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) open() (*bolt.DB, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}
	db, err := bolt.Open(s.path, 0600, &bolt.Options{Timeout: s.timeout})
	if err != nil {
		return nil, fmt.Errorf("opening state database %s: %w", s.path, err)
	}
	return db, nil
}

// Update runs fn in a read-write transaction. The transaction is committed
// to disk when fn returns nil.
func (s *Store) Update(fn func(tx *bolt.Tx) error) (err error) {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing state database: %w", closeErr)
		}
	}()
	return db.Update(fn)
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(tx *bolt.Tx) error) (err error) {
	db, err := s.open()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("closing state database: %w", closeErr)
		}
	}()
	return db.View(fn)
}

// SeqKey encodes a bucket sequence number so keys sort in insertion order.
func SeqKey(n uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, n)
	return b
}

// PutJSON stores v as JSON under key.
func PutJSON(b *bolt.Bucket, key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return b.Put(key, data)
}

// GetJSON decodes the JSON value under key into v. It reports false when
// the key is absent.
func GetJSON(b *bolt.Bucket, key []byte, v interface{}) (bool, error) {
	if b == nil {
		return false, nil
	}
	data := b.Get(key)
	if data == nil {
		return false, nil
	}
	if err := json.Unmarshal(data, v); err != nil {
		return true, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Marker buckets hold small named values such as the last scheduled run.
var markerBucket = []byte("markers")

// GetTime returns the time stored under name, or the zero time.
func (s *Store) GetTime(name string) (time.Time, error) {
	var t time.Time
	err := s.View(func(tx *bolt.Tx) error {
		_, err := GetJSON(tx.Bucket(markerBucket), []byte(name), &t)
		return err
	})
	return t, err
}

// SetTime stores t under name.
func (s *Store) SetTime(name string, t time.Time) error {
	return s.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(markerBucket)
		if err != nil {
			return err
		}
		return PutJSON(b, []byte(name), t)
	})
}
