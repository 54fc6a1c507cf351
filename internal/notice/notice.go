// Package notice is the user-visible notice channel. Notices are stored in
// the state database so a failure in a cron invocation can be shown by the
// next interactive one.
package notice

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"

	"github.com/mcdonaldj/sitebak/internal/statestore"
)

// Bucket holds the notices, keyed by sequence.
var Bucket = []byte("notices")

// Level is the severity of a notice.
type Level string

// Notice levels.
const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one message for the user.
type Notice struct {
	ID        string    `json:"id"`
	Level     Level     `json:"level"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Center reads and writes notices.
type Center struct {
	store *statestore.Store
	log   zerolog.Logger
	now   func() time.Time
}

// New creates a Center over store.
func New(store *statestore.Store, log zerolog.Logger) *Center {
	return &Center{
		store: store,
		log:   log.With().Str("component", "notice").Logger(),
		now:   time.Now,
	}
}

// Put stores n inside an open transaction. Missing ID and CreatedAt are
// filled in.
func Put(tx *bolt.Tx, n Notice) error {
	b, err := tx.CreateBucketIfNotExists(Bucket)
	if err != nil {
		return fmt.Errorf("creating notices bucket: %w", err)
	}
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	seq, err := b.NextSequence()
	if err != nil {
		return err
	}
	return statestore.PutJSON(b, statestore.SeqKey(seq), n)
}

// Add stores a new notice.
func (c *Center) Add(level Level, message string) error {
	n := Notice{ID: uuid.NewString(), Level: level, Message: message, CreatedAt: c.now()}
	if err := c.store.Update(func(tx *bolt.Tx) error { return Put(tx, n) }); err != nil {
		return fmt.Errorf("adding notice: %w", err)
	}
	c.log.Debug().Str("level", string(level)).Str("message", message).Msg("notice added")
	return nil
}

// List returns every notice, oldest first.
func (c *Center) List() ([]Notice, error) {
	var out []Notice
	err := c.store.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var n Notice
			if _, err := statestore.GetJSON(b, k, &n); err != nil {
				c.log.Warn().Err(err).Msg("skipping unreadable notice")
				return nil
			}
			out = append(out, n)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("listing notices: %w", err)
	}
	return out, nil
}

// Dismiss removes the notice with the given ID. It reports whether one
// was found.
func (c *Center) Dismiss(id string) (bool, error) {
	found := false
	err := c.store.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(Bucket)
		if b == nil {
			return nil
		}
		cur := b.Cursor()
		for k, _ := cur.First(); k != nil; k, _ = cur.Next() {
			var n Notice
			if _, err := statestore.GetJSON(b, k, &n); err != nil {
				continue
			}
			if n.ID == id {
				found = true
				return cur.Delete()
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("dismissing notice: %w", err)
	}
	return found, nil
}

// Clear removes every notice.
func (c *Center) Clear() error {
	err := c.store.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(Bucket) == nil {
			return nil
		}
		return tx.DeleteBucket(Bucket)
	})
	if err != nil {
		return fmt.Errorf("clearing notices: %w", err)
	}
	return nil
}
