package statestore

import (
	"context"
	"time"

	bolt "go.etcd.io/bbolt"
)

var stateBucket = []byte("particle_state")

// BoltStore persists particle state in a bbolt file, one key per particle
// id. State written here survives process restarts, which is what makes
// at-least-once delivery with idempotent particles workable.
type BoltStore struct {
	db *bolt.DB
}

// OpenBolt opens (creating if needed) the bbolt file at path. The open has
// a short timeout so a stale file lock surfaces as an error instead of a
// hang.
func OpenBolt(path string) (*BoltStore, error) {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(path, 0o644, opts)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(stateBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Get(ctx context.Context, particleID string) ([]byte, bool, error) {
	var (
		state []byte
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(stateBucket)
		if b == nil {
			return nil
		}
		if v := b.Get([]byte(particleID)); v != nil {
			state = make([]byte, len(v))
			copy(state, v)
			found = true
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return state, found, nil
}

func (s *BoltStore) Put(ctx context.Context, particleID string, state []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(stateBucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(particleID), state)
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
