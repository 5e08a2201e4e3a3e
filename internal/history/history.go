// Package history provides a BoltDB-backed ledger of peers this node has
// ever seen. The live registry stays in memory; history survives restarts.
package history

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
	bolt "go.etcd.io/bbolt"

	"landrop/internal/registry"
)

var peersBucket = []byte("peers")

// Record tracks one peer across its lifetime of beacons.
type Record struct {
	Peer      registry.Peer `msgpack:"peer"`
	FirstSeen time.Time     `msgpack:"first_seen"`
	LastSeen  time.Time     `msgpack:"last_seen"`
	Beacons   uint64        `msgpack:"beacons"`
}

// Store wraps a bbolt database of peer records.
type Store struct {
	db  *bolt.DB
	mu  sync.RWMutex
	log zerolog.Logger
}

// Open opens or creates a BoltDB file at the given path.
func Open(path string, log zerolog.Logger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(peersBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating peers bucket: %w", err)
	}

	return &Store{db: db, log: log}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert inserts or updates a peer record keyed by peer ID.
func (s *Store) Upsert(peer registry.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(peersBucket)
		key := []byte(peer.ID)

		now := time.Now()
		var record Record

		existing := b.Get(key)
		if existing != nil {
			if err := msgpack.Unmarshal(existing, &record); err != nil {
				s.log.Warn().Err(err).Str("peer_id", peer.ID).Msg("Failed to unmarshal existing record, overwriting")
			}
			record.Peer = peer
			record.LastSeen = now
			record.Beacons++
		} else {
			record = Record{
				Peer:      peer,
				FirstSeen: now,
				LastSeen:  now,
				Beacons:   1,
			}

			s.log.Debug().
				Str("peer_id", peer.ID).
				Str("name", peer.Name).
				Str("ip", peer.IP).
				Msg("Peer added to history")
		}

		data, err := msgpack.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling peer record: %w", err)
		}

		return b.Put(key, data)
	})
}

// All returns every recorded peer.
func (s *Store) All() ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(peersBucket)
		return b.ForEach(func(k, v []byte) error {
			var record Record
			if err := msgpack.Unmarshal(v, &record); err != nil {
				s.log.Warn().Err(err).Str("key", string(k)).Msg("Skipping corrupt record")
				return nil
			}
			records = append(records, record)
			return nil
		})
	})
	return records, err
}
