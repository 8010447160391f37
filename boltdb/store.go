package boltdb

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Sakib25800/framer-salesforce-api/cache"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

const (
	// DataBucket holds every store value keyed by its full key.
	DataBucket     = "kv"
	metadataSuffix = "_meta"
)

// itemMetadata holds metadata for a stored item, primarily its expiration time.
type itemMetadata struct {
	ExpiresAtUnixNano int64
}

func (m itemMetadata) expired(now time.Time) bool {
	return m.ExpiresAtUnixNano != 0 && now.UnixNano() > m.ExpiresAtUnixNano
}

// Backend implements cache.Backend on a single bbolt file. Expiry is kept in
// a metadata bucket next to the data and enforced on read; a cleanup loop
// removes expired entries.
type Backend struct {
	db              *bbolt.DB
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	closeOnce       sync.Once
	closeErr        error
}

var (
	_ cache.Backend = (*Backend)(nil)
	_ cache.Pinger  = (*Backend)(nil)
)

// Open opens or creates the database at dbPath.
func Open(dbPath string, cleanupInterval time.Duration) (*Backend, error) {
	// Ensure the directory for the database file exists
	dir := filepath.Dir(dbPath)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		log.Info().Str("dir", dir).Msg("Database directory does not exist, creating it")
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory %s: %w", dir, err)
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to check database directory %s: %w", dir, err)
	}

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db at %s: %w", dbPath, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(DataBucket)); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", DataBucket, err)
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(DataBucket + metadataSuffix)); err != nil {
			return fmt.Errorf("failed to create metadata bucket for %s: %w", DataBucket, err)
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	backend := &Backend{
		db:              db,
		cleanupInterval: cleanupInterval,
		stopCleanup:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go backend.runCleanupLoop()
	}

	log.Info().Str("path", dbPath).Msg("BBoltDB initialized")

	return backend, nil
}

func encodeMetadata(ttl time.Duration) ([]byte, error) {
	var meta itemMetadata
	if ttl > 0 {
		meta.ExpiresAtUnixNano = time.Now().Add(ttl).UnixNano()
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(meta); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeMetadata(raw []byte) (itemMetadata, error) {
	var meta itemMetadata
	err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&meta)

	return meta, err
}

// readLive returns a copy of the value at key when it exists and has not
// expired. It must run inside a transaction.
func readLive(tx *bbolt.Tx, key []byte) ([]byte, error) {
	metaBytes := tx.Bucket([]byte(DataBucket + metadataSuffix)).Get(key)
	if metaBytes == nil {
		return nil, cache.ErrNotFound
	}

	meta, err := decodeMetadata(metaBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode metadata for key %s: %w", key, err)
	}
	if meta.expired(time.Now()) {
		return nil, cache.ErrNotFound
	}

	value := tx.Bucket([]byte(DataBucket)).Get(key)
	if value == nil {
		return nil, cache.ErrNotFound
	}

	// The value is only valid during the transaction.
	return append([]byte(nil), value...), nil
}

func deleteKey(tx *bbolt.Tx, key []byte) error {
	if err := tx.Bucket([]byte(DataBucket)).Delete(key); err != nil {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return tx.Bucket([]byte(DataBucket + metadataSuffix)).Delete(key)
}

// Get implements cache.Backend.Get.
func (s *Backend) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		var err error
		value, err = readLive(tx, []byte(key))
		return err
	})

	return value, err
}

// Set implements cache.Backend.Set.
func (s *Backend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	metaBytes, err := encodeMetadata(ttl)
	if err != nil {
		return fmt.Errorf("failed to encode metadata for key %s: %w", key, err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket([]byte(DataBucket)).Put([]byte(key), value); err != nil {
			return fmt.Errorf("failed to put value for key %s: %w", key, err)
		}
		return tx.Bucket([]byte(DataBucket+metadataSuffix)).Put([]byte(key), metaBytes)
	})
}

// Delete implements cache.Backend.Delete.
func (s *Backend) Delete(_ context.Context, key string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		return deleteKey(tx, []byte(key))
	})
}

// Take implements cache.Backend.Take inside a single write transaction.
func (s *Backend) Take(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.Update(func(tx *bbolt.Tx) error {
		var err error
		value, err = readLive(tx, []byte(key))
		if err != nil {
			return err
		}
		return deleteKey(tx, []byte(key))
	})

	return value, err
}

// Keys implements cache.Backend.Keys. bbolt keeps keys sorted, so a cursor
// seek returns them in order.
func (s *Backend) Keys(_ context.Context, prefix string) ([]string, error) {
	keys := make([]string, 0)
	now := time.Now()

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(DataBucket + metadataSuffix)).Cursor()
		p := []byte(prefix)
		for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
			meta, err := decodeMetadata(v)
			if err != nil {
				log.Warn().Err(err).Str("key", string(k)).Msg("Skipping key with corrupt metadata")
				continue
			}
			if meta.expired(now) {
				continue
			}
			keys = append(keys, string(k))
		}
		return nil
	})

	return keys, err
}

// DeleteExpired removes every expired entry and returns how many were removed.
func (s *Backend) DeleteExpired() (int, error) {
	candidates, err := s.expiredKeys(time.Now())
	if err != nil || len(candidates) == 0 {
		return 0, err
	}

	return s.deleteIfExpired(candidates)
}

// expiredKeys lists the keys whose metadata is expired at now.
func (s *Backend) expiredKeys(now time.Time) ([][]byte, error) {
	var expired [][]byte

	err := s.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket([]byte(DataBucket + metadataSuffix)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			meta, err := decodeMetadata(v)
			if err != nil {
				log.Warn().Err(err).Str("key", string(k)).Msg("Error decoding metadata during cleanup, skipping")
				continue
			}
			if meta.expired(now) {
				expired = append(expired, append([]byte(nil), k...))
			}
		}
		return nil
	})

	return expired, err
}

// deleteIfExpired deletes the candidates that are still expired inside the
// write transaction. A key re-set since it was listed is kept.
func (s *Backend) deleteIfExpired(candidates [][]byte) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bbolt.Tx) error {
		now := time.Now()
		metaBucket := tx.Bucket([]byte(DataBucket + metadataSuffix))

		for _, key := range candidates {
			raw := metaBucket.Get(key)
			if raw == nil {
				continue
			}
			meta, err := decodeMetadata(raw)
			if err == nil && !meta.expired(now) {
				continue
			}
			if err := deleteKey(tx, key); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// Ping checks that the database is open and its bucket is present.
func (s *Backend) Ping(_ context.Context) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(DataBucket)) == nil {
			return fmt.Errorf("bucket %s is missing", DataBucket)
		}
		return nil
	})
}

// runCleanupLoop periodically removes expired items.
func (s *Backend) runCleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := s.DeleteExpired()
			if err != nil {
				log.Error().Err(err).Msg("Error during bbolt cleanup")
				continue
			}
			if n > 0 {
				log.Debug().Int("deleted", n).Msg("Deleted expired bbolt items")
			}
		case <-s.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup loop and closes the database. Later calls return
// the result of the first.
func (s *Backend) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopCleanup)
		s.closeErr = s.db.Close()
	})

	return s.closeErr
}
