// Package journal keeps an append-only audit trail of committed ledger
// mutations in a bbolt file, separate from the ledger database.
package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/mmynk/posrecon/internal/models"
)

// Bucket names.
const (
	bucketEntries  = "entries"
	bucketByEntity = "entries_by_entity"
)

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 100

// Journal is a bbolt-backed audit log.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal file at path and initializes its buckets.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create journal directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range []string{bucketEntries, bucketByEntity} {
			if _, err := tx.CreateBucketIfNotExists([]byte(bucket)); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Journal{db: db}, nil
}

// Close closes the journal file.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Append stores entry under the next sequence number and indexes it by entity.
// Seq and, when unset, At are filled in on the passed entry.
func (j *Journal) Append(ctx context.Context, entry *models.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.At == 0 {
		entry.At = time.Now().Unix()
	}

	return j.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket([]byte(bucketEntries))
		seq, err := entries.NextSequence()
		if err != nil {
			return fmt.Errorf("failed to generate sequence: %w", err)
		}
		entry.Seq = seq

		data, err := json.Marshal(entry)
		if err != nil {
			return fmt.Errorf("failed to marshal audit entry: %w", err)
		}
		if err := entries.Put(itob(seq), data); err != nil {
			return err
		}

		if entry.EntityID == "" {
			return nil
		}
		byEntity, err := tx.Bucket([]byte(bucketByEntity)).CreateBucketIfNotExists([]byte(entry.EntityID))
		if err != nil {
			return fmt.Errorf("failed to index audit entry: %w", err)
		}
		return byEntity.Put(itob(seq), nil)
	})
}

// List returns up to limit entries, newest first. A non-empty entityID
// restricts the result to that entity.
func (j *Journal) List(ctx context.Context, entityID string, limit int) ([]models.AuditEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	var out []models.AuditEntry
	err := j.db.View(func(tx *bolt.Tx) error {
		entries := tx.Bucket([]byte(bucketEntries))

		decode := func(data []byte) error {
			var e models.AuditEntry
			if err := json.Unmarshal(data, &e); err != nil {
				return fmt.Errorf("failed to unmarshal audit entry: %w", err)
			}
			out = append(out, e)
			return nil
		}

		if entityID == "" {
			c := entries.Cursor()
			for k, v := c.Last(); k != nil && len(out) < limit; k, v = c.Prev() {
				if err := decode(v); err != nil {
					return err
				}
			}
			return nil
		}

		index := tx.Bucket([]byte(bucketByEntity)).Bucket([]byte(entityID))
		if index == nil {
			return nil
		}
		c := index.Cursor()
		for k, _ := c.Last(); k != nil && len(out) < limit; k, _ = c.Prev() {
			data := entries.Get(k)
			if data == nil {
				continue
			}
			if err := decode(data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// itob encodes a sequence as a big-endian key so cursor order is numeric order.
func itob(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}
