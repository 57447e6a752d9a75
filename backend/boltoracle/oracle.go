// Package boltoracle implements a KnownFileOracle backed by a bbolt
// file: a flat bucket of hash-hex keys, queried with a single Get per
// lookup (spec.md §6 "Known-file oracle").
package boltoracle

import (
	"context"

	bolt "go.etcd.io/bbolt"

	"github.com/tskcat/engine/engine"
)

const bucketName = "hashes"

// Oracle is a read-mostly hash set stored as bbolt keys with empty
// values; presence of the key is the hit.
type Oracle struct {
	db *bolt.DB
}

// Open opens (creating if necessary) a bbolt-backed oracle at path.
func Open(path string) (*Oracle, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, engine.Wrap(engine.KindReadIO, "open bbolt known-file database", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	})
	if err != nil {
		db.Close()
		return nil, engine.Wrap(engine.KindReadIO, "create known-file bucket", err)
	}
	return &Oracle{db: db}, nil
}

// QuickLookup reports whether hashHex is present in the set.
func (o *Oracle) QuickLookup(ctx context.Context, hashHex string) (bool, error) {
	var hit bool
	err := o.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		hit = b.Get([]byte(hashHex)) != nil
		return nil
	})
	return hit, err
}

// Add inserts hashHex into the set. Not part of KnownFileOracle;
// exposed for tooling that builds an oracle from a hash list.
func (o *Oracle) Add(hashHex string) error {
	return o.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put([]byte(hashHex), nil)
	})
}

// AddBatch inserts many hashes in a single transaction, mirroring the
// teacher's AddBatchDir batching convention for bulk bbolt writes.
func (o *Oracle) AddBatch(hashes []string) error {
	return o.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		for _, h := range hashes {
			if err := b.Put([]byte(h), nil); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of hashes stored, mainly for diagnostics.
func (o *Oracle) Count() (int, error) {
	var n int
	err := o.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.ForEach(func(k, v []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

func (o *Oracle) Close() error {
	return o.db.Close()
}
