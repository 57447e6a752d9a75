// Package errorlog persists the per-file error list ingest.Driver
// accumulates in memory so a later process can retrieve it; ErrorList
// itself (engine/errorlist.go) does not outlive the driver that built
// it. The storage shape mirrors boltoracle's bbolt wrapper: one bucket,
// keyed records, no schema migration story beyond "delete and re-run".
package errorlog

import (
	"encoding/json"
	"fmt"

	bolt "go.etcd.io/bbolt"

	"github.com/tskcat/engine/engine"
)

const bucketName = "image_errors"

// Store is a small side file recording the errors.Snapshot() of each
// ingest keyed by the image object id that was (or would have been)
// committed.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the error log at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open error log: %w", err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		return err
	}); err != nil {
		db.Close()
		return nil, fmt.Errorf("create error log bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// record is the JSON shape an *engine.Error is flattened to; engine.Error
// itself carries an error-interface Cause field that doesn't round-trip
// through encoding/json, so only the fields an operator cares about when
// reviewing a prior ingest are kept.
type record struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// Save writes the error snapshot for imageID, overwriting any prior
// record for the same id.
func (s *Store) Save(imageID int64, errs []*engine.Error) error {
	records := make([]record, len(errs))
	for i, e := range errs {
		records[i] = record{Kind: e.Kind.String(), Message: e.Message, Context: e.Context}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal error log entry: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		return b.Put(imageIDKey(imageID), data)
	})
}

// Load returns the recorded error summaries for imageID, or an empty
// slice if nothing was ever recorded for it.
func (s *Store) Load(imageID int64) ([]string, error) {
	var data []byte
	if err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		v := b.Get(imageIDKey(imageID))
		if v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	var records []record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("unmarshal error log entry: %w", err)
	}
	lines := make([]string, len(records))
	for i, r := range records {
		if r.Context != "" {
			lines[i] = fmt.Sprintf("[%s] %s (%s)", r.Kind, r.Message, r.Context)
		} else {
			lines[i] = fmt.Sprintf("[%s] %s", r.Kind, r.Message)
		}
	}
	return lines, nil
}

// Close closes the underlying bbolt file.
func (s *Store) Close() error {
	return s.db.Close()
}

func imageIDKey(imageID int64) []byte {
	return []byte(fmt.Sprintf("%d", imageID))
}
