package photostore

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

// SnapshotVersion identifies the snapshot envelope schema
const SnapshotVersion = "2.0"

// Snapshot is the versioned JSON envelope used for bulk export/import
type Snapshot struct {
	Version     string  `json:"version"`
	Timestamp   int64   `json:"timestamp"`
	Photos      []Photo `json:"photos"`
	TotalPhotos int     `json:"totalPhotos"`
	TotalSize   int64   `json:"totalSize"`
}

// Export serializes the whole store into a snapshot envelope
func (s *Store) Export(ctx context.Context) ([]byte, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	photos := s.GetAll(ctx)
	var totalSize int64
	for _, p := range photos {
		totalSize += p.Size
	}

	snap := Snapshot{
		Version:     SnapshotVersion,
		Timestamp:   s.now().UnixMilli(),
		Photos:      photos,
		TotalPhotos: len(photos),
		TotalSize:   totalSize,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}
	return data, nil
}

// Import adds the records of a snapshot to the store. Records whose id
// already exists are skipped, making re-import of the same snapshot a
// no-op. All inserts run in one transaction; the returned count is the
// number of records actually added.
func (s *Store) Import(ctx context.Context, data []byte) (int, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, fmt.Errorf("invalid snapshot: %w", err)
	}
	raw, ok := envelope["photos"]
	if !ok || string(raw) == "null" {
		return 0, fmt.Errorf("invalid snapshot: missing photos array")
	}
	var photos []Photo
	if err := json.Unmarshal(raw, &photos); err != nil {
		return 0, fmt.Errorf("invalid snapshot: photos is not an array of photo records: %w", err)
	}

	added := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, p := range photos {
			existing, err := readPhoto(txn, p.ID)
			if err != nil {
				return err
			}
			if existing != nil {
				continue
			}
			if err := writePhoto(txn, p); err != nil {
				return err
			}
			added++
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "import").Msg("snapshot import failed")
		return 0, fmt.Errorf("import snapshot: %w", err)
	}
	s.log.Info().Str("action", "import").Int("added", added).Int("received", len(photos)).Msg("snapshot imported")
	return added, nil
}
