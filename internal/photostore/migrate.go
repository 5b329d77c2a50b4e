package photostore

import (
	"context"
	"errors"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// migrate performs the one-time transfer from the legacy flat-file
// format: a single JSON array of records at <dir>/photos.json. It runs
// when the stored schema marker differs from SchemaVersion (including
// when the marker is absent), and always writes the marker afterwards so
// migration is never retried, even when the legacy data was malformed.
// Per-record insert failures are logged and skipped; partial migration
// is acceptable.
func (s *Store) migrate(ctx context.Context) {
	version, err := s.readMeta(versionKey)
	if err != nil {
		s.log.Error().Err(err).Str("action", "migrate").Msg("schema marker read failed")
		return
	}
	if version == SchemaVersion {
		return
	}

	s.importLegacyFile()

	if err := s.writeMeta(versionKey, SchemaVersion); err != nil {
		s.log.Error().Err(err).Str("action", "migrate").Msg("schema marker write failed")
	}
}

func (s *Store) importLegacyFile() {
	data, err := os.ReadFile(s.legacyPath)
	if err != nil {
		// no legacy file, nothing to transfer
		return
	}

	var legacy []Photo
	if err := json.Unmarshal(data, &legacy); err != nil {
		s.log.Warn().Err(err).Str("action", "migrate").Msg("legacy data malformed, skipping migration")
		return
	}

	migrated := 0
	for _, p := range legacy {
		if p.ID == "" {
			p.ID = uuid.NewString()
		}
		if err := s.db.Update(func(txn *badger.Txn) error {
			return writePhoto(txn, p)
		}); err != nil {
			s.log.Error().Err(err).Str("action", "migrate").Str("photo", p.ID).Msg("legacy record transfer failed")
			continue
		}
		migrated++
	}

	if err := os.Remove(s.legacyPath); err != nil {
		s.log.Error().Err(err).Str("action", "migrate").Msg("legacy file removal failed")
	}
	s.log.Info().Str("action", "migrate").Int("migrated", migrated).Int("total", len(legacy)).Msg("legacy photos migrated")
}

func (s *Store) readMeta(key string) (string, error) {
	var value string
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			value = string(val)
			return nil
		})
	})
	return value, err
}

func (s *Store) writeMeta(key, value string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}
