// Package photostore is the durable photo store backing the gallery: an
// embedded BadgerDB database holding photo records keyed by id, with
// secondary key mappings for capture time and favorite flag, a one-time
// migration from the legacy flat-file format, an age-based retention
// sweep, and a versioned JSON snapshot export/import.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Key prefixes for BadgerDB storage
const (
	photoKeyPrefix = "photo:"
	tsIndexPrefix  = "idx:ts:"
	favIndexPrefix = "idx:fav:"
	versionKey     = "meta:schema_version"
	optionsKey     = "meta:options"
)

// SchemaVersion is bumped whenever the record shape or key layout changes
const SchemaVersion = "2"

// quotaThreshold is the soft cap: saves are rejected once existing usage
// already exceeds this fraction of the configured maximum. Existing
// records are never evicted by the quota check itself.
const quotaThreshold = 0.90

var (
	// ErrUnavailable is returned by writes when the database failed to open
	ErrUnavailable = errors.New("photo storage is unavailable")

	// ErrQuotaExceeded is returned when a save would run past the soft quota
	ErrQuotaExceeded = errors.New("storage is almost full: delete some photos or raise the storage limit")
)

// Store manages the persistent photo database. One Store is shared
// process-wide; the composition root constructs it and owns its lifetime.
type Store struct {
	dir        string
	legacyPath string
	log        zerolog.Logger

	openOnce sync.Once
	db       *badger.DB
	openErr  error

	// collaborators, swappable in tests
	now    func() time.Time
	sizeOf func(string) int64
	dims   func(string) (width, height int)
}

// Option overrides one of the store's collaborators
type Option func(*Store)

// WithClock replaces the wall clock used for capture timestamps and the
// retention cutoff
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithSizeFunc replaces the payload byte-length estimator
func WithSizeFunc(f func(string) int64) Option {
	return func(s *Store) { s.sizeOf = f }
}

// WithDimensionsFunc replaces the pixel-dimension decoder
func WithDimensionsFunc(f func(string) (width, height int)) Option {
	return func(s *Store) { s.dims = f }
}

// New creates a store rooted at dir. The database is not opened until
// Initialize is called.
func New(dir string, log zerolog.Logger, opts ...Option) *Store {
	s := &Store{
		dir:        dir,
		legacyPath: filepath.Join(dir, "photos.json"),
		log:        log.With().Str("component", "photostore").Logger(),
		now:        time.Now,
		sizeOf:     PayloadSize,
		dims:       DecodeDimensions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize opens (creating if absent) the database, then runs the
// legacy migration and the retention sweep. It is idempotent: concurrent
// callers converge on one underlying open. An open failure is logged and
// leaves the store unavailable; reads return empty results and writes
// return ErrUnavailable, so initialization failure is non-fatal to the
// application.
func (s *Store) Initialize(ctx context.Context) error {
	s.openOnce.Do(func() {
		opts := badger.DefaultOptions(filepath.Join(s.dir, "db")).WithLogger(nil)
		db, err := badger.Open(opts)
		if err != nil {
			s.openErr = fmt.Errorf("open photo database: %w", err)
			s.log.Error().Err(err).Str("action", "initialize").Msg("photo database failed to open")
			return
		}
		s.db = db
		s.migrate(ctx)
		s.sweep(ctx)
	})
	return s.openErr
}

// Close releases the database handle
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ready() error {
	if s.db == nil {
		return ErrUnavailable
	}
	return nil
}

func photoKey(id string) []byte { return []byte(photoKeyPrefix + id) }
func favKey(id string) []byte   { return []byte(favIndexPrefix + id) }

// tsKey zero-pads the timestamp so lexicographic key order matches
// numeric capture order
func tsKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", tsIndexPrefix, ts, id))
}

// writePhoto stores the record and keeps both index mappings in step
func writePhoto(txn *badger.Txn, p Photo) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal photo: %w", err)
	}
	if err := txn.Set(photoKey(p.ID), data); err != nil {
		return fmt.Errorf("set photo: %w", err)
	}
	if err := txn.Set(tsKey(p.Timestamp, p.ID), []byte(p.ID)); err != nil {
		return fmt.Errorf("set timestamp index: %w", err)
	}
	if p.IsFavorite {
		if err := txn.Set(favKey(p.ID), []byte(p.ID)); err != nil {
			return fmt.Errorf("set favorite index: %w", err)
		}
	} else if err := txn.Delete(favKey(p.ID)); err != nil {
		return fmt.Errorf("clear favorite index: %w", err)
	}
	return nil
}

// dropPhoto removes the record and its index mappings
func dropPhoto(txn *badger.Txn, p Photo) error {
	if err := txn.Delete(photoKey(p.ID)); err != nil {
		return fmt.Errorf("delete photo: %w", err)
	}
	if err := txn.Delete(tsKey(p.Timestamp, p.ID)); err != nil {
		return fmt.Errorf("delete timestamp index: %w", err)
	}
	if err := txn.Delete(favKey(p.ID)); err != nil {
		return fmt.Errorf("delete favorite index: %w", err)
	}
	return nil
}

// readPhoto returns (nil, nil) when the id is absent
func readPhoto(txn *badger.Txn, id string) (*Photo, error) {
	item, err := txn.Get(photoKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get photo: %w", err)
	}
	var p Photo
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &p)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal photo: %w", err)
	}
	return &p, nil
}

// Save assigns a fresh id, derives size and pixel dimensions from the
// payload, and persists the record. The soft quota is checked against
// existing usage before the write: once usage already exceeds 90% of the
// configured maximum, new saves are rejected with ErrQuotaExceeded.
func (s *Store) Save(ctx context.Context, dataURL, name string) (*Photo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	info := s.StorageInfo(ctx)
	if info.MaxSize > 0 && float64(info.TotalSize)/float64(info.MaxSize) > quotaThreshold {
		s.log.Warn().
			Str("action", "save").
			Int64("totalSize", info.TotalSize).
			Int64("maxSize", info.MaxSize).
			Msg("save rejected by soft quota")
		return nil, ErrQuotaExceeded
	}

	width, height := s.dims(dataURL)
	photo := Photo{
		ID:        uuid.NewString(),
		DataURL:   dataURL,
		Timestamp: s.now().UnixMilli(),
		Name:      name,
		Size:      s.sizeOf(dataURL),
		Width:     width,
		Height:    height,
	}

	if err := s.db.Update(func(txn *badger.Txn) error {
		return writePhoto(txn, photo)
	}); err != nil {
		s.log.Error().Err(err).Str("action", "save").Str("photo", photo.ID).Msg("save failed")
		return nil, fmt.Errorf("save photo: %w", err)
	}
	return &photo, nil
}

// GetAll returns every record ordered by capture time, most recent
// first, walking the timestamp index in reverse. Read failures are
// logged and yield an empty collection.
func (s *Store) GetAll(ctx context.Context) []Photo {
	if s.ready() != nil {
		return []Photo{}
	}

	photos := make([]Photo, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(tsIndexPrefix)
		// reverse iteration seeks just past the highest timestamp key
		seek := append(append([]byte{}, prefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			p, err := readPhoto(txn, id)
			if err != nil {
				return err
			}
			if p != nil {
				photos = append(photos, *p)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "getAll").Msg("list photos failed")
		return []Photo{}
	}
	return photos
}

// GetFavorites returns every favorited record, most recent first
func (s *Store) GetFavorites(ctx context.Context) []Photo {
	if s.ready() != nil {
		return []Photo{}
	}

	photos := make([]Photo, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(favIndexPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var id string
			if err := it.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}
			p, err := readPhoto(txn, id)
			if err != nil {
				return err
			}
			if p != nil && p.IsFavorite {
				photos = append(photos, *p)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "getFavorites").Msg("list favorites failed")
		return []Photo{}
	}

	sort.SliceStable(photos, func(i, j int) bool {
		return photos[i].Timestamp > photos[j].Timestamp
	})
	return photos
}

// GetByID returns nil when the id is absent
func (s *Store) GetByID(ctx context.Context, id string) *Photo {
	if s.ready() != nil {
		return nil
	}

	var photo *Photo
	err := s.db.View(func(txn *badger.Txn) error {
		p, err := readPhoto(txn, id)
		if err != nil {
			return err
		}
		photo = p
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "getById").Str("photo", id).Msg("read failed")
		return nil
	}
	return photo
}

// Update merges patch into the stored record and persists the result.
// A missing id is a no-op returning (nil, nil), not an error.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Photo, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	var updated *Photo
	err := s.db.Update(func(txn *badger.Txn) error {
		p, err := readPhoto(txn, id)
		if err != nil || p == nil {
			return err
		}
		p.apply(patch)
		if err := writePhoto(txn, *p); err != nil {
			return err
		}
		updated = p
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "update").Str("photo", id).Msg("update failed")
		return nil, fmt.Errorf("update photo: %w", err)
	}
	return updated, nil
}

// Delete removes a record by id. Missing ids and storage failures both
// report false; failures are additionally logged.
func (s *Store) Delete(ctx context.Context, id string) bool {
	if s.ready() != nil {
		return false
	}

	deleted := false
	err := s.db.Update(func(txn *badger.Txn) error {
		p, err := readPhoto(txn, id)
		if err != nil || p == nil {
			return err
		}
		if err := dropPhoto(txn, *p); err != nil {
			return err
		}
		deleted = true
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "delete").Str("photo", id).Msg("delete failed")
		return false
	}
	return deleted
}

// DeleteMany removes the given ids in one transaction and returns the
// count actually removed. Absent ids are skipped without erroring the
// batch; a transaction failure removes nothing and reports zero.
func (s *Store) DeleteMany(ctx context.Context, ids []string) int {
	if s.ready() != nil || len(ids) == 0 {
		return 0
	}

	removed := 0
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, id := range ids {
			p, err := readPhoto(txn, id)
			if err != nil {
				return err
			}
			if p == nil {
				continue
			}
			if err := dropPhoto(txn, *p); err != nil {
				return err
			}
			removed++
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "deleteMany").Int("requested", len(ids)).Msg("batch delete failed")
		return 0
	}
	return removed
}

// ToggleFavorite flips the favorite flag and returns the new value.
// A missing id reports false.
func (s *Store) ToggleFavorite(ctx context.Context, id string) bool {
	if s.ready() != nil {
		return false
	}

	favorite := false
	err := s.db.Update(func(txn *badger.Txn) error {
		p, err := readPhoto(txn, id)
		if err != nil || p == nil {
			return err
		}
		p.IsFavorite = !p.IsFavorite
		if err := writePhoto(txn, *p); err != nil {
			return err
		}
		favorite = p.IsFavorite
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "toggleFavorite").Str("photo", id).Msg("toggle failed")
		return false
	}
	return favorite
}

// StorageInfo reports record count, byte usage against the configured
// capacity, and the favorite count
func (s *Store) StorageInfo(ctx context.Context) StorageInfo {
	info := StorageInfo{MaxSize: s.GetOptions(ctx).maxSizeBytes()}
	if s.ready() != nil {
		return info
	}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(photoKeyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var p Photo
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &p)
			}); err != nil {
				return err
			}
			info.TotalPhotos++
			info.TotalSize += p.Size
			if p.IsFavorite {
				info.FavoriteCount++
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "storageInfo").Msg("usage scan failed")
	}
	if info.MaxSize > 0 {
		info.UsedPercentage = float64(info.TotalSize) / float64(info.MaxSize) * 100
	}
	return info
}

// ClearAll empties the store unconditionally, leaving options and the
// schema marker in place
func (s *Store) ClearAll(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := s.db.DropPrefix([]byte(photoKeyPrefix), []byte(tsIndexPrefix), []byte(favIndexPrefix)); err != nil {
		s.log.Error().Err(err).Str("action", "clearAll").Msg("clear failed")
		return fmt.Errorf("clear photos: %w", err)
	}
	return nil
}

// GetOptions returns the persisted storage options, falling back to the
// defaults when none have been written or the blob cannot be read
func (s *Store) GetOptions(ctx context.Context) Options {
	opts := DefaultOptions()
	if s.ready() != nil {
		return opts
	}

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(optionsKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &opts)
		})
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "getOptions").Msg("options read failed")
		return DefaultOptions()
	}
	return opts
}

// SetOptions persists the storage options blob
func (s *Store) SetOptions(ctx context.Context, opts Options) error {
	if err := s.ready(); err != nil {
		return err
	}
	data, err := json.Marshal(opts)
	if err != nil {
		return fmt.Errorf("marshal options: %w", err)
	}
	if err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(optionsKey), data)
	}); err != nil {
		s.log.Error().Err(err).Str("action", "setOptions").Msg("options write failed")
		return fmt.Errorf("save options: %w", err)
	}
	return nil
}
