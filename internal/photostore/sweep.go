package photostore

import (
	"context"
	"strconv"
	"strings"

	"github.com/dgraph-io/badger/v4"
)

const dayMillis = 24 * 60 * 60 * 1000

// sweep removes non-favorited records older than the configured age.
// It runs at initialization, after migration. Failures are logged and
// swallowed: cleanup must never block startup.
func (s *Store) sweep(ctx context.Context) {
	opts := s.GetOptions(ctx)
	if !opts.AutoCleanup {
		return
	}
	cutoff := s.now().UnixMilli() - int64(opts.CleanupAfterDays)*dayMillis

	var aged []string
	err := s.db.View(func(txn *badger.Txn) error {
		iterOpts := badger.DefaultIteratorOptions
		it := txn.NewIterator(iterOpts)
		defer it.Close()

		// the timestamp index is ordered, so the walk stops at the cutoff
		prefix := []byte(tsIndexPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			ts, id, ok := splitTsKey(it.Item().Key())
			if !ok {
				continue
			}
			if ts > cutoff {
				break
			}
			p, err := readPhoto(txn, id)
			if err != nil {
				return err
			}
			if p != nil && !p.IsFavorite {
				aged = append(aged, id)
			}
		}
		return nil
	})
	if err != nil {
		s.log.Error().Err(err).Str("action", "sweep").Msg("retention scan failed")
		return
	}
	if len(aged) == 0 {
		return
	}

	removed := s.DeleteMany(ctx, aged)
	s.log.Info().Str("action", "sweep").Int("removed", removed).Int64("cutoff", cutoff).Msg("aged photos removed")
}

func splitTsKey(key []byte) (ts int64, id string, ok bool) {
	rest := strings.TrimPrefix(string(key), tsIndexPrefix)
	tsPart, idPart, found := strings.Cut(rest, ":")
	if !found {
		return 0, "", false
	}
	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return 0, "", false
	}
	return ts, idPart, true
}
