// Package gallery holds the two layers between the UI and the photo
// store: Collection, a caching facade over the persistent store, and
// State, the tab/selection/filter state machine driving the gallery view.
package gallery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/snapvault/snapvault/internal/offsite"
	"github.com/snapvault/snapvault/internal/photostore"
)

// SortBy selects the photo sort key
type SortBy string

const (
	SortByDate SortBy = "date"
	SortByName SortBy = "name"
	SortBySize SortBy = "size"
)

// SortOrder selects ascending or descending order
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

const shareLinkTTL = 30 * time.Minute

// Collection is the facade UI-adjacent code talks to. It wraps the
// persistent store and keeps two independently maintained caches (all
// photos, favorites) consistent after every mutation, so repeated reads
// never re-query storage. Operations never panic and never return a raw
// error on the UI path: failures record a human-readable message
// retrievable via Err and report a falsy result.
type Collection struct {
	store   *photostore.Store
	offsite *offsite.Client
	log     zerolog.Logger

	mu        sync.Mutex
	photos    []photostore.Photo
	favorites []photostore.Photo
	lastErr   string
	collator  *collate.Collator
}

// NewCollection builds the facade. The offsite client may be a disabled
// client; SharePhoto then reports failure instead of panicking.
func NewCollection(store *photostore.Store, off *offsite.Client, log zerolog.Logger) *Collection {
	return &Collection{
		store:     store,
		offsite:   off,
		log:       log.With().Str("component", "gallery").Logger(),
		photos:    []photostore.Photo{},
		favorites: []photostore.Photo{},
		collator:  collate.New(language.Und),
	}
}

// LoadPhotos refreshes both caches from storage and returns the photos view
func (c *Collection) LoadPhotos(ctx context.Context) []photostore.Photo {
	c.clearErr()
	photos := c.store.GetAll(ctx)
	favorites := c.store.GetFavorites(ctx)

	c.mu.Lock()
	c.photos = photos
	c.favorites = favorites
	c.mu.Unlock()
	return c.Photos()
}

// Photos returns a copy of the all-photos cache
func (c *Collection) Photos() []photostore.Photo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]photostore.Photo{}, c.photos...)
}

// Favorites returns a copy of the favorites cache
func (c *Collection) Favorites() []photostore.Photo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]photostore.Photo{}, c.favorites...)
}

// Err returns the message recorded by the last failed operation, or ""
func (c *Collection) Err() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// SavePhoto persists a captured payload and prepends it to the cache
func (c *Collection) SavePhoto(ctx context.Context, dataURL, name string) *photostore.Photo {
	c.clearErr()
	photo, err := c.store.Save(ctx, dataURL, name)
	if err != nil {
		c.fail(err, "Failed to save photo")
		return nil
	}

	c.mu.Lock()
	c.photos = append([]photostore.Photo{*photo}, c.photos...)
	if photo.IsFavorite {
		c.favorites = insertByTimestamp(c.favorites, *photo)
	}
	c.mu.Unlock()
	return photo
}

// DeletePhoto removes one photo and filters it out of both caches
func (c *Collection) DeletePhoto(ctx context.Context, id string) bool {
	c.clearErr()
	if !c.store.Delete(ctx, id) {
		c.setErr("Failed to delete photo")
		return false
	}

	c.mu.Lock()
	c.photos = filterOut(c.photos, id)
	c.favorites = filterOut(c.favorites, id)
	c.mu.Unlock()
	return true
}

// DeletePhotos removes a batch and returns the count actually removed
func (c *Collection) DeletePhotos(ctx context.Context, ids []string) int {
	c.clearErr()
	removed := c.store.DeleteMany(ctx, ids)
	if removed == 0 && len(ids) > 0 {
		c.setErr("Failed to delete photos")
		return 0
	}

	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	c.mu.Lock()
	c.photos = filterOutSet(c.photos, drop)
	c.favorites = filterOutSet(c.favorites, drop)
	c.mu.Unlock()
	return removed
}

// ToggleFavorite flips a photo's favorite flag, returns the new state,
// and moves the record into or out of the favorites cache
func (c *Collection) ToggleFavorite(ctx context.Context, id string) bool {
	c.clearErr()
	favorite := c.store.ToggleFavorite(ctx, id)

	c.mu.Lock()
	var toggled *photostore.Photo
	for i := range c.photos {
		if c.photos[i].ID == id {
			c.photos[i].IsFavorite = favorite
			cp := c.photos[i]
			toggled = &cp
			break
		}
	}
	c.favorites = filterOut(c.favorites, id)
	if favorite && toggled != nil {
		c.favorites = insertByTimestamp(c.favorites, *toggled)
	}
	c.mu.Unlock()
	return favorite
}

// UpdatePhoto merges a patch into one photo. A missing id yields nil
// without recording an error.
func (c *Collection) UpdatePhoto(ctx context.Context, id string, patch photostore.Patch) *photostore.Photo {
	c.clearErr()
	updated, err := c.store.Update(ctx, id, patch)
	if err != nil {
		c.fail(err, "Failed to update photo")
		return nil
	}
	if updated == nil {
		return nil
	}

	c.mu.Lock()
	for i := range c.photos {
		if c.photos[i].ID == id {
			c.photos[i] = *updated
			break
		}
	}
	c.favorites = filterOut(c.favorites, id)
	if updated.IsFavorite {
		c.favorites = insertByTimestamp(c.favorites, *updated)
	}
	c.mu.Unlock()
	return updated
}

// PhotoByID serves from the cache first, then falls back to storage
func (c *Collection) PhotoByID(ctx context.Context, id string) *photostore.Photo {
	c.mu.Lock()
	for i := range c.photos {
		if c.photos[i].ID == id {
			cp := c.photos[i]
			c.mu.Unlock()
			return &cp
		}
	}
	c.mu.Unlock()
	return c.store.GetByID(ctx, id)
}

// SearchPhotos matches the query case-insensitively against names and
// tag entries. A blank query returns the full cache.
func (c *Collection) SearchPhotos(query string) []photostore.Photo {
	photos := c.Photos()
	if strings.TrimSpace(query) == "" {
		return photos
	}
	matched := make([]photostore.Photo, 0, len(photos))
	for _, p := range photos {
		if matchesQuery(p, query) {
			matched = append(matched, p)
		}
	}
	return matched
}

// SortPhotos returns a stably sorted copy of list. Missing names compare
// as empty strings, missing sizes as zero; desc inverts the comparator.
func (c *Collection) SortPhotos(list []photostore.Photo, by SortBy, order SortOrder) []photostore.Photo {
	sorted := append([]photostore.Photo{}, list...)

	c.mu.Lock()
	defer c.mu.Unlock()
	cmp := func(a, b photostore.Photo) int {
		switch by {
		case SortByName:
			return c.collator.CompareString(a.Name, b.Name)
		case SortBySize:
			switch {
			case a.Size < b.Size:
				return -1
			case a.Size > b.Size:
				return 1
			}
			return 0
		default: // SortByDate
			switch {
			case a.Timestamp < b.Timestamp:
				return -1
			case a.Timestamp > b.Timestamp:
				return 1
			}
			return 0
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if order == SortDesc {
			return cmp(sorted[i], sorted[j]) > 0
		}
		return cmp(sorted[i], sorted[j]) < 0
	})
	return sorted
}

// StorageInfo reports usage from the underlying store
func (c *Collection) StorageInfo(ctx context.Context) photostore.StorageInfo {
	return c.store.StorageInfo(ctx)
}

// ClearAllPhotos empties the store and both caches
func (c *Collection) ClearAllPhotos(ctx context.Context) bool {
	c.clearErr()
	if err := c.store.ClearAll(ctx); err != nil {
		c.fail(err, "Failed to clear photos")
		return false
	}
	c.mu.Lock()
	c.photos = []photostore.Photo{}
	c.favorites = []photostore.Photo{}
	c.mu.Unlock()
	return true
}

// DownloadPhoto returns a download filename and the decoded payload bytes
func (c *Collection) DownloadPhoto(ctx context.Context, id string) (string, []byte, bool) {
	c.clearErr()
	photo := c.PhotoByID(ctx, id)
	if photo == nil {
		c.setErr("Photo not found")
		return "", nil, false
	}
	return downloadName(*photo), photostore.Payload(photo.DataURL), true
}

// SharePhoto uploads the photo payload offsite and returns a
// time-limited share link
func (c *Collection) SharePhoto(ctx context.Context, id string) (string, bool) {
	c.clearErr()
	if !c.offsite.IsConfigured() {
		c.setErr("Sharing is not configured")
		return "", false
	}
	photo := c.PhotoByID(ctx, id)
	if photo == nil {
		c.setErr("Photo not found")
		return "", false
	}

	key := "shared/" + photo.ID + payloadExt(photo.DataURL)
	if err := c.offsite.Upload(ctx, key, payloadMime(photo.DataURL), photostore.Payload(photo.DataURL)); err != nil {
		c.fail(err, "Failed to share photo")
		return "", false
	}
	url, err := c.offsite.PresignDownload(ctx, key, shareLinkTTL)
	if err != nil {
		c.fail(err, "Failed to share photo")
		return "", false
	}
	return url, true
}

func (c *Collection) clearErr() {
	c.mu.Lock()
	c.lastErr = ""
	c.mu.Unlock()
}

func (c *Collection) setErr(msg string) {
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	c.log.Error().Str("action", "facade").Msg(msg)
}

func (c *Collection) fail(err error, fallback string) {
	msg := err.Error()
	if msg == "" {
		msg = fallback
	}
	c.mu.Lock()
	c.lastErr = msg
	c.mu.Unlock()
	c.log.Error().Err(err).Str("action", "facade").Msg(fallback)
}

func matchesQuery(p photostore.Photo, query string) bool {
	q := strings.ToLower(strings.TrimSpace(query))
	if strings.Contains(strings.ToLower(p.Name), q) {
		return true
	}
	for _, tag := range p.Tags {
		if strings.EqualFold(tag, q) {
			return true
		}
	}
	return false
}

func filterOut(list []photostore.Photo, id string) []photostore.Photo {
	out := list[:0]
	for _, p := range list {
		if p.ID != id {
			out = append(out, p)
		}
	}
	return out
}

func filterOutSet(list []photostore.Photo, drop map[string]struct{}) []photostore.Photo {
	out := list[:0]
	for _, p := range list {
		if _, gone := drop[p.ID]; !gone {
			out = append(out, p)
		}
	}
	return out
}

// insertByTimestamp keeps the favorites cache in most-recent-first order
func insertByTimestamp(list []photostore.Photo, p photostore.Photo) []photostore.Photo {
	at := len(list)
	for i := range list {
		if p.Timestamp >= list[i].Timestamp {
			at = i
			break
		}
	}
	list = append(list, photostore.Photo{})
	copy(list[at+1:], list[at:])
	list[at] = p
	return list
}

func downloadName(p photostore.Photo) string {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		name = fmt.Sprintf("photo-%d", p.Timestamp)
	}
	return name + payloadExt(p.DataURL)
}

func payloadMime(dataURL string) string {
	rest, ok := strings.CutPrefix(dataURL, "data:")
	if !ok {
		return "application/octet-stream"
	}
	mime, _, _ := strings.Cut(rest, ";")
	if mime == "" {
		return "application/octet-stream"
	}
	return mime
}

func payloadExt(dataURL string) string {
	switch payloadMime(dataURL) {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
