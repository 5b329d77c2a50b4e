package gallery

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/snapvault/snapvault/internal/photostore"
)

// Tab identifies the active gallery tab
type Tab string

const (
	TabCapture   Tab = "capture"
	TabGallery   Tab = "gallery"
	TabFavorites Tab = "favorites"
)

// Filter narrows the current photo view when no search is active
type Filter string

const (
	FilterAll       Filter = "all"
	FilterFavorites Filter = "favorites"
	FilterRecent    Filter = "recent"
)

// Direction moves the photo selection through the current view
type Direction string

const (
	Next     Direction = "next"
	Previous Direction = "previous"
)

const recentWindow = 24 * time.Hour

// State is the gallery state machine: active tab, the photo opened for
// detail view, the multi-select set, and the search/sort/filter
// parameters. It holds no storage state of its own; the photo lists it
// computes always derive from the Collection caches.
type State struct {
	col *Collection

	mu          sync.Mutex
	activeTab   Tab
	selected    *photostore.Photo
	selectedIDs map[string]struct{}
	searchQuery string
	sortBy      SortBy
	sortOrder   SortOrder
	filter      Filter

	now func() time.Time
}

// NewState starts on the capture tab with date-descending sort and no filter
func NewState(col *Collection) *State {
	return &State{
		col:         col,
		activeTab:   TabCapture,
		selectedIDs: map[string]struct{}{},
		sortBy:      SortByDate,
		sortOrder:   SortDesc,
		filter:      FilterAll,
		now:         time.Now,
	}
}

// SetActiveTab switches tabs. Every switch clears the opened photo, the
// multi-select set, and with it selection mode.
func (g *State) SetActiveTab(tab Tab) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.activeTab = tab
	g.selected = nil
	g.selectedIDs = map[string]struct{}{}
}

// ActiveTab returns the current tab
func (g *State) ActiveTab() Tab {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.activeTab
}

// SetSearchQuery updates the search term applied by CurrentPhotos
func (g *State) SetSearchQuery(q string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.searchQuery = q
}

// SetSort updates the sort parameters applied by CurrentPhotos
func (g *State) SetSort(by SortBy, order SortOrder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sortBy = by
	g.sortOrder = order
}

// SetFilter updates the category filter applied by CurrentPhotos
func (g *State) SetFilter(f Filter) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filter = f
}

// CurrentPhotos computes the photo list for the active tab: the capture
// tab is always empty; gallery and favorites start from the matching
// cache, apply the search query when one is set (search supersedes the
// category filter), otherwise the category filter, then sort.
func (g *State) CurrentPhotos() []photostore.Photo {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.currentPhotosLocked()
}

func (g *State) currentPhotosLocked() []photostore.Photo {
	var base []photostore.Photo
	switch g.activeTab {
	case TabGallery:
		base = g.col.Photos()
	case TabFavorites:
		base = g.col.Favorites()
	default:
		return []photostore.Photo{}
	}

	if strings.TrimSpace(g.searchQuery) != "" {
		matched := make([]photostore.Photo, 0, len(base))
		for _, p := range base {
			if matchesQuery(p, g.searchQuery) {
				matched = append(matched, p)
			}
		}
		base = matched
	} else {
		switch g.filter {
		case FilterFavorites:
			kept := make([]photostore.Photo, 0, len(base))
			for _, p := range base {
				if p.IsFavorite {
					kept = append(kept, p)
				}
			}
			base = kept
		case FilterRecent:
			cutoff := g.now().Add(-recentWindow).UnixMilli()
			kept := make([]photostore.Photo, 0, len(base))
			for _, p := range base {
				if p.Timestamp >= cutoff {
					kept = append(kept, p)
				}
			}
			base = kept
		}
	}

	return g.col.SortPhotos(base, g.sortBy, g.sortOrder)
}

// SelectPhoto opens a photo from the current view for detail display
func (g *State) SelectPhoto(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.currentPhotosLocked() {
		if p.ID == id {
			cp := p
			g.selected = &cp
			return true
		}
	}
	return false
}

// ClearSelectedPhoto closes the detail view
func (g *State) ClearSelectedPhoto() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.selected = nil
}

// SelectedPhoto returns a copy of the opened photo, or nil
func (g *State) SelectedPhoto() *photostore.Photo {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.selected == nil {
		return nil
	}
	cp := *g.selected
	return &cp
}

// TogglePhotoSelection adds or removes one id from the multi-select set
func (g *State) TogglePhotoSelection(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.selectedIDs[id]; ok {
		delete(g.selectedIDs, id)
	} else {
		g.selectedIDs[id] = struct{}{}
	}
}

// SelectAllPhotos selects every photo in the current view. No-op on the
// capture tab.
func (g *State) SelectAllPhotos() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.activeTab == TabCapture {
		return
	}
	for _, p := range g.currentPhotosLocked() {
		g.selectedIDs[p.ID] = struct{}{}
	}
}

// SelectedIDs returns a copy of the multi-select set
func (g *State) SelectedIDs() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.selectedIDsLocked()
}

func (g *State) selectedIDsLocked() []string {
	ids := make([]string, 0, len(g.selectedIDs))
	for id := range g.selectedIDs {
		ids = append(ids, id)
	}
	return ids
}

// SelectionMode is derived: true whenever the multi-select set is non-empty
func (g *State) SelectionMode() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.selectedIDs) > 0
}

// Navigate moves the opened photo one position through the current view,
// wrapping past either end. No-op when no photo is open or the opened
// photo is no longer in the view.
func (g *State) Navigate(dir Direction) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.selected == nil {
		return
	}

	photos := g.currentPhotosLocked()
	idx := -1
	for i, p := range photos {
		if p.ID == g.selected.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return
	}

	switch dir {
	case Next:
		idx = (idx + 1) % len(photos)
	case Previous:
		idx = (idx - 1 + len(photos)) % len(photos)
	default:
		return
	}
	cp := photos[idx]
	g.selected = &cp
}

// HandleCapture saves a captured payload through the facade and, on
// success, forces the gallery tab so the new photo is visible immediately
func (g *State) HandleCapture(ctx context.Context, dataURL, name string) *photostore.Photo {
	photo := g.col.SavePhoto(ctx, dataURL, name)
	if photo == nil {
		return nil
	}
	g.mu.Lock()
	g.activeTab = TabGallery
	g.mu.Unlock()
	return photo
}

// HandleBulkDelete deletes the selected photos, clears the selection,
// and closes the detail view when the opened photo was among them.
// Returns the count actually deleted.
func (g *State) HandleBulkDelete(ctx context.Context) int {
	g.mu.Lock()
	ids := g.selectedIDsLocked()
	g.mu.Unlock()
	if len(ids) == 0 {
		return 0
	}

	removed := g.col.DeletePhotos(ctx, ids)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.selected != nil {
		for _, id := range ids {
			if id == g.selected.ID {
				g.selected = nil
				break
			}
		}
	}
	g.selectedIDs = map[string]struct{}{}
	return removed
}

// HandleBulkFavorite brings every selected photo to the requested
// favorite state, toggling only the ones that do not already match, then
// clears the selection. Returns the count of photos actually toggled.
func (g *State) HandleBulkFavorite(ctx context.Context, makeFavorite bool) int {
	g.mu.Lock()
	ids := g.selectedIDsLocked()
	g.mu.Unlock()

	toggled := 0
	for _, id := range ids {
		p := g.col.PhotoByID(ctx, id)
		if p == nil || p.IsFavorite == makeFavorite {
			continue
		}
		g.col.ToggleFavorite(ctx, id)
		toggled++
	}

	g.mu.Lock()
	g.selectedIDs = map[string]struct{}{}
	g.mu.Unlock()
	return toggled
}
