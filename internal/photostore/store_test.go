package photostore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// testClock hands out strictly increasing timestamps one second apart
type testClock struct {
	t time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestStore(t *testing.T) (*Store, *testClock) {
	t.Helper()
	clock := newTestClock()
	s := New(t.TempDir(), zerolog.Nop(),
		WithClock(clock.Now),
		WithSizeFunc(func(dataURL string) int64 { return int64(len(dataURL)) }),
		WithDimensionsFunc(func(string) (int, int) { return 4, 3 }),
	)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func TestSaveRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, "payload-data", "Holiday")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}
	if saved.ID == "" {
		t.Error("Save() did not assign an id")
	}
	if saved.Timestamp == 0 {
		t.Error("Save() did not assign a timestamp")
	}

	got := s.GetByID(ctx, saved.ID)
	if got == nil {
		t.Fatal("GetByID() returned nil for a saved photo")
	}
	if got.DataURL != "payload-data" {
		t.Errorf("DataURL = %q, want %q", got.DataURL, "payload-data")
	}
	if got.Name != "Holiday" {
		t.Errorf("Name = %q, want %q", got.Name, "Holiday")
	}
	if got.Size != int64(len("payload-data")) {
		t.Errorf("Size = %d, want %d", got.Size, len("payload-data"))
	}
	if got.Width != 4 || got.Height != 3 {
		t.Errorf("dimensions = %dx%d, want 4x3", got.Width, got.Height)
	}
	if got.IsFavorite {
		t.Error("new photo should not be a favorite")
	}
}

func TestGetAllOrdersNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.Save(ctx, fmt.Sprintf("data-%d", i), fmt.Sprintf("photo-%d", i)); err != nil {
			t.Fatalf("Save() failed: %v", err)
		}
	}

	all := s.GetAll(ctx)
	if len(all) != 3 {
		t.Fatalf("GetAll() returned %d photos, want 3", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i-1].Timestamp < all[i].Timestamp {
			t.Errorf("GetAll() not newest-first at index %d: %d < %d", i, all[i-1].Timestamp, all[i].Timestamp)
		}
	}
	if all[0].Name != "photo-2" {
		t.Errorf("newest photo = %q, want photo-2", all[0].Name)
	}
}

func TestGetByIDMissing(t *testing.T) {
	s, _ := newTestStore(t)
	if got := s.GetByID(context.Background(), "no-such-id"); got != nil {
		t.Errorf("GetByID(missing) = %+v, want nil", got)
	}
}

func TestUpdate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, "data", "before")
	if err != nil {
		t.Fatalf("Save() failed: %v", err)
	}

	name := "after"
	fav := true
	tags := []string{"trip", "beach"}
	updated, err := s.Update(ctx, saved.ID, Patch{Name: &name, IsFavorite: &fav, Tags: &tags})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Name != "after" || !updated.IsFavorite || len(updated.Tags) != 2 {
		t.Errorf("Update() = %+v, want name=after favorite=true tags=2", updated)
	}

	// derived fields survive untouched
	if updated.Size != saved.Size || updated.Width != saved.Width || updated.Timestamp != saved.Timestamp {
		t.Error("Update() changed derived or immutable fields")
	}

	missing, err := s.Update(ctx, "no-such-id", Patch{Name: &name})
	if err != nil {
		t.Fatalf("Update(missing) errored: %v", err)
	}
	if missing != nil {
		t.Errorf("Update(missing) = %+v, want nil", missing)
	}
}

func TestDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, _ := s.Save(ctx, "data", "")
	if !s.Delete(ctx, saved.ID) {
		t.Error("Delete(existing) = false, want true")
	}
	if s.Delete(ctx, saved.ID) {
		t.Error("Delete(already deleted) = true, want false")
	}
	if got := s.GetByID(ctx, saved.ID); got != nil {
		t.Error("photo still readable after delete")
	}
	if len(s.GetAll(ctx)) != 0 {
		t.Error("GetAll() not empty after delete")
	}
}

func TestDeleteMany(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		p, _ := s.Save(ctx, fmt.Sprintf("data-%d", i), "")
		ids = append(ids, p.ID)
	}

	removed := s.DeleteMany(ctx, []string{ids[0], "no-such-id", ids[2]})
	if removed != 2 {
		t.Errorf("DeleteMany() = %d, want 2 (absent ids skipped)", removed)
	}
	if remaining := s.GetAll(ctx); len(remaining) != 1 || remaining[0].ID != ids[1] {
		t.Errorf("unexpected photos after batch delete: %+v", remaining)
	}
	if s.DeleteMany(ctx, nil) != 0 {
		t.Error("DeleteMany(nil) != 0")
	}
}

func TestToggleFavorite(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	saved, _ := s.Save(ctx, "data", "")
	if !s.ToggleFavorite(ctx, saved.ID) {
		t.Error("first toggle = false, want true")
	}
	if s.ToggleFavorite(ctx, saved.ID) {
		t.Error("second toggle = true, want false")
	}
	if s.ToggleFavorite(ctx, "no-such-id") {
		t.Error("toggle on missing id = true, want false")
	}
}

// the favorites view must match a fresh filter of the full store after
// any sequence of saves, toggles, and deletes
func TestFavoritesViewConsistency(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		p, _ := s.Save(ctx, fmt.Sprintf("data-%d", i), "")
		ids = append(ids, p.ID)
	}
	s.ToggleFavorite(ctx, ids[0])
	s.ToggleFavorite(ctx, ids[2])
	s.ToggleFavorite(ctx, ids[4])
	s.ToggleFavorite(ctx, ids[2]) // back off
	s.Delete(ctx, ids[4])         // favorited then deleted

	want := map[string]bool{}
	for _, p := range s.GetAll(ctx) {
		if p.IsFavorite {
			want[p.ID] = true
		}
	}

	favorites := s.GetFavorites(ctx)
	if len(favorites) != len(want) {
		t.Fatalf("GetFavorites() returned %d photos, want %d", len(favorites), len(want))
	}
	for _, p := range favorites {
		if !want[p.ID] {
			t.Errorf("GetFavorites() contains %s which is not favorited", p.ID)
		}
		if !p.IsFavorite {
			t.Errorf("GetFavorites() returned non-favorite %s", p.ID)
		}
	}
}

func TestQuotaBoundary(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	// 10 MB cap; the injected size estimator scales payload length by
	// 1024 so exact percentages stay small to construct
	if err := s.SetOptions(ctx, Options{MaxStorageMB: 10, CompressionQuality: 0.8, AutoCleanup: false, CleanupAfterDays: 30}); err != nil {
		t.Fatalf("SetOptions() failed: %v", err)
	}
	s.sizeOf = func(dataURL string) int64 { return int64(len(dataURL)) * 1024 }

	maxSize := int64(10 * 1024 * 1024)

	// lands exactly on 90% usage: allowed (pre-write usage is zero)
	exact90 := strings.Repeat("a", int(maxSize*9/10/1024))
	if _, err := s.Save(ctx, exact90, ""); err != nil {
		t.Fatalf("save up to exactly 90%% rejected: %v", err)
	}

	info := s.StorageInfo(ctx)
	if info.TotalSize != maxSize*9/10 {
		t.Fatalf("TotalSize = %d, want %d", info.TotalSize, maxSize*9/10)
	}

	// usage is exactly 90%, not above it: the next save is still allowed
	if _, err := s.Save(ctx, strings.Repeat("b", 10), ""); err != nil {
		t.Fatalf("save at exactly 90%% usage rejected: %v", err)
	}

	// usage now strictly exceeds 90%: further saves are rejected and
	// nothing is written
	before := s.StorageInfo(ctx)
	_, err := s.Save(ctx, "c", "")
	if !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("save above quota: err = %v, want ErrQuotaExceeded", err)
	}
	after := s.StorageInfo(ctx)
	if after.TotalSize != before.TotalSize || after.TotalPhotos != before.TotalPhotos {
		t.Error("rejected save changed store contents")
	}
}

func TestStorageInfo(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p1, _ := s.Save(ctx, "aaaa", "")
	s.Save(ctx, "bbbbbbbb", "")
	s.ToggleFavorite(ctx, p1.ID)

	info := s.StorageInfo(ctx)
	if info.TotalPhotos != 2 {
		t.Errorf("TotalPhotos = %d, want 2", info.TotalPhotos)
	}
	if info.TotalSize != 12 {
		t.Errorf("TotalSize = %d, want 12", info.TotalSize)
	}
	if info.FavoriteCount != 1 {
		t.Errorf("FavoriteCount = %d, want 1", info.FavoriteCount)
	}
	if info.MaxSize != int64(DefaultOptions().MaxStorageMB)*1024*1024 {
		t.Errorf("MaxSize = %d, want default", info.MaxSize)
	}
	if info.UsedPercentage <= 0 {
		t.Errorf("UsedPercentage = %f, want > 0", info.UsedPercentage)
	}
}

func TestClearAll(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	p, _ := s.Save(ctx, "data", "")
	s.ToggleFavorite(ctx, p.ID)
	if err := s.ClearAll(ctx); err != nil {
		t.Fatalf("ClearAll() failed: %v", err)
	}
	if len(s.GetAll(ctx)) != 0 || len(s.GetFavorites(ctx)) != 0 {
		t.Error("store not empty after ClearAll()")
	}
	// options survive a clear
	if opts := s.GetOptions(ctx); opts != DefaultOptions() {
		t.Errorf("options changed by ClearAll(): %+v", opts)
	}
}

func TestOptionsRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if got := s.GetOptions(ctx); got != DefaultOptions() {
		t.Errorf("GetOptions() before write = %+v, want defaults", got)
	}

	want := Options{MaxStorageMB: 100, CompressionQuality: 0.5, AutoCleanup: false, CleanupAfterDays: 7}
	if err := s.SetOptions(ctx, want); err != nil {
		t.Fatalf("SetOptions() failed: %v", err)
	}
	if got := s.GetOptions(ctx); got != want {
		t.Errorf("GetOptions() = %+v, want %+v", got, want)
	}
}

func TestUnavailableStore(t *testing.T) {
	// never initialized: every operation degrades instead of panicking
	s := New(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	if got := s.GetAll(ctx); len(got) != 0 {
		t.Errorf("GetAll() on unavailable store = %d photos, want 0", len(got))
	}
	if _, err := s.Save(ctx, "data", ""); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Save() err = %v, want ErrUnavailable", err)
	}
	if s.Delete(ctx, "id") {
		t.Error("Delete() on unavailable store = true")
	}
	if s.ToggleFavorite(ctx, "id") {
		t.Error("ToggleFavorite() on unavailable store = true")
	}
	if info := s.StorageInfo(ctx); info.TotalPhotos != 0 {
		t.Error("StorageInfo() on unavailable store reported photos")
	}
}

func TestConcurrentInitialize(t *testing.T) {
	s := New(t.TempDir(), zerolog.Nop())
	ctx := context.Background()

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() { done <- s.Initialize(ctx) }()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatalf("concurrent Initialize() failed: %v", err)
		}
	}
	t.Cleanup(func() { s.Close() })

	if _, err := s.Save(ctx, "data", ""); err != nil {
		t.Fatalf("Save() after concurrent init failed: %v", err)
	}
}
