// Package app wires the photo collection, gallery state, and snapshot
// operations to an HTTP API consumed by the dashboard UI.
package app

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/snapvault/snapvault/internal/config"
	"github.com/snapvault/snapvault/internal/gallery"
	"github.com/snapvault/snapvault/internal/offsite"
	"github.com/snapvault/snapvault/internal/photostore"
)

type App struct {
	cfg     config.Config
	store   *photostore.Store
	col     *gallery.Collection
	view    *gallery.State
	offsite *offsite.Client
	log     zerolog.Logger
}

func New(cfg config.Config, store *photostore.Store, col *gallery.Collection, view *gallery.State, off *offsite.Client, log zerolog.Logger) *App {
	return &App{
		cfg:     cfg,
		store:   store,
		col:     col,
		view:    view,
		offsite: off,
		log:     log.With().Str("component", "app").Logger(),
	}
}

func (a *App) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   a.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(api chi.Router) {
		api.Get("/photos", a.handleListPhotos)
		api.Post("/photos", a.handleSavePhoto)
		api.Post("/photos/bulk/delete", a.handleBulkDelete)
		api.Get("/photos/favorites", a.handleListFavorites)
		api.Get("/photos/{id}", a.handleGetPhoto)
		api.Patch("/photos/{id}", a.handleUpdatePhoto)
		api.Delete("/photos/{id}", a.handleDeletePhoto)
		api.Post("/photos/{id}/favorite", a.handleToggleFavorite)
		api.Get("/photos/{id}/download", a.handleDownloadPhoto)
		api.Post("/photos/{id}/share", a.handleSharePhoto)

		api.Get("/storage", a.handleStorageInfo)
		api.Get("/storage/options", a.handleGetOptions)
		api.Post("/storage/options", a.handleSetOptions)
		api.Delete("/storage", a.handleClearAll)

		api.Get("/snapshot", a.handleExportSnapshot)
		api.Post("/snapshot", a.handleImportSnapshot)
		api.Post("/snapshot/offsite", a.handleOffsiteSnapshot)

		api.Route("/view", func(view chi.Router) {
			view.Get("/", a.handleViewState)
			view.Get("/photos", a.handleViewPhotos)
			view.Post("/tab", a.handleSetTab)
			view.Post("/search", a.handleSetSearch)
			view.Post("/sort", a.handleSetSort)
			view.Post("/filter", a.handleSetFilter)
			view.Post("/select", a.handleSelectPhoto)
			view.Delete("/select", a.handleClearSelected)
			view.Post("/selection/toggle", a.handleToggleSelection)
			view.Post("/selection/all", a.handleSelectAll)
			view.Post("/navigate", a.handleNavigate)
			view.Post("/capture", a.handleCapture)
			view.Post("/bulk/delete", a.handleViewBulkDelete)
			view.Post("/bulk/favorite", a.handleViewBulkFavorite)
		})
	})

	return r
}

func (a *App) allowedOrigins() []string {
	if len(a.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return a.cfg.AllowedOrigins
}

func (a *App) handleListPhotos(w http.ResponseWriter, r *http.Request) {
	if query := r.URL.Query().Get("q"); strings.TrimSpace(query) != "" {
		writeJSON(w, http.StatusOK, map[string]any{"photos": a.col.SearchPhotos(query)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"photos": a.col.Photos()})
}

func (a *App) handleListFavorites(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"photos": a.col.Favorites()})
}

type savePhotoRequest struct {
	DataURL string `json:"dataUrl"`
	Name    string `json:"name"`
}

func (r savePhotoRequest) Validate() error {
	if strings.TrimSpace(r.DataURL) == "" {
		return errors.New("dataUrl is required")
	}
	return nil
}

func (a *App) handleSavePhoto(w http.ResponseWriter, r *http.Request) {
	var req savePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	photo := a.col.SavePhoto(r.Context(), req.DataURL, req.Name)
	if photo == nil {
		writeError(w, http.StatusBadRequest, errors.New(a.col.Err()))
		return
	}
	writeJSON(w, http.StatusCreated, photo)
}

func (a *App) handleGetPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	photo := a.col.PhotoByID(r.Context(), id)
	if photo == nil {
		writeError(w, http.StatusNotFound, fmt.Errorf("photo %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

type updatePhotoRequest struct {
	Name       *string   `json:"name"`
	IsFavorite *bool     `json:"isFavorite"`
	Tags       *[]string `json:"tags"`
}

func (a *App) handleUpdatePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updatePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}

	patch := photostore.Patch{Name: req.Name, IsFavorite: req.IsFavorite, Tags: req.Tags}
	photo := a.col.UpdatePhoto(r.Context(), id, patch)
	if photo == nil {
		if msg := a.col.Err(); msg != "" {
			writeError(w, http.StatusBadRequest, errors.New(msg))
			return
		}
		writeError(w, http.StatusNotFound, fmt.Errorf("photo %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, photo)
}

func (a *App) handleDeletePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !a.col.DeletePhoto(r.Context(), id) {
		writeError(w, http.StatusNotFound, fmt.Errorf("photo %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

type bulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

func (r bulkDeleteRequest) Validate() error {
	if len(r.IDs) == 0 {
		return errors.New("ids is required")
	}
	return nil
}

func (a *App) handleBulkDelete(w http.ResponseWriter, r *http.Request) {
	var req bulkDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	removed := a.col.DeletePhotos(r.Context(), req.IDs)
	writeJSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

func (a *App) handleToggleFavorite(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	favorite := a.col.ToggleFavorite(r.Context(), id)
	writeJSON(w, http.StatusOK, map[string]any{"isFavorite": favorite})
}

func (a *App) handleDownloadPhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name, data, ok := a.col.DownloadPhoto(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New(a.col.Err()))
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) handleSharePhoto(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	url, ok := a.col.SharePhoto(r.Context(), id)
	if !ok {
		writeError(w, http.StatusBadGateway, errors.New(a.col.Err()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (a *App) handleStorageInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.col.StorageInfo(r.Context()))
}

func (a *App) handleGetOptions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.store.GetOptions(r.Context()))
}

type setOptionsRequest struct {
	photostore.Options
}

func (r setOptionsRequest) Validate() error {
	if r.MaxStorageMB <= 0 {
		return errors.New("maxStorage must be positive")
	}
	if r.CompressionQuality < 0.1 || r.CompressionQuality > 1.0 {
		return errors.New("compressionQuality must be between 0.1 and 1.0")
	}
	if r.CleanupAfterDays <= 0 {
		return errors.New("cleanupAfterDays must be positive")
	}
	return nil
}

func (a *App) handleSetOptions(w http.ResponseWriter, r *http.Request) {
	var req setOptionsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.store.SetOptions(r.Context(), req.Options); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, req.Options)
}

func (a *App) handleClearAll(w http.ResponseWriter, r *http.Request) {
	if !a.col.ClearAllPhotos(r.Context()) {
		writeError(w, http.StatusInternalServerError, errors.New(a.col.Err()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (a *App) handleExportSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := a.store.Export(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", snapshotName(time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *App) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	data, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	added, err := a.store.Import(r.Context(), data)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": added})
}

func (a *App) handleOffsiteSnapshot(w http.ResponseWriter, r *http.Request) {
	if !a.offsite.IsConfigured() {
		writeError(w, http.StatusBadRequest, errors.New("offsite storage is not configured"))
		return
	}
	data, err := a.store.Export(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	key := "snapshots/" + snapshotName(time.Now())
	if err := a.offsite.Upload(r.Context(), key, "application/json", data); err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	a.log.Info().Str("key", key).Int("bytes", len(data)).Msg("snapshot uploaded offsite")
	writeJSON(w, http.StatusOK, map[string]any{"key": key})
}

func (a *App) handleViewState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"activeTab":     a.view.ActiveTab(),
		"selectedPhoto": a.view.SelectedPhoto(),
		"selectedIds":   a.view.SelectedIDs(),
		"selectionMode": a.view.SelectionMode(),
	})
}

func (a *App) handleViewPhotos(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"photos": a.view.CurrentPhotos()})
}

type setTabRequest struct {
	Tab gallery.Tab `json:"tab"`
}

func (r setTabRequest) Validate() error {
	switch r.Tab {
	case gallery.TabCapture, gallery.TabGallery, gallery.TabFavorites:
		return nil
	}
	return fmt.Errorf("unknown tab: %s", r.Tab)
}

func (a *App) handleSetTab(w http.ResponseWriter, r *http.Request) {
	var req setTabRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.view.SetActiveTab(req.Tab)
	writeJSON(w, http.StatusOK, map[string]any{"activeTab": req.Tab})
}

func (a *App) handleSetSearch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	a.view.SetSearchQuery(req.Query)
	writeJSON(w, http.StatusOK, map[string]any{"query": req.Query})
}

type setSortRequest struct {
	By    gallery.SortBy    `json:"by"`
	Order gallery.SortOrder `json:"order"`
}

func (r setSortRequest) Validate() error {
	switch r.By {
	case gallery.SortByDate, gallery.SortByName, gallery.SortBySize:
	default:
		return fmt.Errorf("unknown sort key: %s", r.By)
	}
	switch r.Order {
	case gallery.SortAsc, gallery.SortDesc:
	default:
		return fmt.Errorf("unknown sort order: %s", r.Order)
	}
	return nil
}

func (a *App) handleSetSort(w http.ResponseWriter, r *http.Request) {
	var req setSortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.view.SetSort(req.By, req.Order)
	writeJSON(w, http.StatusOK, map[string]any{"by": req.By, "order": req.Order})
}

type setFilterRequest struct {
	Filter gallery.Filter `json:"filter"`
}

func (r setFilterRequest) Validate() error {
	switch r.Filter {
	case gallery.FilterAll, gallery.FilterFavorites, gallery.FilterRecent:
		return nil
	}
	return fmt.Errorf("unknown filter: %s", r.Filter)
}

func (a *App) handleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req setFilterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.view.SetFilter(req.Filter)
	writeJSON(w, http.StatusOK, map[string]any{"filter": req.Filter})
}

type selectPhotoRequest struct {
	ID string `json:"id"`
}

func (r selectPhotoRequest) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return errors.New("id is required")
	}
	return nil
}

func (a *App) handleSelectPhoto(w http.ResponseWriter, r *http.Request) {
	var req selectPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if !a.view.SelectPhoto(req.ID) {
		writeError(w, http.StatusNotFound, fmt.Errorf("photo %s is not in the current view", req.ID))
		return
	}
	writeJSON(w, http.StatusOK, a.view.SelectedPhoto())
}

func (a *App) handleClearSelected(w http.ResponseWriter, r *http.Request) {
	a.view.ClearSelectedPhoto()
	writeJSON(w, http.StatusOK, map[string]any{"selectedPhoto": nil})
}

func (a *App) handleToggleSelection(w http.ResponseWriter, r *http.Request) {
	var req selectPhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.view.TogglePhotoSelection(req.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"selectedIds":   a.view.SelectedIDs(),
		"selectionMode": a.view.SelectionMode(),
	})
}

func (a *App) handleSelectAll(w http.ResponseWriter, r *http.Request) {
	a.view.SelectAllPhotos()
	writeJSON(w, http.StatusOK, map[string]any{
		"selectedIds":   a.view.SelectedIDs(),
		"selectionMode": a.view.SelectionMode(),
	})
}

type navigateRequest struct {
	Direction gallery.Direction `json:"direction"`
}

func (r navigateRequest) Validate() error {
	switch r.Direction {
	case gallery.Next, gallery.Previous:
		return nil
	}
	return fmt.Errorf("unknown direction: %s", r.Direction)
}

func (a *App) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req navigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	a.view.Navigate(req.Direction)
	writeJSON(w, http.StatusOK, map[string]any{"selectedPhoto": a.view.SelectedPhoto()})
}

func (a *App) handleCapture(w http.ResponseWriter, r *http.Request) {
	var req savePhotoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	photo := a.view.HandleCapture(r.Context(), req.DataURL, req.Name)
	if photo == nil {
		writeError(w, http.StatusBadRequest, errors.New(a.col.Err()))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"photo":     photo,
		"activeTab": a.view.ActiveTab(),
	})
}

func (a *App) handleViewBulkDelete(w http.ResponseWriter, r *http.Request) {
	removed := a.view.HandleBulkDelete(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"deleted": removed})
}

type bulkFavoriteRequest struct {
	Favorite bool `json:"favorite"`
}

func (a *App) handleViewBulkFavorite(w http.ResponseWriter, r *http.Request) {
	var req bulkFavoriteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid payload: %w", err))
		return
	}
	toggled := a.view.HandleBulkFavorite(r.Context(), req.Favorite)
	writeJSON(w, http.StatusOK, map[string]any{"toggled": toggled})
}

func snapshotName(now time.Time) string {
	return fmt.Sprintf("snapvault-%s.json", now.UTC().Format("20060102-150405"))
}

func readBody(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{
		"error":  err.Error(),
		"status": status,
	})
}
