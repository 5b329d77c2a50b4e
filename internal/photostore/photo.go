package photostore

// Photo represents one captured image and its metadata
type Photo struct {
	ID         string `json:"id"`
	DataURL    string `json:"dataUrl"`
	Timestamp  int64  `json:"timestamp"`
	IsFavorite bool   `json:"isFavorite"`
	Name       string `json:"name,omitempty"`
	// Size is the decoded payload length in bytes, derived once at save time
	Size   int64    `json:"size"`
	Width  int      `json:"width"`
	Height int      `json:"height"`
	Tags   []string `json:"tags,omitempty"`
}

// Patch carries the fields an update is allowed to change. DataURL,
// Timestamp and the derived Size/Width/Height are never patched.
type Patch struct {
	Name       *string
	IsFavorite *bool
	Tags       *[]string
}

func (p *Photo) apply(patch Patch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.IsFavorite != nil {
		p.IsFavorite = *patch.IsFavorite
	}
	if patch.Tags != nil {
		p.Tags = *patch.Tags
	}
}

// StorageInfo summarizes store usage against the configured capacity
type StorageInfo struct {
	TotalPhotos    int     `json:"totalPhotos"`
	TotalSize      int64   `json:"totalSize"`
	MaxSize        int64   `json:"maxSize"`
	UsedPercentage float64 `json:"usedPercentage"`
	FavoriteCount  int     `json:"favoriteCount"`
}

// Options is the persisted storage configuration blob
type Options struct {
	MaxStorageMB       int     `json:"maxStorage"`
	CompressionQuality float64 `json:"compressionQuality"`
	AutoCleanup        bool    `json:"autoCleanup"`
	CleanupAfterDays   int     `json:"cleanupAfterDays"`
}

// DefaultOptions returns the options used until the caller persists its own
func DefaultOptions() Options {
	return Options{
		MaxStorageMB:       500,
		CompressionQuality: 0.8,
		AutoCleanup:        true,
		CleanupAfterDays:   30,
	}
}

func (o Options) maxSizeBytes() int64 {
	return int64(o.MaxStorageMB) * 1024 * 1024
}
