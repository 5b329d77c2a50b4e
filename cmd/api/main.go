package main

import (
	"context"
	"net/http"

	"github.com/joho/godotenv"

	"github.com/snapvault/snapvault/internal/app"
	"github.com/snapvault/snapvault/internal/config"
	"github.com/snapvault/snapvault/internal/gallery"
	"github.com/snapvault/snapvault/internal/logging"
	"github.com/snapvault/snapvault/internal/offsite"
	"github.com/snapvault/snapvault/internal/photostore"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logging.New(cfg.LogLevel, cfg.LogFormat)

	ctx := context.Background()
	store := photostore.New(cfg.DataDir, log)
	if err := store.Initialize(ctx); err != nil {
		// storage-unavailable is non-fatal: the API stays up and
		// operations report failures per-call
		log.Warn().Err(err).Msg("photo storage unavailable, continuing without persistence")
	}
	defer store.Close()

	off, err := offsite.NewClient(cfg.OffsiteEndpoint, cfg.OffsiteBucket, cfg.OffsiteKeyID, cfg.OffsiteKeySecret)
	if err != nil {
		log.Warn().Err(err).Msg("offsite storage initialization failed, continuing without it")
		off, _ = offsite.NewClient("", "", "", "")
	}

	col := gallery.NewCollection(store, off, log)
	col.LoadPhotos(ctx)
	view := gallery.NewState(col)

	a := app.New(cfg, store, col, view, off, log)
	log.Info().Str("address", cfg.Address).Msg("snapvault API listening")
	if err := http.ListenAndServe(cfg.Address, a.Router()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
