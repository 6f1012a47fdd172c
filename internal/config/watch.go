package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// CatalogHandler applies a freshly loaded catalog.
type CatalogHandler func(ctx context.Context, c *Catalog) error

// WatchCatalog applies catalog.yaml once, then polls its modification time and
// re-applies it on change until ctx is done. Only the initial load and apply
// are reported to the caller; later failures are logged and the previous
// catalog stays in effect.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, apply CatalogHandler) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}
	logger = logger.With().Str("component", "catalog_watch").Str("path", path).Logger()

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	cat, err := LoadCatalog(path)
	if err != nil {
		return err
	}
	if err := apply(ctx, cat); err != nil {
		return err
	}
	logger.Info().Str("catalog", cat.String()).Msg("catalog applied")

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			info, err := os.Stat(path)
			if err != nil || !info.ModTime().After(lastMod) {
				continue
			}
			lastMod = info.ModTime()

			cat, err := LoadCatalog(path)
			if err != nil {
				logger.Error().Err(err).Msg("catalog reload rejected")
				continue
			}
			if err := apply(ctx, cat); err != nil {
				logger.Error().Err(err).Msg("catalog apply failed")
				continue
			}
			logger.Info().Str("catalog", cat.String()).Msg("catalog reloaded")
		}
	}()

	return nil
}
