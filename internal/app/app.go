// Package app wires the services shared by the CLI and the server.
package app

import (
	"context"
	"net/http"
	"time"

	"offerdesk/internal/batch"
	"offerdesk/internal/compose"
	"offerdesk/internal/config"
	"offerdesk/internal/export"
	"offerdesk/internal/extract"
	"offerdesk/internal/httpapi"
	"offerdesk/internal/imageload"
	"offerdesk/internal/listener"
	"offerdesk/internal/logger"
	"offerdesk/internal/raster"
	"offerdesk/internal/storage"
	"offerdesk/internal/theme"
	"offerdesk/internal/webhook"
)

type App struct {
	Config     config.Config
	DB         *storage.DB
	Compositor *compose.Compositor
	Extractor  *extract.Extractor
	Webhook    *webhook.Client
	Batch      *batch.Service
	Watcher    *batch.Watcher
	Archives   *export.Builder
}

func New(cfg config.Config) (*App, error) {
	logger.SetVerbose(cfg.LogVerbose)

	db, err := storage.Open(cfg.DBPath)
	if err != nil {
		return nil, err
	}
	if n, err := db.ResetInterrupted(); err != nil {
		db.Close()
		return nil, err
	} else if n > 0 {
		logger.Warn("app: %d interrupted upload(s) marked as error", n)
	}

	renderCfg := theme.Default()
	if cfg.RenderConfigPath != "" {
		if renderCfg, err = theme.Load(cfg.RenderConfigPath); err != nil {
			db.Close()
			return nil, err
		}
	}

	images := imageload.NewLoader(&http.Client{Timeout: time.Duration(cfg.ImageFetchTimeout) * time.Millisecond}, cfg.ProxyBaseURL)
	rasterizer, err := raster.New(renderCfg, images)
	if err != nil {
		db.Close()
		return nil, err
	}
	compositor := compose.New(renderCfg, rasterizer)
	extractor := extract.NewExtractor(compositor)
	client := webhook.NewClient(cfg)

	return &App{
		Config:     cfg,
		DB:         db,
		Compositor: compositor,
		Extractor:  extractor,
		Webhook:    client,
		Batch:      batch.NewService(db, cfg, extractor, client),
		Watcher:    batch.NewWatcher(db, cfg),
		Archives:   export.NewBuilder(compositor),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}

func (a *App) Listener() *listener.Service {
	return listener.NewService(a.DB, a.Config, a.Batch)
}

// HTTPServer builds the API server; ctx bounds background batches.
func (a *App) HTTPServer(ctx context.Context) *http.Server {
	api := httpapi.NewServer(ctx, httpapi.Deps{
		DB:          a.DB,
		Batch:       a.Batch,
		Watcher:     a.Watcher,
		Documents:   a.Compositor,
		Archives:    a.Archives,
		Webhook:     a.Webhook,
		ProxyClient: &http.Client{Timeout: time.Duration(a.Config.ProxyTimeoutMs) * time.Millisecond},
		MaxUploadMB: a.Config.MaxUploadMB,
	})
	return &http.Server{
		Addr:              a.Config.HTTPAddr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
