package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"offerdesk/internal/app"
	"offerdesk/internal/config"
	"offerdesk/internal/intake"
	"offerdesk/internal/logger"
)

func main() {
	cfg, err := config.Load()
	must(err)

	a, err := app.New(cfg)
	must(err)
	defer a.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.IntakeWatchDir != "" {
		folder := intake.NewFolder(cfg.IntakeWatchDir, a.Batch)
		var onAdded func()
		if cfg.IntakeAutoRunBatch {
			onAdded = func() {
				if err := a.Batch.Start(ctx, nil); err != nil {
					logger.Info("folder intake: %v", err)
				}
			}
		}
		go func() {
			if err := folder.Watch(ctx, onAdded); err != nil {
				logger.Error("folder intake stopped: %v", err)
			}
		}()
	}
	if cfg.IntakeProvider != "" && (cfg.IMAPHost != "" || cfg.GmailRefreshToken != "") {
		go func() { _ = a.Listener().Run(ctx) }()
	}

	srv := a.HTTPServer(ctx)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("offer-server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		must(err)
	case <-ctx.Done():
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	must(srv.Shutdown(shutdownCtx))
	logger.Info("offer-server stopped")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
