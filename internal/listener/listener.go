// Package listener polls the intake mailbox on an interval.
package listener

import (
	"context"
	"errors"
	"time"

	"offerdesk/internal/batch"
	"offerdesk/internal/config"
	"offerdesk/internal/connectors"
	"offerdesk/internal/intake"
	"offerdesk/internal/logger"
	"offerdesk/internal/storage"
)

// BatchRunner is the part of batch.Service the listener drives.
type BatchRunner interface {
	intake.Registrar
	RunPending(ctx context.Context) (batch.Result, error)
}

type Service struct {
	db     *storage.DB
	cfg    config.Config
	runner BatchRunner

	// newConnector is swapped in tests.
	newConnector func(ctx context.Context, provider string, cfg config.Config) (connectors.MailConnector, error)
}

func NewService(db *storage.DB, cfg config.Config, runner BatchRunner) *Service {
	return &Service{db: db, cfg: cfg, runner: runner, newConnector: connectors.New}
}

func (s *Service) Run(ctx context.Context) error {
	interval := time.Duration(s.cfg.IntakeIntervalSec) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	for {
		if err := s.RunCycle(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("listener: cycle error: %v", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(interval):
		}
	}
}

// RunCycle fetches once and, when enabled, runs the batch over whatever
// the fetch registered.
func (s *Service) RunCycle(ctx context.Context) error {
	connector, err := s.newConnector(ctx, s.cfg.IntakeProvider, s.cfg)
	if err != nil {
		return err
	}

	mail := intake.NewMail(s.db, s.cfg.RawMailDir, connector, s.runner, s.cfg.IntakeLabel, s.cfg.IntakeFetchMax)
	res, err := mail.FetchAndRegister(ctx)
	if err != nil {
		return err
	}
	logger.Info("listener: cycle provider=%s fetched=%d skipped=%d registered=%d failed=%d",
		s.cfg.IntakeProvider, res.Fetched, res.Skipped, res.Registered, res.Failed)

	if !s.cfg.IntakeAutoRunBatch || res.Registered == 0 {
		return nil
	}
	run, err := s.runner.RunPending(ctx)
	if errors.Is(err, batch.ErrBatchRunning) {
		logger.Info("listener: batch already running, items stay pending")
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("listener: batch processed=%d success=%d error=%d", run.Processed, run.Succeeded, run.Failed)
	return nil
}
