package batch

import (
	"context"
	"errors"
	"time"

	"offerdesk/internal"
	"offerdesk/internal/config"
	"offerdesk/internal/storage"
)

var ErrWaitTimeout = errors.New("batch: no new offers before the polling limit")

// Watcher polls the offer slot for writes made by another process.
type Watcher struct {
	db       *storage.DB
	interval time.Duration
	max      time.Duration
}

func NewWatcher(db *storage.DB, cfg config.Config) *Watcher {
	interval := time.Duration(cfg.PollIntervalSec) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	max := time.Duration(cfg.PollMaxSec) * time.Second
	if max <= 0 {
		max = 5 * time.Minute
	}
	return &Watcher{db: db, interval: interval, max: max}
}

// WaitForOffers blocks until the offer slot revision moves past since and
// returns the slot with its new revision.
func (w *Watcher) WaitForOffers(ctx context.Context, since int64) ([]internal.Offer, int64, error) {
	deadline := time.Now().Add(w.max)
	for {
		rev, err := w.db.OffersRevision()
		if err != nil {
			return nil, 0, err
		}
		if rev > since {
			offers, err := w.db.LoadOffers()
			return offers, rev, err
		}
		if !time.Now().Before(deadline) {
			return nil, rev, ErrWaitTimeout
		}

		select {
		case <-ctx.Done():
			return nil, rev, ctx.Err()
		case <-time.After(w.interval):
		}
	}
}
