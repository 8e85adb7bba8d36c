// Package batch runs pending uploads through extraction, the offer
// webhook and normalization, one file at a time.
package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"offerdesk/internal"
	"offerdesk/internal/config"
	"offerdesk/internal/extract"
	"offerdesk/internal/logger"
	"offerdesk/internal/normalize"
	"offerdesk/internal/storage"
)

var (
	ErrBatchRunning = errors.New("batch: a batch is already running")
	ErrNoOffers     = errors.New("batch: no offers found in response")
)

// Extractor prepares a stored upload for the webhook.
type Extractor interface {
	ExtractFile(ctx context.Context, path, name, declared string) (internal.ExtractedFile, error)
}

// Uploader sends one extracted file and returns the webhook's JSON body.
type Uploader interface {
	Upload(ctx context.Context, file internal.ExtractedFile) ([]byte, error)
}

type Service struct {
	db        *storage.DB
	extractor Extractor
	uploader  Uploader
	uploadDir string
	timeout   time.Duration

	productsFromPDF func([]byte) ([]internal.Product, error)

	running sync.Mutex
}

type Result struct {
	Processed int
	Succeeded int
	Failed    int
	Offers    int
}

func NewService(db *storage.DB, cfg config.Config, extractor Extractor, uploader Uploader) *Service {
	timeout := time.Duration(cfg.BatchTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 20 * time.Minute
	}
	return &Service{
		db:              db,
		extractor:       extractor,
		uploader:        uploader,
		uploadDir:       cfg.UploadDir,
		timeout:         timeout,
		productsFromPDF: extract.ExtractProductsFromPDF,
	}
}

// Register stores an incoming document under the upload directory and
// records it as a pending item. A document whose source ref is already
// known is dropped and reported with added=false.
func (s *Service) Register(doc internal.IncomingDocument) (internal.UploadItem, bool, error) {
	mime := extract.DetectMIME(doc.Filename, doc.MimeType)
	if mime == "" {
		return internal.UploadItem{}, false, fmt.Errorf("%w: %s", extract.ErrUnsupportedType, doc.Filename)
	}
	if err := os.MkdirAll(s.uploadDir, 0o755); err != nil {
		return internal.UploadItem{}, false, err
	}

	id := uuid.NewString()
	path := filepath.Join(s.uploadDir, id+strings.ToLower(filepath.Ext(doc.Filename)))
	if err := os.WriteFile(path, doc.Content, 0o644); err != nil {
		return internal.UploadItem{}, false, err
	}

	source := doc.Source
	if source == "" {
		source = "upload"
	}
	item := internal.UploadItem{
		ID:       id,
		Name:     doc.Filename,
		Size:     int64(len(doc.Content)),
		MimeType: mime,
		Path:     path,
		Source:   source,
		Ref:      doc.Ref,
		Status:   internal.StatusPending,
	}
	added, err := s.db.InsertUploadItem(item)
	if err != nil || !added {
		_ = os.Remove(path)
		return item, false, err
	}
	logger.Info("batch: registered %s source=%s id=%s", item.Name, item.Source, item.ID)
	return item, true, nil
}

// Remove deletes one item and its stored file.
func (s *Service) Remove(id string) (bool, error) {
	item, err := s.db.DeleteUploadItem(id)
	if err != nil || item == nil {
		return false, err
	}
	if item.Path != "" {
		_ = os.Remove(item.Path)
	}
	return true, nil
}

// Clear drops all items, their files and the persisted offers.
func (s *Service) Clear() error {
	items, err := s.db.ListUploadItems()
	if err != nil {
		return err
	}
	if err := s.db.Clear(); err != nil {
		return err
	}
	for _, item := range items {
		if item.Path != "" {
			_ = os.Remove(item.Path)
		}
	}
	return nil
}

// RunPending processes every pending item in registration order under a
// single deadline. A failing item is marked as error and the batch moves
// on; only storage failures abort the run.
func (s *Service) RunPending(ctx context.Context) (Result, error) {
	if !s.running.TryLock() {
		return Result{}, ErrBatchRunning
	}
	defer s.running.Unlock()
	return s.runPending(ctx)
}

// Start claims the batch and runs it in the background, reporting the
// outcome to done. It fails fast with ErrBatchRunning.
func (s *Service) Start(ctx context.Context, done func(Result, error)) error {
	if !s.running.TryLock() {
		return ErrBatchRunning
	}
	go func() {
		defer s.running.Unlock()
		res, err := s.runPending(ctx)
		if done != nil {
			done(res, err)
		}
	}()
	return nil
}

func (s *Service) runPending(ctx context.Context) (Result, error) {
	items, err := s.db.MarkPendingExtracting()
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, nil
	}

	if err := s.db.SetUploadTimestamp(time.Now()); err != nil {
		return Result{}, err
	}
	if err := s.db.SetProcessing(true); err != nil {
		return Result{}, err
	}
	defer func() {
		if err := s.db.SetProcessing(false); err != nil {
			logger.Warn("batch: reset processing state: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	var res Result
	for _, item := range items {
		res.Processed++
		count, err := s.processItem(ctx, item)
		if err != nil {
			msg := userMessage(err)
			logger.Warn("batch: %s failed: %s", item.Name, msg)
			if uerr := s.db.UpdateUploadStatus(item.ID, internal.StatusError, msg, 0); uerr != nil {
				return res, uerr
			}
			res.Failed++
			continue
		}
		if err := s.db.UpdateUploadStatus(item.ID, internal.StatusSuccess, "", count); err != nil {
			return res, err
		}
		logger.Info("batch: %s done offers=%d", item.Name, count)
		res.Succeeded++
		res.Offers += count
	}

	_ = s.db.InsertRun(uuid.NewString(),
		map[string]float64{"totalMs": float64(time.Since(start).Milliseconds())},
		map[string]int{"processed": res.Processed, "success": res.Succeeded, "error": res.Failed, "offers": res.Offers})
	return res, nil
}

type extractError struct{ err error }

func (e *extractError) Error() string { return "extract: " + e.err.Error() }
func (e *extractError) Unwrap() error { return e.err }

func (s *Service) processItem(ctx context.Context, item internal.UploadItem) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	file, err := s.extractor.ExtractFile(ctx, item.Path, item.Name, item.MimeType)
	if err != nil {
		return 0, &extractError{err: err}
	}
	if err := s.db.UpdateUploadStatus(item.ID, internal.StatusUploading, "", 0); err != nil {
		return 0, err
	}

	body, err := s.uploader.Upload(ctx, file)
	if err != nil {
		return 0, err
	}
	offers := normalize.GetAllOffers(body)
	if len(offers) == 0 {
		return 0, ErrNoOffers
	}

	if extract.DetectMIME(item.Name, item.MimeType) == extract.MimePDF && len(offers[0].Content.Products) == 0 {
		products, err := s.productsFromPDF(file.Raw)
		if err != nil {
			logger.Debug("batch: product table fallback for %s: %v", item.Name, err)
		} else if len(products) > 0 {
			logger.Debug("batch: %s product table fallback rows=%d", item.Name, len(products))
			offers[0].Content.Products = products
		}
	}

	consolidated := normalize.Consolidate(offers)
	if _, err := s.db.AppendOffers([]internal.Offer{*consolidated}); err != nil {
		return 0, err
	}
	return len(offers), nil
}

// userMessage is the text shown on an item that ended in error.
func userMessage(err error) string {
	var xerr *extractError
	switch {
	case errors.As(err, &xerr):
		return "Failed to extract data: " + xerr.err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return "Request timed out"
	case errors.Is(err, context.Canceled):
		return "Request cancelled"
	case errors.Is(err, ErrNoOffers):
		return "No offers found in response"
	default:
		return err.Error()
	}
}
