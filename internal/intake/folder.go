package intake

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"offerdesk/internal"
	"offerdesk/internal/extract"
	"offerdesk/internal/logger"
)

const settleDelay = 500 * time.Millisecond

// Folder registers supported files dropped into a directory.
type Folder struct {
	dir       string
	registrar Registrar
	settle    time.Duration
}

func NewFolder(dir string, registrar Registrar) *Folder {
	return &Folder{dir: dir, registrar: registrar, settle: settleDelay}
}

// Scan registers every supported file already in the directory and
// returns how many were new.
func (f *Folder) Scan() (int, error) {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return 0, err
	}
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return 0, err
	}
	added := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := f.register(filepath.Join(f.dir, entry.Name()))
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// Watch scans the directory, then registers files as they appear until
// ctx is done. A file is picked up once it has stopped changing for the
// settle delay. onAdded, if set, runs after each new registration.
func (f *Folder) Watch(ctx context.Context, onAdded func()) error {
	n, err := f.Scan()
	if err != nil {
		return err
	}
	if n > 0 && onAdded != nil {
		onAdded()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()
	if err := watcher.Add(f.dir); err != nil {
		return err
	}
	logger.Info("intake: watching %s", f.dir)

	pending := map[string]time.Time{}
	tick := time.NewTicker(f.settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if path := f.handleEvent(event); path != "" {
				pending[path] = time.Now().Add(f.settle)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("intake: watch error: %v", err)
		case now := <-tick.C:
			for path, due := range pending {
				if now.Before(due) {
					continue
				}
				delete(pending, path)
				added, err := f.register(path)
				if err != nil {
					logger.Warn("intake: register %s: %v", path, err)
					continue
				}
				if added && onAdded != nil {
					onAdded()
				}
			}
		}
	}
}

// handleEvent returns the path to queue for an event, or "" when the
// event does not concern a supported file.
func (f *Folder) handleEvent(event fsnotify.Event) string {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return ""
	}
	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasPrefix(name, "~$") {
		return ""
	}
	info, err := os.Stat(event.Name)
	if err != nil || info.IsDir() {
		return ""
	}
	if !extract.Allowed(name, "") {
		return ""
	}
	return event.Name
}

func (f *Folder) register(path string) (bool, error) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !extract.Allowed(name, "") {
		return false, nil
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return false, err
	}
	sum := sha256.Sum256(content)
	_, added, err := f.registrar.Register(internal.IncomingDocument{
		Source:   "folder",
		Ref:      name + "#" + hex.EncodeToString(sum[:8]),
		Filename: name,
		Content:  content,
	})
	if added {
		logger.Info("intake: registered %s from folder", name)
	}
	return added, err
}
