// Package imageload resolves offer image sources into decoded images.
package imageload

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	_ "golang.org/x/image/webp"

	"offerdesk/internal/logger"
)

const (
	maxImageBytes = 20 << 20
	// BrowserUserAgent is sent on image fetches; several supplier CDNs
	// refuse requests without a browser-like agent.
	BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

var ErrUnsupportedSource = errors.New("imageload: unsupported image source")

// Loader fetches and decodes images. Remote sources are tried directly
// first and then through the CORS proxy when one is configured. Results,
// including failures, are cached per source.
type Loader struct {
	client   *http.Client
	proxyURL string

	mu    sync.Mutex
	cache map[string]cached
}

type cached struct {
	img image.Image
	err error
}

func NewLoader(client *http.Client, proxyURL string) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Loader{client: client, proxyURL: strings.TrimSpace(proxyURL), cache: map[string]cached{}}
}

func (l *Loader) Load(ctx context.Context, src string) (image.Image, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return nil, ErrUnsupportedSource
	}

	l.mu.Lock()
	hit, ok := l.cache[src]
	l.mu.Unlock()
	if ok {
		return hit.img, hit.err
	}

	img, err := l.load(ctx, src)
	if ctx.Err() == nil {
		l.mu.Lock()
		l.cache[src] = cached{img: img, err: err}
		l.mu.Unlock()
	}
	return img, err
}

func (l *Loader) load(ctx context.Context, src string) (image.Image, error) {
	if strings.HasPrefix(src, "data:") {
		blob, err := DecodeDataURI(src)
		if err != nil {
			return nil, err
		}
		return decode(blob)
	}

	u, err := url.Parse(src)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, ErrUnsupportedSource
	}

	img, directErr := l.fetch(ctx, src)
	if directErr == nil {
		return img, nil
	}
	if l.proxyURL == "" {
		return nil, directErr
	}

	logger.Debug("imageload: direct fetch failed src=%s err=%v, retry via proxy", src, directErr)
	img, err = l.fetch(ctx, l.proxyURL+"?url="+url.QueryEscape(src))
	if err != nil {
		return nil, fmt.Errorf("imageload: direct: %v; proxy: %w", directErr, err)
	}
	return img, nil
}

func (l *Loader) fetch(ctx context.Context, target string) (image.Image, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", BrowserUserAgent)
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("imageload: status %d", resp.StatusCode)
	}
	blob, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return nil, err
	}
	return decode(blob)
}

func decode(blob []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("imageload: decode: %w", err)
	}
	return img, nil
}

// DecodeDataURI returns the payload of a base64 data URI.
func DecodeDataURI(uri string) ([]byte, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, fmt.Errorf("imageload: malformed data uri")
	}
	if !strings.HasSuffix(strings.ToLower(header), ";base64") {
		return nil, fmt.Errorf("imageload: data uri is not base64 encoded")
	}
	payload = strings.TrimSpace(payload)
	blob, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		blob, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return nil, fmt.Errorf("imageload: data uri payload: %w", err)
	}
	return blob, nil
}
