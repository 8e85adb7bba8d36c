package httpapi

import (
	"io"
	"net/http"
	"net/url"

	"offerdesk/internal/logger"
)

const browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

// proxyImage fetches a remote image on behalf of a browser that cannot
// read it cross-origin.
func (s *Server) proxyImage(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "Missing url parameter")
		return
	}
	target, err := url.Parse(raw)
	if err != nil || target.Host == "" {
		writeError(w, http.StatusBadRequest, "Invalid URL")
		return
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		writeError(w, http.StatusBadRequest, "URL must use http or https protocol")
		return
	}

	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target.String(), nil)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid URL")
		return
	}
	req.Header.Set("User-Agent", browserUA)
	req.Header.Set("Accept", "image/*,*/*")

	resp, err := s.deps.ProxyClient.Do(req)
	if err != nil {
		logger.Warn("httpapi: proxy-image %s: %v", target.Host, err)
		writeError(w, http.StatusInternalServerError, "Proxy error: "+err.Error())
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		writeError(w, resp.StatusCode, "Failed to fetch: "+http.StatusText(resp.StatusCode))
		return
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Proxy error: "+err.Error())
		return
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// webhookProxy relays a POST body to the extraction webhook and returns
// its answer unchanged.
func (s *Server) webhookProxy(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, int64(s.deps.MaxUploadMB)<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	logger.Debug("httpapi: webhook-proxy body=%d bytes", len(body))

	status, contentType, respBody, err := s.deps.Webhook.Forward(r.Context(), body)
	if err != nil {
		logger.Warn("httpapi: webhook-proxy: %v", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{
			"error":   "Proxy error",
			"message": err.Error(),
			"target":  s.deps.Webhook.URL(),
		})
		return
	}
	if contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}
	w.WriteHeader(status)
	_, _ = w.Write(respBody)
}
