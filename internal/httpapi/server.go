// Package httpapi exposes uploads, offers, artifacts and the two browser
// proxies over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"offerdesk/internal"
	"offerdesk/internal/batch"
	"offerdesk/internal/export"
	"offerdesk/internal/logger"
	"offerdesk/internal/storage"
)

// DocumentGenerator renders one offer into a PDF.
type DocumentGenerator interface {
	GenerateDocument(ctx context.Context, offer internal.Offer) ([]byte, error)
}

// Forwarder relays a raw request body to the extraction webhook.
type Forwarder interface {
	Forward(ctx context.Context, body []byte) (int, string, []byte, error)
	URL() string
}

type Deps struct {
	DB        *storage.DB
	Batch     *batch.Service
	Watcher   *batch.Watcher
	Documents DocumentGenerator
	Archives  *export.Builder
	Webhook   Forwarder

	// ProxyClient fetches images for /api/proxy-image.
	ProxyClient *http.Client
	MaxUploadMB int
}

type Server struct {
	deps Deps
	// base outlives single requests; background batches run under it.
	base context.Context
}

func NewServer(base context.Context, deps Deps) *Server {
	if deps.ProxyClient == nil {
		deps.ProxyClient = &http.Client{Timeout: 30 * time.Second}
	}
	if deps.MaxUploadMB <= 0 {
		deps.MaxUploadMB = 50
	}
	return &Server{deps: deps, base: base}
}

// Handler returns the routed API wrapped in a permissive CORS policy.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/uploads", s.listUploads).Methods("GET")
	api.HandleFunc("/uploads", s.createUploads).Methods("POST")
	api.HandleFunc("/uploads/{id}", s.deleteUpload).Methods("DELETE")

	api.HandleFunc("/batch/run", s.runBatch).Methods("POST")
	api.HandleFunc("/state", s.getState).Methods("GET")
	api.HandleFunc("/state", s.clearState).Methods("DELETE")

	api.HandleFunc("/offers", s.listOffers).Methods("GET")
	api.HandleFunc("/offers/{index:[0-9]+}", s.replaceOffer).Methods("PUT")
	api.HandleFunc("/offers/{index:[0-9]+}/products/{product:[0-9]+}", s.patchProduct).Methods("PATCH")
	api.HandleFunc("/offers/{index:[0-9]+}/pdf", s.offerPDF).Methods("GET")

	api.HandleFunc("/export/zip", s.exportZIP).Methods("GET")
	api.HandleFunc("/export/xlsx", s.exportXLSX).Methods("GET")
	api.HandleFunc("/merge", s.mergePDFs).Methods("POST")

	api.HandleFunc("/proxy-image", s.proxyImage).Methods("GET")
	api.HandleFunc("/webhook-proxy", s.webhookProxy).Methods("POST")

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	})
	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("httpapi: encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}
