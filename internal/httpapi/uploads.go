package httpapi

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"offerdesk/internal"
	"offerdesk/internal/batch"
	"offerdesk/internal/extract"
	"offerdesk/internal/logger"
)

type uploadsResponse struct {
	Items   []internal.UploadItem `json:"items"`
	Skipped []string              `json:"skipped,omitempty"`
}

func (s *Server) listUploads(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.DB.ListUploadItems()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if items == nil {
		items = []internal.UploadItem{}
	}
	writeJSON(w, http.StatusOK, uploadsResponse{Items: items})
}

// createUploads registers every "files" part of a multipart form.
// Unsupported files are reported back and do not fail the request.
func (s *Server) createUploads(w http.ResponseWriter, r *http.Request) {
	limit := int64(s.deps.MaxUploadMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	resp := uploadsResponse{Items: []internal.UploadItem{}}
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		content, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		item, added, err := s.deps.Batch.Register(internal.IncomingDocument{
			Source:   "upload",
			Filename: fh.Filename,
			MimeType: fh.Header.Get("Content-Type"),
			Content:  content,
		})
		if errors.Is(err, extract.ErrUnsupportedType) {
			resp.Skipped = append(resp.Skipped, fh.Filename)
			continue
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if added {
			resp.Items = append(resp.Items, item)
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) deleteUpload(w http.ResponseWriter, r *http.Request) {
	removed, err := s.deps.Batch.Remove(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "Upload not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// runBatch starts the batch in the background, or runs it inline with
// ?wait=1.
func (s *Server) runBatch(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("wait") == "1" {
		res, err := s.deps.Batch.RunPending(r.Context())
		if errors.Is(err, batch.ErrBatchRunning) {
			writeError(w, http.StatusConflict, "A batch is already running")
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, res)
		return
	}

	err := s.deps.Batch.Start(s.base, func(res batch.Result, err error) {
		if err != nil {
			logger.Error("httpapi: batch failed: %v", err)
			return
		}
		logger.Info("httpapi: batch processed=%d success=%d error=%d", res.Processed, res.Succeeded, res.Failed)
	})
	if errors.Is(err, batch.ErrBatchRunning) {
		writeError(w, http.StatusConflict, "A batch is already running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]bool{"started": true})
}

type stateResponse struct {
	internal.ProcessingState
	UploadTimestamp string `json:"uploadTimestamp,omitempty"`
	Revision        int64  `json:"revision"`
}

func (s *Server) getState(w http.ResponseWriter, r *http.Request) {
	state, err := s.deps.DB.ProcessingState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	ts, err := s.deps.DB.UploadTimestamp()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rev, err := s.deps.DB.OffersRevision()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := stateResponse{ProcessingState: state, Revision: rev}
	if !ts.IsZero() {
		resp.UploadTimestamp = ts.UTC().Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) clearState(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Batch.Clear(); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
