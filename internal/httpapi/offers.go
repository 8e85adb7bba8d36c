package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"offerdesk/internal"
	"offerdesk/internal/batch"
	"offerdesk/internal/export"
	"offerdesk/internal/merge"
)

type offersResponse struct {
	Offers   []internal.Offer `json:"offers"`
	Revision int64            `json:"revision"`
}

// listOffers returns the offer slot. With wait=1 it blocks until the slot
// changes past since (default: the current revision).
func (s *Server) listOffers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("wait") == "1" && s.deps.Watcher != nil {
		since, err := strconv.ParseInt(q.Get("since"), 10, 64)
		if err != nil {
			if since, err = s.deps.DB.OffersRevision(); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
		offers, rev, err := s.deps.Watcher.WaitForOffers(r.Context(), since)
		if errors.Is(err, batch.ErrWaitTimeout) {
			writeJSON(w, http.StatusOK, offersResponse{Offers: []internal.Offer{}, Revision: rev})
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, offersResponse{Offers: nonNil(offers), Revision: rev})
		return
	}

	offers, err := s.deps.DB.LoadOffers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	rev, err := s.deps.DB.OffersRevision()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, offersResponse{Offers: nonNil(offers), Revision: rev})
}

func nonNil(offers []internal.Offer) []internal.Offer {
	if offers == nil {
		return []internal.Offer{}
	}
	return offers
}

func pathIndex(r *http.Request, name string) int {
	n, _ := strconv.Atoi(mux.Vars(r)[name])
	return n
}

// replaceOffer stores an edited offer: overlays, custom pages and any
// field changes. Product totals are recomputed from quantity and price.
func (s *Server) replaceOffer(w http.ResponseWriter, r *http.Request) {
	var edited internal.Offer
	if err := json.NewDecoder(r.Body).Decode(&edited); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	for i := range edited.Content.Products {
		edited.Content.Products[i].Recompute()
	}

	updated, err := s.deps.DB.UpdateOffer(pathIndex(r, "index"), func(o *internal.Offer) error {
		*o = edited
		return nil
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type productPatch struct {
	Quantity  *int     `json:"quantity"`
	UnitPrice *float64 `json:"unitPrice"`
}

func (s *Server) patchProduct(w http.ResponseWriter, r *http.Request) {
	var patch productPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if patch.Quantity == nil && patch.UnitPrice == nil {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	product := pathIndex(r, "product")
	updated, err := s.deps.DB.UpdateOffer(pathIndex(r, "index"), func(o *internal.Offer) error {
		if product >= len(o.Content.Products) {
			return fmt.Errorf("product index out of range: %d", product)
		}
		p := &o.Content.Products[product]
		if patch.Quantity != nil {
			p.SetQuantity(*patch.Quantity)
		}
		if patch.UnitPrice != nil {
			p.SetUnitPrice(*patch.UnitPrice)
		}
		return nil
	})
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) offerPDF(w http.ResponseWriter, r *http.Request) {
	offers, err := s.deps.DB.LoadOffers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	i := pathIndex(r, "index")
	if i >= len(offers) {
		writeError(w, http.StatusNotFound, "Offer not found")
		return
	}
	blob, err := s.deps.Documents.GenerateDocument(r.Context(), offers[i])
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeFile(w, "application/pdf", export.DocumentName(offers[i], i, 1), blob)
}

func (s *Server) exportZIP(w http.ResponseWriter, r *http.Request) {
	offers, err := s.deps.DB.LoadOffers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	archive, err := s.deps.Archives.BuildZIP(r.Context(), offers)
	if errors.Is(err, export.ErrNoDocuments) {
		writeError(w, http.StatusUnprocessableEntity, "No PDF could be generated")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(archive.Failures) > 0 {
		w.Header().Set("X-Export-Failures", strconv.Itoa(len(archive.Failures)))
	}
	writeFile(w, "application/zip", archive.Name, archive.Data)
}

func (s *Server) exportXLSX(w http.ResponseWriter, r *http.Request) {
	offers, err := s.deps.DB.LoadOffers()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	var buf bytes.Buffer
	if err := export.WriteProductsXLSX(offers, &buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeFile(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "produse.xlsx", buf.Bytes())
}

// mergePDFs concatenates the uploaded "files" in form order.
func (s *Server) mergePDFs(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(s.deps.MaxUploadMB)<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	defer r.MultipartForm.RemoveAll()

	var blobs [][]byte
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		blob, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		blobs = append(blobs, blob)
	}
	if len(blobs) == 0 {
		writeError(w, http.StatusBadRequest, "No files to merge")
		return
	}

	merged, err := merge.Merge(blobs)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeFile(w, "application/pdf", "merged.pdf", merged)
}
