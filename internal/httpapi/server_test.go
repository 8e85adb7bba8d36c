package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jung-kurt/gofpdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdesk/internal"
	"offerdesk/internal/batch"
	"offerdesk/internal/compose"
	"offerdesk/internal/config"
	"offerdesk/internal/export"
	"offerdesk/internal/storage"
)

func onePagePDF(t *testing.T) []byte {
	t.Helper()
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.AddPage()
	var buf bytes.Buffer
	require.NoError(t, doc.Output(&buf))
	return buf.Bytes()
}

type fileExtractor struct{}

func (fileExtractor) ExtractFile(_ context.Context, path, name, declared string) (internal.ExtractedFile, error) {
	raw, err := os.ReadFile(path)
	return internal.ExtractedFile{Filename: name, MimeType: declared, Raw: raw}, err
}

type cannedUploader struct{}

func (cannedUploader) Upload(context.Context, internal.ExtractedFile) ([]byte, error) {
	return []byte(`[{"offerMetadata":{"companyName":"Acme"},"offerContent":{"title":"Scaun","products":[{"productName":"Scaun","quantity":2,"unitPriceNoVAT":5}]}}]`), nil
}

type pdfDocs struct{ t *testing.T }

func (d pdfDocs) GenerateDocument(context.Context, internal.Offer) ([]byte, error) {
	return onePagePDF(d.t), nil
}

func (d pdfDocs) GenerateAll(_ context.Context, offers []internal.Offer) []compose.Document {
	out := make([]compose.Document, 0, len(offers))
	for i, o := range offers {
		out = append(out, compose.Document{Index: i, Offer: o, PDF: onePagePDF(d.t), Pages: 1})
	}
	return out
}

type fakeForwarder struct {
	status int
	err    error
	got    []byte
}

func (f *fakeForwarder) Forward(_ context.Context, body []byte) (int, string, []byte, error) {
	f.got = body
	if f.err != nil {
		return 0, "", nil, f.err
	}
	return f.status, "application/json", []byte(`[{"ok":true}]`), nil
}

func (f *fakeForwarder) URL() string { return "https://hooks.example.com/offer" }

type fixture struct {
	srv     *httptest.Server
	db      *storage.DB
	batch   *batch.Service
	forward *fakeForwarder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := config.Config{UploadDir: filepath.Join(dir, "uploads"), BatchTimeoutSec: 60, PollIntervalSec: 1, PollMaxSec: 1}
	svc := batch.NewService(db, cfg, fileExtractor{}, cannedUploader{})
	fwd := &fakeForwarder{status: http.StatusOK}
	api := NewServer(context.Background(), Deps{
		DB:        db,
		Batch:     svc,
		Watcher:   batch.NewWatcher(db, cfg),
		Documents: pdfDocs{t: t},
		Archives:  export.NewBuilder(pdfDocs{t: t}),
		Webhook:   fwd,
	})
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(srv.Close)
	return &fixture{srv: srv, db: db, batch: svc, forward: fwd}
}

func (f *fixture) upload(t *testing.T, names ...string) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range names {
		w, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, _ = w.Write([]byte("%PDF-1.4 " + name))
	}
	require.NoError(t, mw.Close())
	resp, err := http.Post(f.srv.URL+"/api/uploads", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func do(t *testing.T, method, target string, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, target, strings.NewReader(body))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestUploadListAndDelete(t *testing.T) {
	f := newFixture(t)

	resp := f.upload(t, "a.pdf", "notes.txt", "b.docx")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[uploadsResponse](t, resp)
	require.Len(t, created.Items, 2)
	assert.Equal(t, []string{"notes.txt"}, created.Skipped)
	assert.Equal(t, internal.StatusPending, created.Items[0].Status)

	listed := decode[uploadsResponse](t, do(t, "GET", f.srv.URL+"/api/uploads", ""))
	assert.Len(t, listed.Items, 2)

	resp = do(t, "DELETE", f.srv.URL+"/api/uploads/"+created.Items[0].ID, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp = do(t, "DELETE", f.srv.URL+"/api/uploads/"+created.Items[0].ID, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBatchRunAndOfferEditing(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.pdf").Body.Close()

	resp := do(t, "POST", f.srv.URL+"/api/batch/run?wait=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	res := decode[batch.Result](t, resp)
	assert.Equal(t, 1, res.Succeeded)

	offers := decode[offersResponse](t, do(t, "GET", f.srv.URL+"/api/offers", ""))
	require.Len(t, offers.Offers, 1)
	assert.Equal(t, 10.0, offers.Offers[0].Content.Products[0].TotalValueNoVAT)

	resp = do(t, "PATCH", f.srv.URL+"/api/offers/0/products/0", `{"quantity":3,"unitPrice":2.5}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[internal.Offer](t, resp)
	assert.Equal(t, 3, updated.Content.Products[0].Quantity)
	assert.Equal(t, 7.5, updated.Content.Products[0].TotalValueNoVAT)

	resp = do(t, "PATCH", f.srv.URL+"/api/offers/0/products/9", `{"quantity":1}`)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp = do(t, "PATCH", f.srv.URL+"/api/offers/0/products/0", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	edited := updated
	edited.ImageOverlays = []internal.ImageOverlay{{Src: "data:image/png;base64,AA==", X: 10, Y: 20, Width: 30, Height: 30}}
	edited.Content.Products[0].TotalValueNoVAT = 999
	blob, _ := json.Marshal(edited)
	resp = do(t, "PUT", f.srv.URL+"/api/offers/0", string(blob))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	replaced := decode[internal.Offer](t, resp)
	assert.Len(t, replaced.ImageOverlays, 1)
	assert.Equal(t, 7.5, replaced.Content.Products[0].TotalValueNoVAT)

	resp = do(t, "GET", f.srv.URL+"/api/offers/0/pdf", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "scaun.pdf")
	resp.Body.Close()

	resp = do(t, "GET", f.srv.URL+"/api/offers/4/pdf", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestOffersWaitTimesOutWithEmptyList(t *testing.T) {
	f := newFixture(t)
	resp := do(t, "GET", f.srv.URL+"/api/offers?wait=1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[offersResponse](t, resp)
	assert.Empty(t, got.Offers)
}

func TestExportEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := do(t, "GET", f.srv.URL+"/api/export/zip", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	resp.Body.Close()

	_, err := f.db.AppendOffers([]internal.Offer{
		{Content: internal.OfferContent{Title: "Scaun"}},
		{Content: internal.OfferContent{Title: "Masa"}},
	})
	require.NoError(t, err)

	resp = do(t, "GET", f.srv.URL+"/api/export/zip", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/zip", resp.Header.Get("Content-Type"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "oferte_")
	resp.Body.Close()

	resp = do(t, "GET", f.srv.URL+"/api/export/xlsx", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "produse.xlsx")
	resp.Body.Close()
}

func TestMergeEndpoint(t *testing.T) {
	f := newFixture(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, name := range []string{"a.pdf", "b.pdf"} {
		w, _ := mw.CreateFormFile("files", name)
		_, _ = w.Write(onePagePDF(t))
	}
	require.NoError(t, mw.Close())

	resp, err := http.Post(f.srv.URL+"/api/merge", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
}

func TestStateAndClear(t *testing.T) {
	f := newFixture(t)
	f.upload(t, "a.pdf").Body.Close()

	state := decode[stateResponse](t, do(t, "GET", f.srv.URL+"/api/state", ""))
	assert.False(t, state.Processing)
	assert.NotEmpty(t, state.UploadTimestamp)

	resp := do(t, "DELETE", f.srv.URL+"/api/state", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	items, _ := f.db.ListUploadItems()
	assert.Empty(t, items)
}

func TestProxyImage(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/img.png":
			assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
			assert.Equal(t, "image/*,*/*", r.Header.Get("Accept"))
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write([]byte("png-bytes"))
		case "/raw":
			w.Header()["Content-Type"] = nil
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff})
		default:
			http.NotFound(w, r)
		}
	}))
	defer upstream.Close()
	f := newFixture(t)

	get := func(raw string) *http.Response {
		return do(t, "GET", f.srv.URL+"/api/proxy-image?url="+url.QueryEscape(raw), "")
	}

	resp := get(upstream.URL + "/img.png")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "public, max-age=3600", resp.Header.Get("Cache-Control"))
	resp.Body.Close()

	resp = get(upstream.URL + "/raw")
	assert.Equal(t, "image/jpeg", resp.Header.Get("Content-Type"))
	resp.Body.Close()

	resp = get(upstream.URL + "/missing")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "Failed to fetch: Not Found", decode[map[string]string](t, resp)["error"])

	resp = do(t, "GET", f.srv.URL+"/api/proxy-image", "")
	assert.Equal(t, "Missing url parameter", decode[map[string]string](t, resp)["error"])
	resp = get("ftp://example.com/x.png")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "URL must use http or https protocol", decode[map[string]string](t, resp)["error"])
	resp = get("not a url")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = get("http://127.0.0.1:1/unreachable.png")
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.True(t, strings.HasPrefix(decode[map[string]string](t, resp)["error"], "Proxy error: "))
}

func TestWebhookProxy(t *testing.T) {
	f := newFixture(t)

	resp := do(t, "POST", f.srv.URL+"/api/webhook-proxy", `[{"filename":"a.pdf"}]`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
	assert.JSONEq(t, `[{"filename":"a.pdf"}]`, string(f.forward.got))

	f.forward.err = errors.New("dial tcp: connection refused")
	resp = do(t, "POST", f.srv.URL+"/api/webhook-proxy", `[]`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	got := decode[map[string]string](t, resp)
	assert.Equal(t, "Proxy error", got["error"])
	assert.Equal(t, "dial tcp: connection refused", got["message"])
	assert.Equal(t, "https://hooks.example.com/offer", got["target"])
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	req, _ := http.NewRequest(http.MethodOptions, f.srv.URL+"/api/offers", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "PATCH")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}
