package intake

import (
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"offerdesk/internal"
	"offerdesk/internal/storage"
)

type memRegistrar struct {
	mu   sync.Mutex
	refs map[string]bool
	docs []internal.IncomingDocument
}

func (r *memRegistrar) Register(doc internal.IncomingDocument) (internal.UploadItem, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.refs == nil {
		r.refs = map[string]bool{}
	}
	if r.refs[doc.Ref] {
		return internal.UploadItem{}, false, nil
	}
	r.refs[doc.Ref] = true
	r.docs = append(r.docs, doc)
	return internal.UploadItem{Name: doc.Filename}, true, nil
}

func (r *memRegistrar) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.docs)
}

type staticConnector struct {
	messages []internal.MailMessage
}

func (c staticConnector) FetchInbox(context.Context, string, int) ([]internal.MailMessage, error) {
	return c.messages, nil
}

func rawMail(attachments map[string]string) []byte {
	var b strings.Builder
	b.WriteString("From: Ana Pop <ana@example.ro>\r\n")
	b.WriteString("To: oferte@example.ro\r\n")
	b.WriteString("Subject: Cerere oferta\r\n")
	b.WriteString("Message-ID: <m1@example.ro>\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: multipart/mixed; boundary=\"XYZ\"\r\n\r\n")
	b.WriteString("--XYZ\r\nContent-Type: text/plain; charset=utf-8\r\n\r\nVa rog oferta.\r\n")
	for name, ctype := range attachments {
		b.WriteString("--XYZ\r\n")
		b.WriteString("Content-Type: " + ctype + "; name=\"" + name + "\"\r\n")
		b.WriteString("Content-Disposition: attachment; filename=\"" + name + "\"\r\n")
		b.WriteString("Content-Transfer-Encoding: base64\r\n\r\n")
		b.WriteString(base64.StdEncoding.EncodeToString([]byte("content of "+name)) + "\r\n")
	}
	b.WriteString("--XYZ--\r\n")
	return []byte(b.String())
}

func TestAttachmentsFiltersSupportedTypes(t *testing.T) {
	raw := rawMail(map[string]string{
		"cerere.pdf":    "application/octet-stream",
		"poza.png":      "image/png",
		"tabel.xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"semnatura.p7s": "application/pkcs7-signature",
	})
	docs, err := Attachments("imap", "<m1@example.ro>", raw)
	require.NoError(t, err)
	require.Len(t, docs, 2)

	names := map[string]internal.IncomingDocument{}
	for _, d := range docs {
		names[d.Filename] = d
		assert.Equal(t, "imap", d.Source)
		assert.True(t, strings.HasPrefix(d.Ref, "<m1@example.ro>#"))
	}
	assert.Equal(t, "application/pdf", names["cerere.pdf"].MimeType)
	assert.Equal(t, "content of poza.png", string(names["poza.png"].Content))
}

func TestFetchAndRegisterSkipsKnownMessages(t *testing.T) {
	dir := t.TempDir()
	db, err := storage.Open(filepath.Join(dir, "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	msg := internal.MailMessage{Provider: "imap", MessageID: "<m1@example.ro>", Subject: "Cerere", Raw: rawMail(map[string]string{"cerere.pdf": "application/pdf"})}
	reg := &memRegistrar{}
	mail := NewMail(db, filepath.Join(dir, "raw"), staticConnector{messages: []internal.MailMessage{msg}}, reg, "INBOX", 10)

	res, err := mail.FetchAndRegister(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MailResult{Fetched: 1, Registered: 1}, res)

	res, err = mail.FetchAndRegister(context.Background())
	require.NoError(t, err)
	assert.Equal(t, MailResult{Fetched: 1, Skipped: 1}, res)
	assert.Equal(t, 1, reg.count())

	row, err := db.GetIntakeMessage("imap", "<m1@example.ro>")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, "registered", row.Status)
	assert.FileExists(t, row.RawRef)
}

func TestFolderScan(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("%PDF a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.docx"), []byte("PK"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden.pdf"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.pdf"), 0o755))

	reg := &memRegistrar{}
	f := NewFolder(dir, reg)
	n, err := f.Scan()
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = f.Scan()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestFolderHandleEvent(t *testing.T) {
	dir := t.TempDir()
	pdf := filepath.Join(dir, "cerere.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))
	txt := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(txt, []byte("x"), 0o644))
	lock := filepath.Join(dir, "~$cerere.docx")
	require.NoError(t, os.WriteFile(lock, []byte("x"), 0o644))

	f := NewFolder(dir, &memRegistrar{})
	tests := []struct {
		name  string
		event fsnotify.Event
		want  string
	}{
		{name: "create pdf", event: fsnotify.Event{Name: pdf, Op: fsnotify.Create}, want: pdf},
		{name: "write pdf", event: fsnotify.Event{Name: pdf, Op: fsnotify.Write | fsnotify.Chmod}, want: pdf},
		{name: "chmod only", event: fsnotify.Event{Name: pdf, Op: fsnotify.Chmod}},
		{name: "unsupported", event: fsnotify.Event{Name: txt, Op: fsnotify.Create}},
		{name: "office lock file", event: fsnotify.Event{Name: lock, Op: fsnotify.Create}},
		{name: "removed", event: fsnotify.Event{Name: filepath.Join(dir, "gone.pdf"), Op: fsnotify.Remove}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, f.handleEvent(tt.event))
		})
	}
}

func TestFolderWatchPicksUpNewFiles(t *testing.T) {
	dir := t.TempDir()
	reg := &memRegistrar{}
	f := NewFolder(dir, reg)
	f.settle = 40 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	added := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- f.Watch(ctx, func() { added <- struct{}{} }) }()

	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "oferta.pdf"), []byte("%PDF new"), 0o644)
		select {
		case <-added:
			return true
		default:
			return false
		}
	}, 5*time.Second, 100*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 1, reg.count())
}
