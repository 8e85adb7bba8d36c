// Package intake turns mail attachments and dropped files into pending
// upload items.
package intake

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/jhillyerd/enmime"

	"offerdesk/internal"
	"offerdesk/internal/connectors"
	"offerdesk/internal/extract"
	"offerdesk/internal/logger"
	"offerdesk/internal/storage"
)

// Registrar records an incoming document as a pending upload item.
type Registrar interface {
	Register(doc internal.IncomingDocument) (internal.UploadItem, bool, error)
}

type Mail struct {
	connector connectors.MailConnector
	store     *connectors.MailStore
	registrar Registrar
	label     string
	max       int
}

type MailResult struct {
	Fetched    int
	Skipped    int
	Registered int
	Failed     int
}

func NewMail(db *storage.DB, rawMailDir string, connector connectors.MailConnector, registrar Registrar, label string, max int) *Mail {
	return &Mail{
		connector: connector,
		store:     connectors.NewMailStore(db, rawMailDir),
		registrar: registrar,
		label:     label,
		max:       max,
	}
}

// FetchAndRegister pulls new messages and registers their supported
// attachments. A message already registered on an earlier cycle is skipped.
func (m *Mail) FetchAndRegister(ctx context.Context) (MailResult, error) {
	messages, err := m.connector.FetchInbox(ctx, m.label, m.max)
	if err != nil {
		return MailResult{}, err
	}

	res := MailResult{Fetched: len(messages)}
	for _, msg := range messages {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		row, err := m.store.Store(msg)
		if err != nil {
			return res, err
		}
		if row.Status == connectors.MessageRegistered {
			res.Skipped++
			continue
		}

		docs, err := Attachments(msg.Provider, msg.MessageID, msg.Raw)
		if err != nil {
			logger.Warn("intake: parse %s: %v", msg.MessageID, err)
			_ = m.store.MarkStatus(row, connectors.MessageFailed)
			res.Failed++
			continue
		}
		for _, doc := range docs {
			_, added, err := m.registrar.Register(doc)
			if err != nil {
				return res, fmt.Errorf("intake: register %s: %w", doc.Filename, err)
			}
			if added {
				res.Registered++
			}
		}
		if err := m.store.MarkStatus(row, connectors.MessageRegistered); err != nil {
			return res, err
		}
		logger.Info("intake: %s subject=%q attachments=%d", msg.MessageID, msg.Subject, len(docs))
	}
	return res, nil
}

// Attachments returns the parts of a raw message that can be uploaded.
// Each document is tagged with a ref unique to its message and position.
func Attachments(provider, messageID string, raw []byte) ([]internal.IncomingDocument, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	parts := append(append([]*enmime.Part{}, env.Attachments...), env.Inlines...)
	docs := make([]internal.IncomingDocument, 0, len(parts))
	for i, part := range parts {
		name := strings.TrimSpace(part.FileName)
		mime := extract.DetectMIME(name, part.ContentType)
		if name == "" || mime == "" || len(part.Content) == 0 {
			continue
		}
		docs = append(docs, internal.IncomingDocument{
			Source:   provider,
			Ref:      fmt.Sprintf("%s#%d", messageID, i),
			Filename: name,
			MimeType: mime,
			Content:  part.Content,
		})
	}
	return docs, nil
}
