package connectors

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"offerdesk/internal"
	"offerdesk/internal/storage"
)

const (
	MessageFetched    = "fetched"
	MessageRegistered = "registered"
	MessageFailed     = "failed"
)

// MailStore keeps a copy of every fetched message on disk, keyed by the
// content hash, and records it in intake_messages.
type MailStore struct {
	db         *storage.DB
	rawMailDir string
}

func NewMailStore(db *storage.DB, rawMailDir string) *MailStore {
	return &MailStore{db: db, rawMailDir: rawMailDir}
}

func (s *MailStore) Store(msg internal.MailMessage) (internal.IntakeMessage, error) {
	hashBytes := sha256.Sum256(msg.Raw)
	hash := hex.EncodeToString(hashBytes[:])

	if err := os.MkdirAll(s.rawMailDir, 0o755); err != nil {
		return internal.IntakeMessage{}, err
	}

	rawPath := filepath.Join(s.rawMailDir, hash+".eml")
	if _, err := os.Stat(rawPath); os.IsNotExist(err) {
		if err := os.WriteFile(rawPath, msg.Raw, 0o644); err != nil {
			return internal.IntakeMessage{}, err
		}
	}

	return s.db.UpsertIntakeMessage(msg.Provider, msg.MessageID, msg.Subject, msg.From, msg.ReceivedAt, hash, rawPath, MessageFetched)
}

func (s *MailStore) MarkStatus(row internal.IntakeMessage, status string) error {
	return s.db.UpdateIntakeMessageStatus(row.ID, status)
}
