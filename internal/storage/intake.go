package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"offerdesk/internal"
)

func (d *DB) UpsertIntakeMessage(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.IntakeMessage, error) {
	_, err := d.conn.Exec(`
INSERT INTO intake_messages (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.IntakeMessage{}, err
	}

	row, err := d.GetIntakeMessage(provider, messageID)
	if err != nil {
		return internal.IntakeMessage{}, err
	}
	if row == nil {
		return internal.IntakeMessage{}, errors.New("failed to upsert intake message")
	}
	return *row, nil
}

func (d *DB) GetIntakeMessage(provider, messageID string) (*internal.IntakeMessage, error) {
	var row internal.IntakeMessage
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM intake_messages WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) UpdateIntakeMessageStatus(id int, status string) error {
	res, err := d.conn.Exec(`UPDATE intake_messages SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("intake message not found: %d", id)
	}
	return nil
}

func (d *DB) InsertRun(traceID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO batch_runs (traceId, timingsJson, countsJson) VALUES (?, ?, ?)`, traceID, string(timingsJSON), string(countsJSON))
	return err
}
