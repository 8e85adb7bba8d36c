package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"offerdesk/internal"
)

const uploadColumns = `id, name, size, mimeType, path, source, ref, status, error, offerCount, createdAt, updatedAt`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUploadItem(s rowScanner) (internal.UploadItem, error) {
	var item internal.UploadItem
	var status string
	err := s.Scan(&item.ID, &item.Name, &item.Size, &item.MimeType, &item.Path, &item.Source, &item.Ref,
		&status, &item.Error, &item.OfferCount, &item.CreatedAt, &item.UpdatedAt)
	item.Status = internal.UploadStatus(status)
	return item, err
}

// InsertUploadItem stores a new item. Items carrying a source ref that was
// already registered are ignored and reported with inserted=false.
func (d *DB) InsertUploadItem(item internal.UploadItem) (bool, error) {
	now := d.timestamp()
	if item.Status == "" {
		item.Status = internal.StatusPending
	}
	res, err := d.conn.Exec(`
INSERT INTO upload_items (id, name, size, mimeType, path, source, ref, status, error, offerCount, createdAt, updatedAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT DO NOTHING
`, item.ID, item.Name, item.Size, item.MimeType, item.Path, item.Source, item.Ref,
		string(item.Status), item.Error, item.OfferCount, now, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		if err := d.SetUploadTimestamp(d.now()); err != nil {
			return true, err
		}
	}
	return n > 0, nil
}

func (d *DB) GetUploadItem(id string) (*internal.UploadItem, error) {
	item, err := scanUploadItem(d.conn.QueryRow(`SELECT `+uploadColumns+` FROM upload_items WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// ListUploadItems returns items in the order they were added.
func (d *DB) ListUploadItems() ([]internal.UploadItem, error) {
	return d.queryUploadItems(`SELECT ` + uploadColumns + ` FROM upload_items ORDER BY seq ASC`)
}

func (d *DB) ListUploadItemsByStatus(status internal.UploadStatus) ([]internal.UploadItem, error) {
	return d.queryUploadItems(`SELECT `+uploadColumns+` FROM upload_items WHERE status = ? ORDER BY seq ASC`, string(status))
}

func (d *DB) queryUploadItems(query string, args ...any) ([]internal.UploadItem, error) {
	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.UploadItem
	for rows.Next() {
		item, err := scanUploadItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

// UpdateUploadStatus moves an item to status. The error message is
// cleared unless status is StatusError.
func (d *DB) UpdateUploadStatus(id string, status internal.UploadStatus, errMsg string, offerCount int) error {
	if status != internal.StatusError {
		errMsg = ""
	}
	res, err := d.conn.Exec(`
UPDATE upload_items SET status = ?, error = ?, offerCount = ?, updatedAt = ? WHERE id = ?
`, string(status), errMsg, offerCount, d.timestamp(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("upload item not found: %s", id)
	}
	return nil
}

// MarkPendingExtracting moves every pending item to extracting and
// returns them in order. Items in any other state are untouched.
func (d *DB) MarkPendingExtracting() ([]internal.UploadItem, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.Query(`SELECT `+uploadColumns+` FROM upload_items WHERE status = ? ORDER BY seq ASC`, string(internal.StatusPending))
	if err != nil {
		return nil, err
	}
	var items []internal.UploadItem
	for rows.Next() {
		item, err := scanUploadItem(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		items = append(items, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	now := d.timestamp()
	if _, err := tx.Exec(`UPDATE upload_items SET status = ?, error = '', updatedAt = ? WHERE status = ?`,
		string(internal.StatusExtracting), now, string(internal.StatusPending)); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	for i := range items {
		items[i].Status = internal.StatusExtracting
		items[i].UpdatedAt = now
	}
	return items, nil
}

// ResetInterrupted returns items left in extracting or uploading by a
// crashed run to pending and reports how many were reset.
func (d *DB) ResetInterrupted() (int, error) {
	res, err := d.conn.Exec(`UPDATE upload_items SET status = ?, updatedAt = ? WHERE status IN (?, ?)`,
		string(internal.StatusPending), d.timestamp(), string(internal.StatusExtracting), string(internal.StatusUploading))
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (d *DB) DeleteUploadItem(id string) (*internal.UploadItem, error) {
	item, err := d.GetUploadItem(id)
	if err != nil || item == nil {
		return item, err
	}
	if _, err := d.conn.Exec(`DELETE FROM upload_items WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return item, nil
}

func (d *DB) SetUploadTimestamp(t time.Time) error {
	return d.SetMetadata(keyUploadTimestamp, t.UTC().Format(time.RFC3339Nano))
}

// UploadTimestamp returns the time of the last registered upload, or the
// zero time when none is recorded.
func (d *DB) UploadTimestamp() (time.Time, error) {
	value, err := d.GetMetadata(keyUploadTimestamp)
	if err != nil || value == nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, *value)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}
