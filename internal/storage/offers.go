package storage

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"offerdesk/internal"
	"offerdesk/internal/logger"
)

// LoadOffers restores the offer slot. A slot that does not decode to an
// array of offers is cleared and reported as empty.
func (d *DB) LoadOffers() ([]internal.Offer, error) {
	value, err := d.GetMetadata(keyOffers)
	if err != nil || value == nil {
		return nil, err
	}
	offers, ok := decodeOffers(*value)
	if !ok {
		logger.Warn("storage: offers slot is not an array, clearing it")
		if err := deleteMetadata(d.conn, keyOffers); err != nil {
			return nil, err
		}
		return nil, nil
	}
	return offers, nil
}

func decodeOffers(value string) ([]internal.Offer, bool) {
	if !strings.HasPrefix(strings.TrimSpace(value), "[") {
		return nil, false
	}
	var offers []internal.Offer
	if err := json.Unmarshal([]byte(value), &offers); err != nil {
		return nil, false
	}
	return offers, true
}

// SaveOffers replaces the offer slot.
func (d *DB) SaveOffers(offers []internal.Offer) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := writeOffers(tx, offers); err != nil {
		return err
	}
	return tx.Commit()
}

// AppendOffers adds offers to the end of the slot and returns the new
// slot length.
func (d *DB) AppendOffers(offers []internal.Offer) (int, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	current, err := readOffers(tx)
	if err != nil {
		return 0, err
	}
	current = append(current, offers...)
	if err := writeOffers(tx, current); err != nil {
		return 0, err
	}
	return len(current), tx.Commit()
}

// UpdateOffer applies fn to the offer at index and persists the result.
func (d *DB) UpdateOffer(index int, fn func(*internal.Offer) error) (internal.Offer, error) {
	tx, err := d.conn.Begin()
	if err != nil {
		return internal.Offer{}, err
	}
	defer tx.Rollback()

	offers, err := readOffers(tx)
	if err != nil {
		return internal.Offer{}, err
	}
	if index < 0 || index >= len(offers) {
		return internal.Offer{}, fmt.Errorf("offer index out of range: %d", index)
	}
	if err := fn(&offers[index]); err != nil {
		return internal.Offer{}, err
	}
	if err := writeOffers(tx, offers); err != nil {
		return internal.Offer{}, err
	}
	return offers[index], tx.Commit()
}

func readOffers(ex execer) ([]internal.Offer, error) {
	value, err := getMetadata(ex, keyOffers)
	if err != nil || value == nil {
		return nil, err
	}
	offers, _ := decodeOffers(*value)
	return offers, nil
}

func writeOffers(ex execer, offers []internal.Offer) error {
	if offers == nil {
		offers = []internal.Offer{}
	}
	blob, err := json.Marshal(offers)
	if err != nil {
		return err
	}
	if err := setMetadata(ex, keyOffers, string(blob)); err != nil {
		return err
	}
	return bumpRevision(ex)
}

// OffersRevision increases every time the offer slot is written.
func (d *DB) OffersRevision() (int64, error) {
	return readRevision(d.conn)
}

func readRevision(ex execer) (int64, error) {
	value, err := getMetadata(ex, keyOffersRevision)
	if err != nil || value == nil {
		return 0, err
	}
	rev, err := strconv.ParseInt(*value, 10, 64)
	if err != nil {
		return 0, nil
	}
	return rev, nil
}

func bumpRevision(ex execer) error {
	rev, err := readRevision(ex)
	if err != nil {
		return err
	}
	return setMetadata(ex, keyOffersRevision, strconv.FormatInt(rev+1, 10))
}

func (d *DB) SetProcessing(processing bool) error {
	state := internal.ProcessingState{Processing: processing}
	if processing {
		state.Since = d.timestamp()
	}
	blob, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return d.SetMetadata(keyProcessingState, string(blob))
}

func (d *DB) ProcessingState() (internal.ProcessingState, error) {
	value, err := d.GetMetadata(keyProcessingState)
	if err != nil || value == nil {
		return internal.ProcessingState{}, err
	}
	var state internal.ProcessingState
	if err := json.Unmarshal([]byte(*value), &state); err != nil {
		return internal.ProcessingState{}, nil
	}
	return state, nil
}
