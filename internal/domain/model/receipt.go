// Package model contains domain models passed between layers.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMissingField is returned by Receipt.Validate.
var ErrMissingField = errors.New("missing required field")

// Amount is a decimal money value kept as its original text, e.g. "35.35".
// It decodes from either a JSON string or a JSON number.
type Amount string

// UnmarshalJSON accepts "6.49", 6.49 and null.
func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*a = ""
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*a = Amount(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("amount must be a string or number: %w", err)
	}
	*a = Amount(n.String())
	return nil
}

// Item is a single receipt line.
type Item struct {
	ShortDescription string `json:"shortDescription"`
	Price            Amount `json:"price"`
}

// Receipt is the purchase record submitted for scoring.
type Receipt struct {
	Retailer     string `json:"retailer"`
	PurchaseDate string `json:"purchaseDate"` // YYYY-MM-DD
	PurchaseTime string `json:"purchaseTime"` // HH:MM, 24h
	Items        []Item `json:"items"`
	Total        Amount `json:"total"`
}

// Validate checks that every required field is present. Items must be
// present but may be an empty list.
func (r *Receipt) Validate() error {
	switch {
	case r.Retailer == "":
		return fmt.Errorf("%w: retailer", ErrMissingField)
	case r.PurchaseDate == "":
		return fmt.Errorf("%w: purchaseDate", ErrMissingField)
	case r.PurchaseTime == "":
		return fmt.Errorf("%w: purchaseTime", ErrMissingField)
	case r.Items == nil:
		return fmt.Errorf("%w: items", ErrMissingField)
	case r.Total == "":
		return fmt.Errorf("%w: total", ErrMissingField)
	}
	return nil
}

// StoredReceipt is a scored receipt as held by the store. It is never
// modified after creation.
type StoredReceipt struct {
	ID string `json:"id"`
	Receipt
	Points      int       `json:"points"`
	ProcessedAt time.Time `json:"processedAt"`
}
