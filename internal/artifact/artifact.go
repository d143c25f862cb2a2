// Package artifact persists the flattened record set between the flatten and
// load stages. An artifact is a JSON array of domain.FlatRecord, written once
// per run and read back by the loader.
package artifact

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

// Store writes and reads artifacts. Locations are opaque strings produced by
// Write and accepted by Read and Remove.
type Store interface {
	Write(ctx context.Context, runID string, records []domain.FlatRecord) (string, error)
	Read(ctx context.Context, location string) ([]domain.FlatRecord, error)
	Remove(ctx context.Context, location string) error
}

// Encode writes records as a JSON array. A nil slice is written as [].
func Encode(w io.Writer, records []domain.FlatRecord) error {
	if records == nil {
		records = []domain.FlatRecord{}
	}
	enc := json.NewEncoder(w)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	return nil
}

// Decode reads a JSON array of records. Anything other than a single array
// is rejected.
func Decode(r io.Reader) ([]domain.FlatRecord, error) {
	dec := json.NewDecoder(r)
	var records []domain.FlatRecord
	if err := dec.Decode(&records); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("decode artifact: empty")
		}
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if records == nil {
		return nil, errors.New("decode artifact: expected a JSON array, got null")
	}
	if dec.More() {
		return nil, errors.New("decode artifact: trailing data after array")
	}
	return records, nil
}

// DecodeBytes is Decode over an in-memory payload.
func DecodeBytes(data []byte) ([]domain.FlatRecord, error) {
	return Decode(bytes.NewReader(data))
}
