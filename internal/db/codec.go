package db

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
)

// encodeBlob gob-encodes v and gzips the result.
func encodeBlob(v any) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(v); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeBlob reverses encodeBlob into out, which must be a pointer.
func decodeBlob(blob []byte, out any) error {
	if len(blob) == 0 {
		return fmt.Errorf("empty blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()
	if err := gob.NewDecoder(gz).Decode(out); err != nil {
		return fmt.Errorf("failed to decode blob: %w", err)
	}
	return nil
}

// encodeOptional stores nil slices as SQL NULL.
func encodeOptional[T any](v []T) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return encodeBlob(v)
}

func decodeFloats(blob []byte) ([]float64, error) {
	var out []float64
	if err := decodeBlob(blob, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func decodeInts(blob []byte) ([]int32, error) {
	if blob == nil {
		return nil, nil
	}
	var out []int32
	if err := decodeBlob(blob, &out); err != nil {
		return nil, err
	}
	return out, nil
}
