package segment

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/codec"
)

// body is the CBOR payload. Terms are stored in column order, so the
// vocabulary is rebuilt from their positions.
type body[T any] struct {
	Options  tokenizer.Options `cbor:"1,keyasint"`
	Terms    []string          `cbor:"2,keyasint"`
	IDF      []float64         `cbor:"3,keyasint"`
	Rows     []index.Vector    `cbor:"4,keyasint"`
	Payloads []T               `cbor:"5,keyasint"`
}

// Encode serialises snap into a self-describing blob.
func Encode[T any](snap *ranker.Snapshot[T], c Compression) ([]byte, Header, error) {
	if snap == nil {
		return nil, Header{}, fmt.Errorf("encoding snapshot: nil snapshot")
	}
	if len(snap.Rows) != len(snap.Payloads) {
		return nil, Header{}, fmt.Errorf("encoding snapshot: %d rows, %d payloads", len(snap.Rows), len(snap.Payloads))
	}
	raw, err := codec.Marshal(body[T]{
		Options:  snap.Options,
		Terms:    snap.Terms,
		IDF:      snap.IDF,
		Rows:     snap.Rows,
		Payloads: snap.Payloads,
	})
	if err != nil {
		return nil, Header{}, fmt.Errorf("encoding snapshot body: %w", err)
	}
	if len(raw) > math.MaxUint32 {
		return nil, Header{}, fmt.Errorf("encoding snapshot: body of %d bytes exceeds format limit", len(raw))
	}
	stored, used, err := compress(raw, c)
	if err != nil {
		return nil, Header{}, fmt.Errorf("compressing snapshot body: %w", err)
	}
	h := Header{
		Version:     FormatVersion,
		Compression: used,
		RawLen:      uint32(len(raw)),
		BodyLen:     uint32(len(stored)),
		Digest:      digest(raw),
	}
	blob := make([]byte, 0, HeaderSize+len(stored))
	blob = append(blob, h.marshal()...)
	blob = append(blob, stored...)
	return blob, h, nil
}

// WriteFile atomically replaces path with blob. It writes to a .tmp file
// in the same directory, syncs it and renames it over path.
func WriteFile(path string, blob []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot file: %w", err)
	}
	defer os.Remove(tmpPath)

	if _, err := f.Write(blob); err != nil {
		f.Close()
		return fmt.Errorf("writing snapshot: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("syncing snapshot file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing snapshot file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
	return nil
}
