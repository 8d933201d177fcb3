package segment

import (
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/codec"
	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
)

// Decode parses a blob produced by Encode. Any structural problem,
// including a digest mismatch or a body holding only the matrix or only
// the payloads, is reported as ErrCorruptSnapshot.
func Decode[T any](blob []byte) (*ranker.Snapshot[T], Header, error) {
	h, err := ParseHeader(blob)
	if err != nil {
		return nil, Header{}, err
	}
	raw, err := decompress(blob[HeaderSize:], h.Compression, int(h.RawLen))
	if err != nil {
		return nil, Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "%v", err)
	}
	if digest(raw) != h.Digest {
		return nil, Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "digest mismatch")
	}

	var b body[T]
	if err := codec.Unmarshal(raw, &b); err != nil {
		return nil, Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "decoding body: %v", err)
	}
	if len(b.Rows) == 0 || len(b.Rows) != len(b.Payloads) {
		return nil, Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "%d rows, %d payloads", len(b.Rows), len(b.Payloads))
	}
	if len(b.IDF) != len(b.Terms) {
		return nil, Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "idf has %d entries for %d terms", len(b.IDF), len(b.Terms))
	}
	return &ranker.Snapshot[T]{
		Options:  b.Options,
		Terms:    b.Terms,
		IDF:      b.IDF,
		Rows:     b.Rows,
		Payloads: b.Payloads,
	}, h, nil
}

// ReadFile reads a snapshot blob from path.
func ReadFile(path string) ([]byte, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading snapshot file: %w", err)
	}
	return blob, nil
}

// Load reads and decodes the snapshot at path and restores it into r.
func Load[T any](path string, r *ranker.Ranker[T]) (Header, error) {
	blob, err := ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	snap, h, err := Decode[T](blob)
	if err != nil {
		return Header{}, fmt.Errorf("decoding %s: %w", path, err)
	}
	if err := r.Restore(snap); err != nil {
		return Header{}, fmt.Errorf("restoring %s: %w", path, err)
	}
	return h, nil
}
