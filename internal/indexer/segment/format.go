// Package segment is the on-disk form of a fitted ranker: a fixed header
// followed by a compressed, deterministic CBOR body.
//
// Header layout (little endian, 32 bytes):
//
//	0:4    magic "PSIX"
//	4:6    format version
//	6      compression tag
//	7      reserved, zero
//	8:12   uncompressed body length
//	12:16  stored body length
//	16:32  first 16 bytes of the BLAKE3-256 digest of the uncompressed body
package segment

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
	"github.com/zeebo/blake3"

	apperrors "github.com/Adithya-Monish-Kumar-K/Paper-Search-Platform/pkg/errors"
)

const (
	Magic         = "PSIX"
	FormatVersion = uint16(1)
	HeaderSize    = 32
	DigestSize    = 16
)

// Compression identifies how the body is stored. The values are written
// into the header and must not change.
type Compression uint8

const (
	CompressionNone Compression = 0
	CompressionLZ4  Compression = 1
	CompressionZstd Compression = 2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", c)
	}
}

// ParseCompression maps a config value to a Compression. Empty means zstd.
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	case "none":
		return CompressionNone, nil
	}
	return 0, fmt.Errorf("unknown compression %q", name)
}

// Header is the decoded fixed header of a snapshot blob.
type Header struct {
	Version     uint16
	Compression Compression
	RawLen      uint32
	BodyLen     uint32
	Digest      [DigestSize]byte
}

// Fingerprint is the hex digest prefix, stable for identical snapshots
// regardless of compression.
func (h Header) Fingerprint() string {
	return hex.EncodeToString(h.Digest[:])
}

func (h Header) marshal() []byte {
	b := make([]byte, HeaderSize)
	copy(b[0:4], Magic)
	binary.LittleEndian.PutUint16(b[4:6], h.Version)
	b[6] = byte(h.Compression)
	binary.LittleEndian.PutUint32(b[8:12], h.RawLen)
	binary.LittleEndian.PutUint32(b[12:16], h.BodyLen)
	copy(b[16:32], h.Digest[:])
	return b
}

// ParseHeader validates and decodes the header at the start of blob.
func ParseHeader(blob []byte) (Header, error) {
	if len(blob) < HeaderSize {
		return Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "blob is %d bytes, shorter than header", len(blob))
	}
	if string(blob[0:4]) != Magic {
		return Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "bad magic %x", blob[0:4])
	}
	h := Header{
		Version:     binary.LittleEndian.Uint16(blob[4:6]),
		Compression: Compression(blob[6]),
		RawLen:      binary.LittleEndian.Uint32(blob[8:12]),
		BodyLen:     binary.LittleEndian.Uint32(blob[12:16]),
	}
	copy(h.Digest[:], blob[16:32])
	if h.Version != FormatVersion {
		return Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "unsupported format version %d", h.Version)
	}
	if h.Compression > CompressionZstd {
		return Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "unknown compression tag %d", h.Compression)
	}
	if int(h.BodyLen) != len(blob)-HeaderSize {
		return Header{}, apperrors.Wrap(apperrors.ErrCorruptSnapshot, "header says %d body bytes, blob has %d", h.BodyLen, len(blob)-HeaderSize)
	}
	return h, nil
}

func digest(raw []byte) [DigestSize]byte {
	sum := blake3.Sum256(raw)
	var d [DigestSize]byte
	copy(d[:], sum[:DigestSize])
	return d
}

var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("segment: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("segment: zstd decoder initialization failed: " + err.Error())
	}
}

var errIncompressible = errors.New("body is incompressible")

// compress returns the stored body and the compression actually used.
// Bodies that do not shrink are stored uncompressed.
func compress(raw []byte, c Compression) ([]byte, Compression, error) {
	var (
		out []byte
		err error
	)
	switch c {
	case CompressionNone:
		return raw, CompressionNone, nil
	case CompressionLZ4:
		out, err = compressLZ4(raw)
	case CompressionZstd:
		out = zstdEncoder.EncodeAll(raw, nil)
		if len(out) >= len(raw) {
			err = errIncompressible
		}
	default:
		return nil, 0, fmt.Errorf("unsupported compression %s", c)
	}
	if errors.Is(err, errIncompressible) {
		return raw, CompressionNone, nil
	}
	if err != nil {
		return nil, 0, err
	}
	return out, c, nil
}

func compressLZ4(raw []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(raw)))
	n, err := lz4.CompressBlock(raw, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	if n == 0 || n >= len(raw) {
		return nil, errIncompressible
	}
	return dst[:n], nil
}

// maxExpansion bounds RawLen against the stored body size. LZ4 blocks
// cannot expand further, and zstd never gets near it on CBOR snapshots.
// RawLen is read before the digest is checked, so it is not trusted for
// allocation until it passes this bound.
const maxExpansion = 255

func decompress(body []byte, c Compression, rawLen int) ([]byte, error) {
	if c != CompressionNone && rawLen > len(body)*maxExpansion {
		return nil, fmt.Errorf("header claims %d raw bytes for a %d byte body", rawLen, len(body))
	}
	switch c {
	case CompressionNone:
		if len(body) != rawLen {
			return nil, fmt.Errorf("stored body is %d bytes, expected %d", len(body), rawLen)
		}
		return body, nil
	case CompressionLZ4:
		dst := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(body, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if n != rawLen {
			return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", n, rawLen)
		}
		return dst, nil
	case CompressionZstd:
		out, err := zstdDecoder.DecodeAll(body, make([]byte, 0, rawLen))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(out) != rawLen {
			return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(out), rawLen)
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported compression %s", c)
}
