package vector

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// Codecs recorded in vector_storage.codec.
const (
	codecRaw  = 0
	codecZstd = 1
)

// DefaultCompressionThreshold is the blob size from which artifacts are
// stored zstd-compressed.
const DefaultCompressionThreshold = 4 << 10

// A single encoder and decoder serve every store; EncodeAll and DecodeAll
// are safe for concurrent use.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdErr     error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		if zstdEncoder, zstdErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault)); zstdErr != nil {
			return
		}
		zstdDecoder, zstdErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdErr
}

// compressBlob returns the stored form of blob and its codec. Blobs under
// threshold, or that do not shrink, are kept raw.
func compressBlob(blob []byte, threshold int) ([]byte, int, error) {
	if threshold <= 0 || len(blob) < threshold {
		return blob, codecRaw, nil
	}
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, 0, err
	}
	compressed := enc.EncodeAll(blob, make([]byte, 0, len(blob)/2))
	if len(compressed) >= len(blob) {
		return blob, codecRaw, nil
	}
	return compressed, codecZstd, nil
}

func decompressBlob(stored []byte, codec int) ([]byte, error) {
	switch codec {
	case codecRaw:
		return stored, nil
	case codecZstd:
		_, dec, err := zstdCodec()
		if err != nil {
			return nil, err
		}
		out, err := dec.DecodeAll(stored, nil)
		if err != nil {
			return nil, fmt.Errorf("vector: decompressing artifact: %w", err)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("vector: unknown artifact codec %d", codec)
	}
}
