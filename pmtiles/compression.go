package pmtiles

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Decompressor turns a compressed archive region into raw bytes.
// Implementations must not modify data.
type Decompressor interface {
	Decompress(data []byte, compression Compression) ([]byte, error)
}

// DecompressorFunc adapts a function to the Decompressor interface.
type DecompressorFunc func(data []byte, compression Compression) ([]byte, error)

func (f DecompressorFunc) Decompress(data []byte, compression Compression) ([]byte, error) {
	return f(data, compression)
}

// DefaultDecompressor handles every compression the header can declare.
var DefaultDecompressor Decompressor = DecompressorFunc(Decompress)

var zstdDecoderPool = sync.Pool{
	New: func() any {
		decoder, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			panic(fmt.Sprintf("failed to create zstd decoder: %v", err))
		}
		return decoder
	},
}

// Decompress decodes data compressed with the given algorithm.
func Decompress(data []byte, compression Compression) ([]byte, error) {
	switch compression {
	case NoCompression:
		return bytes.Clone(data), nil
	case Gzip:
		reader, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: gzip: %w", ErrDecompressionFailed, err)
		}
		defer reader.Close()
		return readAllDecompressed(reader, compression)
	case Brotli:
		return readAllDecompressed(brotli.NewReader(bytes.NewReader(data)), compression)
	case Zstd:
		decoder := zstdDecoderPool.Get().(*zstd.Decoder)
		defer zstdDecoderPool.Put(decoder)
		result, err := decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: zstd: %w", ErrDecompressionFailed, err)
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: unsupported compression %d", ErrDecompressionFailed, compression)
}

func readAllDecompressed(r io.Reader, compression Compression) ([]byte, error) {
	result, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDecompressionFailed, compression, err)
	}
	return result, nil
}
