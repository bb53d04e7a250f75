package pmtiles

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecompressRoundtrip(t *testing.T) {
	data := bytes.Repeat([]byte("vector tile payload "), 100)
	for _, c := range []Compression{NoCompression, Gzip, Brotli, Zstd} {
		t.Run(c.String(), func(t *testing.T) {
			compressed := compressBytes(t, data, c)
			before := bytes.Clone(compressed)
			result, err := DefaultDecompressor.Decompress(compressed, c)
			require.NoError(t, err)
			assert.Equal(t, data, result)
			assert.Equal(t, before, compressed, "input must not be modified")
		})
	}
}

func TestDecompressNoneCopies(t *testing.T) {
	data := []byte{1, 2, 3}
	result, err := Decompress(data, NoCompression)
	require.NoError(t, err)
	result[0] = 9
	assert.Equal(t, byte(1), data[0])
}

func TestDecompressFailures(t *testing.T) {
	garbage := []byte("definitely not compressed")
	for _, c := range []Compression{Gzip, Brotli, Zstd, UnknownCompression, Compression(9)} {
		t.Run(c.String(), func(t *testing.T) {
			_, err := Decompress(garbage, c)
			assert.ErrorIs(t, err, ErrDecompressionFailed)
		})
	}
}

func TestDecompressorFunc(t *testing.T) {
	var seen Compression
	d := DecompressorFunc(func(data []byte, c Compression) ([]byte, error) {
		seen = c
		if c == Zstd {
			return nil, errors.New("zstd disabled")
		}
		return data, nil
	})
	_, err := d.Decompress(nil, Zstd)
	assert.Error(t, err)
	assert.Equal(t, Zstd, seen)
}
