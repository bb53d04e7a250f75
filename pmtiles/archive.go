package pmtiles

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"
	"golang.org/x/exp/mmap"
)

// Archive reads tiles out of a PMTiles v3 archive held in an io.ReaderAt.
// The underlying bytes are never written. Directories are decoded fresh on
// every lookup; callers that need caching keep their own.
type Archive struct {
	r            io.ReaderAt
	size         int64
	closer       io.Closer
	header       HeaderV3
	decompressor Decompressor
	logger       *zap.Logger
}

// Option configures an Archive.
type Option func(*Archive)

// WithDecompressor replaces DefaultDecompressor.
func WithDecompressor(d Decompressor) Option {
	return func(a *Archive) {
		a.decompressor = d
	}
}

// WithLogger sets the logger used for debug output.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// NewArchive validates the header of the size bytes readable from r.
func NewArchive(r io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	a := &Archive{
		r:            r,
		size:         size,
		decompressor: DefaultDecompressor,
		logger:       zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if c, ok := r.(io.Closer); ok {
		a.closer = c
	}

	headerLen := uint64(HeaderV3LenBytes)
	if uint64(size) < headerLen {
		headerLen = uint64(size)
	}
	b, err := a.readRange(0, headerLen)
	if err != nil {
		return nil, err
	}
	header, err := DeserializeHeader(b)
	if err != nil {
		return nil, err
	}
	a.header = header
	return a, nil
}

// NewArchiveFromBytes reads an archive that is already in memory.
func NewArchiveFromBytes(b []byte, opts ...Option) (*Archive, error) {
	return NewArchive(bytes.NewReader(b), int64(len(b)), opts...)
}

// OpenFile memory-maps a local archive.
func OpenFile(path string, opts ...Option) (*Archive, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %w", path, err)
	}
	a, err := NewArchive(m, int64(m.Len()), opts...)
	if err != nil {
		m.Close()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return a, nil
}

// OpenBucketArchive opens the object key of bucket as an archive. Reads go
// through ctx; closing the archive leaves the bucket open.
func OpenBucketArchive(ctx context.Context, bucket Bucket, key string, opts ...Option) (*Archive, error) {
	size, err := bucket.Size(ctx, key)
	if err != nil {
		return nil, err
	}
	return NewArchive(NewBucketReaderAt(ctx, bucket, key, size), size, opts...)
}

// Close releases the underlying reader if it holds resources.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// Header returns the decoded archive header.
func (a *Archive) Header() HeaderV3 {
	return a.header
}

// Size is the total archive length in bytes.
func (a *Archive) Size() int64 {
	return a.size
}

func (a *Archive) readRange(offset uint64, length uint64) ([]byte, error) {
	end := offset + length
	if end < offset || end > uint64(a.size) {
		return nil, fmt.Errorf("%w: %d+%d of %d", ErrRangeOutOfBounds, offset, length, a.size)
	}
	a.logger.Debug("read range", zap.Uint64("offset", offset), zap.Uint64("length", length))
	b := make([]byte, length)
	n, err := a.r.ReadAt(b, int64(offset))
	if n == len(b) {
		return b, nil
	}
	if err == nil || err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	return nil, fmt.Errorf("reading %d+%d: %w", offset, length, err)
}

// RootDirectory decompresses and decodes the root directory.
func (a *Archive) RootDirectory() (Directory, error) {
	b, err := a.readRange(a.header.RootOffset, a.header.RootLength)
	if err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}
	entries, err := ReadDirectory(b, a.header.InternalCompression, a.decompressor)
	if err != nil {
		return nil, fmt.Errorf("root directory: %w", err)
	}
	return entries, nil
}

// Locate returns the absolute byte range holding tileID. A tile that is not
// in the archive yields ok=false and no error.
func (a *Archive) Locate(tileID uint64) (Range, bool, error) {
	entries, err := a.RootDirectory()
	if err != nil {
		return Range{}, false, err
	}
	return ResolveTile(a.header, entries, tileID)
}

// LocateZxy is Locate for a tile-grid coordinate.
func (a *Archive) LocateZxy(z uint8, x uint32, y uint32) (Range, bool, error) {
	tileID, err := ZxyToID(z, x, y)
	if err != nil {
		return Range{}, false, err
	}
	return a.Locate(tileID)
}

// ReadTile returns the tile bytes as stored, still under the header's
// TileCompression. A missing tile returns nil, false.
func (a *Archive) ReadTile(z uint8, x uint32, y uint32) ([]byte, bool, error) {
	rng, ok, err := a.LocateZxy(z, x, y)
	if err != nil || !ok {
		return nil, false, err
	}
	if !a.header.inTileData(rng) {
		return nil, false, fmt.Errorf("%w: tile %d/%d/%d outside of tile data section", ErrRangeOutOfBounds, z, x, y)
	}
	b, err := a.readRange(rng.Offset, rng.Length)
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

// ReadTileDecompressed is ReadTile followed by decompression of the payload.
func (a *Archive) ReadTileDecompressed(z uint8, x uint32, y uint32) ([]byte, bool, error) {
	b, ok, err := a.ReadTile(z, x, y)
	if err != nil || !ok {
		return nil, ok, err
	}
	data, err := a.decompressor.Decompress(b, a.header.TileCompression)
	if err != nil {
		return nil, false, fmt.Errorf("tile %d/%d/%d: %w", z, x, y, err)
	}
	return data, true, nil
}

// MetadataBytes returns the decompressed JSON metadata.
func (a *Archive) MetadataBytes() ([]byte, error) {
	if a.header.MetadataLength == 0 {
		return nil, nil
	}
	b, err := a.readRange(a.header.MetadataOffset, a.header.MetadataLength)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	data, err := a.decompressor.Decompress(b, a.header.InternalCompression)
	if err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return data, nil
}

// Metadata returns the JSON metadata as a map. An empty region yields an
// empty map.
func (a *Archive) Metadata() (map[string]any, error) {
	data, err := a.MetadataBytes()
	if err != nil {
		return nil, err
	}
	metadata := make(map[string]any)
	if len(bytes.TrimSpace(data)) == 0 {
		return metadata, nil
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return nil, fmt.Errorf("metadata: %w", err)
	}
	return metadata, nil
}
