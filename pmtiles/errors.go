package pmtiles

import "errors"

var (
	// ErrInvalidMagic means the buffer does not start with the PMTiles magic number.
	ErrInvalidMagic = errors.New("magic number not detected. confirm this is a PMTiles archive")
	// ErrInvalidVersion means the archive is not spec version 3.
	ErrInvalidVersion = errors.New("unsupported spec version")
	// ErrInvalidValue is returned for out-of-range enumerations and inconsistent encoded values.
	ErrInvalidValue = errors.New("invalid value")
	// ErrVarintOverflow means a varint does not fit in 64 bits.
	ErrVarintOverflow = errors.New("varint overflows a 64-bit integer")
	// ErrZoomTooHigh means a tile cannot be addressed in the 64-bit tile id space.
	ErrZoomTooHigh = errors.New("tile zoom exceeds 64-bit limit")
	// ErrDecompressionFailed wraps failures of the decompression collaborator.
	ErrDecompressionFailed = errors.New("decompression failed")
	// ErrLeafDirectoryUnsupported is returned when a lookup lands on a leaf directory pointer.
	ErrLeafDirectoryUnsupported = errors.New("leaf directories are not supported")
	// ErrRangeOutOfBounds means a region lies outside the archive buffer.
	ErrRangeOutOfBounds = errors.New("byte range outside of archive")
)
