package pmtiles

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/paulmach/orb"
)

// Compression is the compression algorithm applied to individual tiles (or none)
type Compression uint8

const (
	UnknownCompression Compression = 0
	NoCompression      Compression = 1
	Gzip               Compression = 2
	Brotli             Compression = 3
	Zstd               Compression = 4
)

func parseCompression(b byte) (Compression, error) {
	if b > uint8(Zstd) {
		return UnknownCompression, fmt.Errorf("%w: compression 0x%02x", ErrInvalidValue, b)
	}
	return Compression(b), nil
}

func (c Compression) String() string {
	switch c {
	case NoCompression:
		return "none"
	case Gzip:
		return "gzip"
	case Brotli:
		return "br"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// TileType is the format of individual tile contents in the archive.
type TileType uint8

const (
	UnknownTileType TileType = 0
	Mvt             TileType = 1
	Png             TileType = 2
	Jpeg            TileType = 3
	Webp            TileType = 4
	Avif            TileType = 5
)

func parseTileType(b byte) (TileType, error) {
	if b > uint8(Avif) {
		return UnknownTileType, fmt.Errorf("%w: tile type 0x%02x", ErrInvalidValue, b)
	}
	return TileType(b), nil
}

func (t TileType) String() string {
	switch t {
	case Mvt:
		return "mvt"
	case Png:
		return "png"
	case Jpeg:
		return "jpg"
	case Webp:
		return "webp"
	case Avif:
		return "avif"
	default:
		return ""
	}
}

func parseClustered(b byte) (bool, error) {
	switch b {
	case 0x0:
		return false, nil
	case 0x1:
		return true, nil
	}
	return false, fmt.Errorf("%w: clustered flag 0x%02x", ErrInvalidValue, b)
}

const (
	// HeaderV3LenBytes is the fixed-size binary header size.
	HeaderV3LenBytes = 127

	// SpecVersion is the only archive version this package reads.
	SpecVersion = 3

	magic = "PMTiles"
)

// HeaderV3 is a binary header for PMTiles specification version 3.
type HeaderV3 struct {
	SpecVersion         uint8
	RootOffset          uint64
	RootLength          uint64
	MetadataOffset      uint64
	MetadataLength      uint64
	LeafDirectoryOffset uint64
	LeafDirectoryLength uint64
	TileDataOffset      uint64
	TileDataLength      uint64
	AddressedTilesCount uint64
	TileEntriesCount    uint64
	TileContentsCount   uint64
	Clustered           bool
	InternalCompression Compression
	TileCompression     Compression
	TileType            TileType
	MinZoom             uint8
	MaxZoom             uint8
	MinPosition         Position
	MaxPosition         Position
	CenterZoom          uint8
	CenterPosition      Position
}

// Bounds returns the archive bounding box as an orb.Bound.
func (h HeaderV3) Bounds() orb.Bound {
	return orb.Bound{
		Min: orb.Point{h.MinPosition.Lon, h.MinPosition.Lat},
		Max: orb.Point{h.MaxPosition.Lon, h.MaxPosition.Lat},
	}
}

// inTileData reports whether rng lies inside the tile data section.
func (h HeaderV3) inTileData(rng Range) bool {
	return rng.Offset >= h.TileDataOffset &&
		rng.Length <= h.TileDataLength &&
		rng.Offset-h.TileDataOffset <= h.TileDataLength-rng.Length
}

// Center returns the default view position as an orb.Point.
func (h HeaderV3) Center() orb.Point {
	return orb.Point{h.CenterPosition.Lon, h.CenterPosition.Lat}
}

// TileRange converts a directory entry's region-relative offset into an
// absolute byte range of the archive.
func (h HeaderV3) TileRange(entry EntryV3) Range {
	return Range{Offset: h.TileDataOffset + entry.Offset, Length: entry.Length}
}

func headerContentType(header HeaderV3) (string, bool) {
	switch header.TileType {
	case Mvt:
		return "application/x-protobuf", true
	case Png:
		return "image/png", true
	case Jpeg:
		return "image/jpeg", true
	case Webp:
		return "image/webp", true
	case Avif:
		return "image/avif", true
	default:
		return "", false
	}
}

func headerContentEncoding(compression Compression) (string, bool) {
	switch compression {
	case Gzip:
		return "gzip", true
	case Brotli:
		return "br", true
	case Zstd:
		return "zstd", true
	default:
		return "", false
	}
}

// DeserializeHeader decodes the fixed 127-byte header. The magic number and
// version are checked before anything else is read and a partially decoded
// header is never returned.
func DeserializeHeader(d []byte) (HeaderV3, error) {
	if len(d) < len(magic)+1 {
		return HeaderV3{}, fmt.Errorf("reading header: %w", io.ErrUnexpectedEOF)
	}
	if string(d[0:7]) != magic {
		return HeaderV3{}, ErrInvalidMagic
	}
	if d[7] != SpecVersion {
		return HeaderV3{}, fmt.Errorf("%w: archive is spec version %d, but this program only supports version %d", ErrInvalidVersion, d[7], SpecVersion)
	}
	if len(d) < HeaderV3LenBytes {
		return HeaderV3{}, fmt.Errorf("reading header: %w", io.ErrUnexpectedEOF)
	}

	clustered, err := parseClustered(d[96])
	if err != nil {
		return HeaderV3{}, err
	}
	internalCompression, err := parseCompression(d[97])
	if err != nil {
		return HeaderV3{}, fmt.Errorf("internal %w", err)
	}
	tileCompression, err := parseCompression(d[98])
	if err != nil {
		return HeaderV3{}, fmt.Errorf("tile %w", err)
	}
	tileType, err := parseTileType(d[99])
	if err != nil {
		return HeaderV3{}, err
	}

	h := HeaderV3{}
	h.SpecVersion = d[7]
	h.RootOffset = binary.LittleEndian.Uint64(d[8 : 8+8])
	h.RootLength = binary.LittleEndian.Uint64(d[16 : 16+8])
	h.MetadataOffset = binary.LittleEndian.Uint64(d[24 : 24+8])
	h.MetadataLength = binary.LittleEndian.Uint64(d[32 : 32+8])
	h.LeafDirectoryOffset = binary.LittleEndian.Uint64(d[40 : 40+8])
	h.LeafDirectoryLength = binary.LittleEndian.Uint64(d[48 : 48+8])
	h.TileDataOffset = binary.LittleEndian.Uint64(d[56 : 56+8])
	h.TileDataLength = binary.LittleEndian.Uint64(d[64 : 64+8])
	h.AddressedTilesCount = binary.LittleEndian.Uint64(d[72 : 72+8])
	h.TileEntriesCount = binary.LittleEndian.Uint64(d[80 : 80+8])
	h.TileContentsCount = binary.LittleEndian.Uint64(d[88 : 88+8])
	h.Clustered = clustered
	h.InternalCompression = internalCompression
	h.TileCompression = tileCompression
	h.TileType = tileType
	h.MinZoom = d[100]
	h.MaxZoom = d[101]
	h.MinPosition = PositionFromPacked(binary.LittleEndian.Uint64(d[102 : 102+8]))
	h.MaxPosition = PositionFromPacked(binary.LittleEndian.Uint64(d[110 : 110+8]))
	h.CenterZoom = d[118]
	h.CenterPosition = PositionFromPacked(binary.LittleEndian.Uint64(d[119 : 119+8]))

	return h, nil
}

// Position is a latitude/longitude pair in degrees.
type Position struct {
	Lat float64
	Lon float64
}

const e7 = 10000000.0

// PositionFromPacked splits a packed header position: the low 32 bits hold
// longitude*10^7, the high 32 bits latitude*10^7, both signed.
func PositionFromPacked(v uint64) Position {
	lonE7 := int32(uint32(v))
	latE7 := int32(uint32(v >> 32))
	return Position{Lat: float64(latE7) / e7, Lon: float64(lonE7) / e7}
}

// Packed is the inverse of PositionFromPacked. It is exact for positions
// with at most seven decimal places.
func (p Position) Packed() uint64 {
	lonE7 := int32(math.Round(p.Lon * e7))
	latE7 := int32(math.Round(p.Lat * e7))
	return uint64(uint32(latE7))<<32 | uint64(uint32(lonE7))
}

// Point returns the position as an orb.Point (lon, lat).
func (p Position) Point() orb.Point {
	return orb.Point{p.Lon, p.Lat}
}
