package pmtiles

import (
	"bytes"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"
)

func compressBytes(t *testing.T, data []byte, compression Compression) []byte {
	t.Helper()
	var b bytes.Buffer
	switch compression {
	case NoCompression:
		return bytes.Clone(data)
	case Gzip:
		w, err := gzip.NewWriterLevel(&b, gzip.BestCompression)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case Brotli:
		w := brotli.NewWriter(&b)
		_, err := w.Write(data)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	case Zstd:
		enc, err := zstd.NewWriter(nil)
		require.NoError(t, err)
		defer enc.Close()
		return enc.EncodeAll(data, nil)
	default:
		t.Fatalf("cannot compress with %s", compression)
	}
	return b.Bytes()
}

// rawEntries encodes a directory without compression.
func rawEntries(entries []EntryV3) []byte {
	var b []byte
	b = binary.AppendUvarint(b, uint64(len(entries)))

	lastID := uint64(0)
	for _, entry := range entries {
		b = binary.AppendUvarint(b, entry.TileID-lastID)
		lastID = entry.TileID
	}
	for _, entry := range entries {
		b = binary.AppendUvarint(b, entry.RunLength)
	}
	for _, entry := range entries {
		b = binary.AppendUvarint(b, entry.Length)
	}
	for i, entry := range entries {
		if i > 0 && entry.Offset == entries[i-1].Offset+entries[i-1].Length {
			b = binary.AppendUvarint(b, 0)
		} else {
			b = binary.AppendUvarint(b, entry.Offset+1) // add 1 to not conflict with 0
		}
	}
	return b
}

func serializeEntries(t *testing.T, entries []EntryV3, compression Compression) []byte {
	return compressBytes(t, rawEntries(entries), compression)
}

func serializeHeader(header HeaderV3) []byte {
	b := make([]byte, HeaderV3LenBytes)
	copy(b[0:7], magic)

	b[7] = SpecVersion
	binary.LittleEndian.PutUint64(b[8:8+8], header.RootOffset)
	binary.LittleEndian.PutUint64(b[16:16+8], header.RootLength)
	binary.LittleEndian.PutUint64(b[24:24+8], header.MetadataOffset)
	binary.LittleEndian.PutUint64(b[32:32+8], header.MetadataLength)
	binary.LittleEndian.PutUint64(b[40:40+8], header.LeafDirectoryOffset)
	binary.LittleEndian.PutUint64(b[48:48+8], header.LeafDirectoryLength)
	binary.LittleEndian.PutUint64(b[56:56+8], header.TileDataOffset)
	binary.LittleEndian.PutUint64(b[64:64+8], header.TileDataLength)
	binary.LittleEndian.PutUint64(b[72:72+8], header.AddressedTilesCount)
	binary.LittleEndian.PutUint64(b[80:80+8], header.TileEntriesCount)
	binary.LittleEndian.PutUint64(b[88:88+8], header.TileContentsCount)
	if header.Clustered {
		b[96] = 0x1
	}
	b[97] = uint8(header.InternalCompression)
	b[98] = uint8(header.TileCompression)
	b[99] = uint8(header.TileType)
	b[100] = header.MinZoom
	b[101] = header.MaxZoom
	binary.LittleEndian.PutUint64(b[102:102+8], header.MinPosition.Packed())
	binary.LittleEndian.PutUint64(b[110:110+8], header.MaxPosition.Packed())
	b[118] = header.CenterZoom
	binary.LittleEndian.PutUint64(b[119:119+8], header.CenterPosition.Packed())
	return b
}

type fixture struct {
	internal    Compression
	compression Compression
	tileType    TileType
	metadata    []byte
	// tiles maps tile ids to uncompressed contents
	tiles map[uint64][]byte
	// leaves are added to the root directory as-is
	leaves []EntryV3
}

// build lays out header, root directory, metadata and tile data in that
// order. Consecutive ids with equal contents share a run-length entry and
// equal contents are stored once.
func (f fixture) build(t *testing.T) ([]byte, HeaderV3) {
	t.Helper()
	ids := make([]uint64, 0, len(f.tiles))
	for id := range f.tiles {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var tileData bytes.Buffer
	stored := make(map[string]Range)
	var entries []EntryV3
	for _, id := range ids {
		content := string(f.tiles[id])
		if n := len(entries); n > 0 {
			last := &entries[n-1]
			if last.TileID+last.RunLength == id && string(f.tiles[last.TileID]) == content {
				last.RunLength++
				continue
			}
		}
		rng, ok := stored[content]
		if !ok {
			compressed := compressBytes(t, []byte(content), f.compression)
			rng = Range{Offset: uint64(tileData.Len()), Length: uint64(len(compressed))}
			tileData.Write(compressed)
			stored[content] = rng
		}
		entries = append(entries, EntryV3{TileID: id, Offset: rng.Offset, Length: rng.Length, RunLength: 1})
	}

	root := append([]EntryV3{}, entries...)
	root = append(root, f.leaves...)
	sort.Slice(root, func(i, j int) bool { return root[i].TileID < root[j].TileID })

	rootBytes := serializeEntries(t, root, f.internal)
	var metadataBytes []byte
	if f.metadata != nil {
		metadataBytes = compressBytes(t, f.metadata, f.internal)
	}

	header := HeaderV3{
		SpecVersion:         SpecVersion,
		RootOffset:          HeaderV3LenBytes,
		RootLength:          uint64(len(rootBytes)),
		Clustered:           true,
		InternalCompression: f.internal,
		TileCompression:     f.compression,
		TileType:            f.tileType,
		TileEntriesCount:    uint64(len(entries)),
		TileContentsCount:   uint64(len(stored)),
		AddressedTilesCount: uint64(len(ids)),
		MinPosition:         Position{Lat: -85, Lon: -180},
		MaxPosition:         Position{Lat: 85, Lon: 180},
		CenterPosition:      Position{Lat: 0, Lon: 0},
	}
	header.MetadataOffset = header.RootOffset + header.RootLength
	header.MetadataLength = uint64(len(metadataBytes))
	header.TileDataOffset = header.MetadataOffset + header.MetadataLength
	header.TileDataLength = uint64(tileData.Len())
	if len(ids) > 0 {
		header.MinZoom = IDToZxy(ids[0]).Z
		header.MaxZoom = IDToZxy(ids[len(ids)-1]).Z
		header.CenterZoom = header.MinZoom
	}

	var b bytes.Buffer
	b.Write(serializeHeader(header))
	b.Write(rootBytes)
	b.Write(metadataBytes)
	b.Write(tileData.Bytes())
	return b.Bytes(), header
}

func mustID(t *testing.T, z uint8, x uint32, y uint32) uint64 {
	t.Helper()
	id, err := ZxyToID(z, x, y)
	require.NoError(t, err)
	return id
}
