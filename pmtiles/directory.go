package pmtiles

import (
	"fmt"
	"io"
	"math/bits"
	"sort"
)

// EntryV3 is an entry in a PMTiles spec version 3 directory.
//
// A RunLength above zero covers the tile ids [TileID, TileID+RunLength), all
// sharing the same stored bytes. A RunLength of zero marks a pointer into the
// leaf directory section.
type EntryV3 struct {
	TileID    uint64
	Offset    uint64
	Length    uint64
	RunLength uint64
}

// IsLeaf reports whether the entry points at a leaf directory.
func (e EntryV3) IsLeaf() bool {
	return e.RunLength == 0
}

// Range is an absolute byte range of the archive.
type Range struct {
	Offset uint64
	Length uint64
}

// Directory is a list of entries in strictly ascending TileID order.
type Directory []EntryV3

// smallest encoding of one entry: a single byte in each of the four columns
const minEntryBytes = 4

// DeserializeEntries decodes an uncompressed directory. The entry count is
// followed by four column passes: id deltas, run lengths, lengths and offsets.
func DeserializeEntries(data []byte) (Directory, error) {
	r := &varintReader{buf: data}

	numEntries, err := r.next()
	if err != nil {
		return nil, fmt.Errorf("reading entry count: %w", err)
	}
	if numEntries > uint64(r.remaining()/minEntryBytes) {
		return nil, fmt.Errorf("directory declares %d entries in %d bytes: %w", numEntries, r.remaining(), io.ErrUnexpectedEOF)
	}

	entries := make(Directory, numEntries)

	lastID := uint64(0)
	for i := range entries {
		delta, err := r.next()
		if err != nil {
			return nil, fmt.Errorf("reading tile id of entry %d: %w", i, err)
		}
		if i > 0 && delta == 0 {
			return nil, fmt.Errorf("%w: entry %d repeats tile id %d", ErrInvalidValue, i, lastID)
		}
		id, carry := bits.Add64(lastID, delta, 0)
		if carry != 0 {
			return nil, fmt.Errorf("%w: tile id of entry %d overflows", ErrInvalidValue, i)
		}
		entries[i].TileID = id
		lastID = id
	}

	for i := range entries {
		if entries[i].RunLength, err = r.next(); err != nil {
			return nil, fmt.Errorf("reading run length %d: %w", i, err)
		}
	}

	for i := range entries {
		if entries[i].Length, err = r.next(); err != nil {
			return nil, fmt.Errorf("reading length %d: %w", i, err)
		}
	}

	for i := range entries {
		tmp, err := r.next()
		if err != nil {
			return nil, fmt.Errorf("reading offset %d: %w", i, err)
		}
		if i > 0 && tmp == 0 {
			entries[i].Offset = entries[i-1].Offset + entries[i-1].Length
		} else if tmp == 0 {
			return nil, fmt.Errorf("%w: first entry has no offset", ErrInvalidValue)
		} else {
			entries[i].Offset = tmp - 1
		}
	}

	return entries, nil
}

// ReadDirectory decompresses a directory region and decodes it.
func ReadDirectory(compressed []byte, compression Compression, decompressor Decompressor) (Directory, error) {
	data, err := decompressor.Decompress(compressed, compression)
	if err != nil {
		return nil, fmt.Errorf("decompressing directory: %w", err)
	}
	return DeserializeEntries(data)
}

// FindTile returns the entry whose range [TileID, TileID+RunLength) holds
// tileID. A leaf pointer preceding tileID is returned as well, since the
// tile may live in that leaf.
func FindTile(entries Directory, tileID uint64) (EntryV3, bool) {
	idx := sort.Search(len(entries), func(i int) bool {
		return entries[i].TileID > tileID
	})
	if idx == 0 {
		return EntryV3{}, false
	}

	entry := entries[idx-1]
	if entry.IsLeaf() {
		return entry, true
	}
	if tileID-entry.TileID < entry.RunLength {
		return entry, true
	}
	return EntryV3{}, false
}

// ResolveTile finds tileID in a directory and returns the absolute byte range
// of its data. A miss is reported with ok=false and a nil error.
func ResolveTile(header HeaderV3, entries Directory, tileID uint64) (Range, bool, error) {
	entry, ok := FindTile(entries, tileID)
	if !ok {
		return Range{}, false, nil
	}
	if entry.IsLeaf() {
		return Range{}, false, fmt.Errorf("tile id %d: %w", tileID, ErrLeafDirectoryUnsupported)
	}
	return header.TileRange(entry), true, nil
}
