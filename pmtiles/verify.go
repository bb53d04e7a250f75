package pmtiles

import (
	"errors"
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/roaring64"
)

// Verify checks the root directory of an archive against its header. Every
// problem found is reported; the result joins them with errors.Join.
func Verify(archive *Archive, progress ProgressWriter) error {
	header := archive.Header()
	entries, err := archive.RootDirectory()
	if err != nil {
		return fmt.Errorf("reading root directory: %w", err)
	}

	var problems []error
	invalid := func(format string, args ...any) {
		problems = append(problems, fmt.Errorf(format, args...))
	}

	bar := progress.NewCountProgress(int64(len(entries)), "verifying entries")
	defer bar.Close()

	var minTileID uint64 = math.MaxUint64
	var maxTileID uint64
	var addressedTiles uint64
	var tileEntries uint64
	var currentOffset uint64
	offsets := roaring64.New()

	for _, e := range entries {
		bar.Add(1)
		if e.IsLeaf() {
			problems = append(problems, fmt.Errorf("entry for tile id %d: %w", e.TileID, ErrLeafDirectoryUnsupported))
			continue
		}
		addressedTiles += e.RunLength
		tileEntries++

		minTileID = min(minTileID, e.TileID)
		maxTileID = max(maxTileID, e.TileID)

		end := e.Offset + e.Length
		if end < e.Offset || end > header.TileDataLength {
			invalid("invalid: entry %d-%d outside of tile data section", e.Offset, e.Length)
		}

		if header.Clustered && !offsets.Contains(e.Offset) {
			if e.Offset != currentOffset {
				invalid("invalid: out-of-order entry for tile id %d in clustered archive", e.TileID)
			}
			currentOffset += e.Length
		}
		offsets.Add(e.Offset)
	}

	if addressedTiles != header.AddressedTilesCount {
		invalid("invalid: header AddressedTilesCount=%d but %d tiles addressed", header.AddressedTilesCount, addressedTiles)
	}
	if tileEntries != header.TileEntriesCount {
		invalid("invalid: header TileEntriesCount=%d but %d tile entries", header.TileEntriesCount, tileEntries)
	}
	if offsets.GetCardinality() != header.TileContentsCount {
		invalid("invalid: header TileContentsCount=%d but %d tile contents", header.TileContentsCount, offsets.GetCardinality())
	}

	if tileEntries > 0 {
		if z := IDToZxy(minTileID).Z; z != header.MinZoom {
			invalid("invalid: header MinZoom=%d does not match min tile z %d", header.MinZoom, z)
		}
		if z := IDToZxy(maxTileID).Z; z != header.MaxZoom {
			invalid("invalid: header MaxZoom=%d does not match max tile z %d", header.MaxZoom, z)
		}
	}

	if header.CenterZoom < header.MinZoom || header.CenterZoom > header.MaxZoom {
		invalid("invalid: header CenterZoom=%d not within MinZoom/MaxZoom", header.CenterZoom)
	}

	return errors.Join(problems...)
}
