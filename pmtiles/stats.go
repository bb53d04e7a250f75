package pmtiles

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/paulmach/protoscan"
)

// LayerStats summarizes one layer of a vector tile.
type LayerStats struct {
	Name            string
	LayerBytes      int
	Features        int
	AttributeBytes  int
	AttributeValues int
}

// layer name, # features, attr bytes, # attr values
func scanLayer(msg *protoscan.Message) (LayerStats, error) {
	var stats LayerStats
	var m *protoscan.Message
	var err error
	stats.LayerBytes = len(msg.Data)
	for msg.Next() {
		switch msg.FieldNumber() {
		case 1: // name
			stats.Name, err = msg.String()
			if err != nil {
				return stats, err
			}
		case 2: // feature
			stats.Features++
			msg.Skip()
		case 3: // key
			m, err = msg.Message(m)
			if err != nil {
				return stats, err
			}
			stats.AttributeBytes += len(m.Data)
		case 4: // values
			stats.AttributeValues++
			m, err = msg.Message(m)
			if err != nil {
				return stats, err
			}
			stats.AttributeBytes += len(m.Data)
		default:
			msg.Skip()
		}
	}
	return stats, msg.Err()
}

// TileLayerStats scans the layers of an uncompressed vector tile without
// decoding geometry.
func TileLayerStats(data []byte) ([]LayerStats, error) {
	msg := protoscan.New(data)
	var m *protoscan.Message
	var err error

	result := make([]LayerStats, 0)
	for msg.Next() {
		switch msg.FieldNumber() {
		case 3:
			m, err = msg.Message(m)
			if err != nil {
				return nil, err
			}
			stats, err := scanLayer(m)
			if err != nil {
				return nil, fmt.Errorf("layer %d: %w", len(result), err)
			}
			result = append(result, stats)
		default:
			msg.Skip()
		}
	}
	if msg.Err() != nil {
		return nil, msg.Err()
	}
	return result, nil
}

// WriteLayerStats writes one TSV row per layer for every tile content
// addressed by the root directory.
func WriteLayerStats(ctx context.Context, archive *Archive, w io.Writer, progress ProgressWriter) error {
	header := archive.Header()
	if header.TileType != Mvt {
		return fmt.Errorf("stats only works on MVT vector tilesets")
	}

	entries, err := archive.RootDirectory()
	if err != nil {
		return err
	}

	csvWriter := csv.NewWriter(w)
	csvWriter.Comma = '\t'
	if err := csvWriter.Write([]string{"hilbert", "z", "x", "y", "archive_tile_bytes", "layer", "layer_bytes", "layer_features", "attr_bytes", "attr_values"}); err != nil {
		return fmt.Errorf("failed to write header to TSV: %w", err)
	}

	bar := progress.NewCountProgress(int64(len(entries)), "writing stats")
	defer bar.Close()

	seen := make(map[uint64]bool)
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		bar.Add(1)
		if e.IsLeaf() {
			return fmt.Errorf("tile id %d: %w", e.TileID, ErrLeafDirectoryUnsupported)
		}
		if seen[e.Offset] {
			continue
		}
		seen[e.Offset] = true

		rng := header.TileRange(e)
		raw, err := archive.readRange(rng.Offset, rng.Length)
		if err != nil {
			return err
		}
		data, err := archive.decompressor.Decompress(raw, header.TileCompression)
		if err != nil {
			return fmt.Errorf("tile id %d: %w", e.TileID, err)
		}
		layers, err := TileLayerStats(data)
		if err != nil {
			return fmt.Errorf("tile id %d: %w", e.TileID, err)
		}

		t := IDToZxy(e.TileID)
		for _, l := range layers {
			row := []string{
				strconv.FormatUint(e.TileID, 10),
				strconv.FormatUint(uint64(t.Z), 10),
				strconv.FormatUint(uint64(t.X), 10),
				strconv.FormatUint(uint64(t.Y), 10),
				strconv.FormatUint(e.Length, 10),
				l.Name,
				strconv.Itoa(l.LayerBytes),
				strconv.Itoa(l.Features),
				strconv.Itoa(l.AttributeBytes),
				strconv.Itoa(l.AttributeValues),
			}
			if err := csvWriter.Write(row); err != nil {
				return fmt.Errorf("failed to write record to TSV: %w", err)
			}
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}
