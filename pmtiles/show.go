package pmtiles

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

func tileTypeDescription(t TileType) string {
	switch t {
	case Mvt:
		return "Vector Protobuf (MVT)"
	case Png:
		return "Raster PNG"
	case Jpeg:
		return "Raster Jpeg"
	case Webp:
		return "Raster WebP"
	case Avif:
		return "Raster AVIF"
	default:
		return "Unknown"
	}
}

type showJSON struct {
	SpecVersion         uint8          `json:"spec_version"`
	TotalSize           int64          `json:"total_size"`
	TileType            string         `json:"tile_type"`
	TileCompression     string         `json:"tile_compression"`
	InternalCompression string         `json:"internal_compression"`
	Bounds              [4]float64     `json:"bounds"`
	MinZoom             uint8          `json:"min_zoom"`
	MaxZoom             uint8          `json:"max_zoom"`
	Center              [2]float64     `json:"center"`
	CenterZoom          uint8          `json:"center_zoom"`
	AddressedTilesCount uint64         `json:"addressed_tiles_count"`
	TileEntriesCount    uint64         `json:"tile_entries_count"`
	TileContentsCount   uint64         `json:"tile_contents_count"`
	Clustered           bool           `json:"clustered"`
	Metadata            map[string]any `json:"metadata"`
}

// Show writes a summary of the archive header and its metadata, as text or
// as a JSON object.
func Show(w io.Writer, archive *Archive, asJSON bool) error {
	header := archive.Header()
	metadata, err := archive.Metadata()
	if err != nil {
		return err
	}
	bounds := header.Bounds()
	center := header.Center()

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(showJSON{
			SpecVersion:         header.SpecVersion,
			TotalSize:           archive.Size(),
			TileType:            header.TileType.String(),
			TileCompression:     header.TileCompression.String(),
			InternalCompression: header.InternalCompression.String(),
			Bounds:              [4]float64{bounds.Min.Lon(), bounds.Min.Lat(), bounds.Max.Lon(), bounds.Max.Lat()},
			MinZoom:             header.MinZoom,
			MaxZoom:             header.MaxZoom,
			Center:              [2]float64{center.Lon(), center.Lat()},
			CenterZoom:          header.CenterZoom,
			AddressedTilesCount: header.AddressedTilesCount,
			TileEntriesCount:    header.TileEntriesCount,
			TileContentsCount:   header.TileContentsCount,
			Clustered:           header.Clustered,
			Metadata:            metadata,
		})
	}

	p := func(format string, args ...any) {
		fmt.Fprintf(w, format, args...)
	}
	p("pmtiles spec version: %d\n", header.SpecVersion)
	p("total size: %s\n", humanize.Bytes(uint64(archive.Size())))
	p("tile type: %s\n", tileTypeDescription(header.TileType))
	p("bounds: (long: %f, lat: %f) (long: %f, lat: %f)\n", bounds.Min.Lon(), bounds.Min.Lat(), bounds.Max.Lon(), bounds.Max.Lat())
	p("min zoom: %d\n", header.MinZoom)
	p("max zoom: %d\n", header.MaxZoom)
	p("center: (long: %f, lat: %f)\n", center.Lon(), center.Lat())
	p("center zoom: %d\n", header.CenterZoom)
	p("addressed tiles count: %s\n", humanize.Comma(int64(header.AddressedTilesCount)))
	p("tile entries count: %s\n", humanize.Comma(int64(header.TileEntriesCount)))
	p("tile contents count: %s\n", humanize.Comma(int64(header.TileContentsCount)))
	p("clustered: %t\n", header.Clustered)
	p("internal compression: %s\n", header.InternalCompression)
	p("tile compression: %s\n", header.TileCompression)

	for _, key := range []string{"name", "description", "attribution", "version"} {
		if v, ok := metadata[key]; ok {
			p("%s: %v\n", key, v)
		}
	}
	return nil
}
