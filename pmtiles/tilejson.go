package pmtiles

import (
	"encoding/json"
	"fmt"
)

var tileExtensions = map[TileType]string{
	Mvt:  ".mvt",
	Png:  ".png",
	Jpeg: ".jpg",
	Webp: ".webp",
	Avif: ".avif",
}

// tileJSONInfo holds the keys copied from archive metadata untouched.
type tileJSONInfo struct {
	VectorLayers json.RawMessage `json:"vector_layers,omitempty"`
	Attribution  json.RawMessage `json:"attribution,omitempty"`
	Description  json.RawMessage `json:"description,omitempty"`
	Name         json.RawMessage `json:"name,omitempty"`
	Version      json.RawMessage `json:"version,omitempty"`
}

type tileJSON struct {
	TileJSON string        `json:"tilejson"`
	Scheme   string        `json:"scheme"`
	Tiles    []string      `json:"tiles"`
	Bounds   [4]float64    `json:"bounds"`
	Center   []interface{} `json:"center"`
	MinZoom  uint8         `json:"minzoom"`
	MaxZoom  uint8         `json:"maxzoom"`
	tileJSONInfo
}

// CreateTileJSON builds a TileJSON 3.0.0 document from the header and the
// decompressed JSON metadata. tileURL is the prefix for the tiles template.
func CreateTileJSON(header HeaderV3, metadataBytes []byte, tileURL string) ([]byte, error) {
	var doc tileJSON
	if len(metadataBytes) > 0 {
		if err := json.Unmarshal(metadataBytes, &doc.tileJSONInfo); err != nil {
			return nil, fmt.Errorf("parsing metadata: %w", err)
		}
	}

	bounds := header.Bounds()
	center := header.Center()
	doc.TileJSON = "3.0.0"
	doc.Scheme = "xyz"
	doc.Tiles = []string{tileURL + "/{z}/{x}/{y}" + tileExtensions[header.TileType]}
	doc.Bounds = [4]float64{bounds.Min.Lon(), bounds.Min.Lat(), bounds.Max.Lon(), bounds.Max.Lat()}
	doc.Center = []interface{}{center.Lon(), center.Lat(), header.CenterZoom}
	doc.MinZoom = header.MinZoom
	doc.MaxZoom = header.MaxZoom

	return json.MarshalIndent(doc, "", "\t")
}
