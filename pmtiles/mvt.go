package pmtiles

import (
	"fmt"
	"sort"

	"github.com/paulmach/orb/encoding/mvt"
)

// DecodeVectorTile unmarshals an uncompressed Mapbox Vector Tile and projects
// its features from tile space into WGS84 using the tile's position.
func DecodeVectorTile(data []byte, tile Zxy) (mvt.Layers, error) {
	if tile.Z >= MaxZoom {
		return nil, fmt.Errorf("%w: cannot project tile %s", ErrZoomTooHigh, tile)
	}
	layers, err := mvt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding vector tile %s: %w", tile, err)
	}
	layers.ProjectToWGS84(tile.Tile())
	return layers, nil
}

// LayerNames returns the sorted names of the layers.
func LayerNames(layers mvt.Layers) []string {
	names := make([]string, 0, len(layers))
	for _, l := range layers {
		names = append(names, l.Name)
	}
	sort.Strings(names)
	return names
}
