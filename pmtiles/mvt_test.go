package pmtiles

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/mvt"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// vectorTile encodes a tile with a "water" layer of two polygons' centers and
// a "roads" layer with one line, all inside tile.
func vectorTile(t *testing.T, tile Zxy) []byte {
	t.Helper()
	b := tile.Bound()
	c := b.Center()
	dx := (b.Max.Lon() - b.Min.Lon()) / 4
	dy := (b.Max.Lat() - b.Min.Lat()) / 4

	water := geojson.NewFeatureCollection()
	lake := geojson.NewFeature(orb.Point{c.Lon() - dx, c.Lat()})
	lake.Properties["kind"] = "lake"
	sea := geojson.NewFeature(orb.Point{c.Lon() + dx, c.Lat()})
	sea.Properties["kind"] = "sea"
	water.Append(lake).Append(sea)

	roads := geojson.NewFeatureCollection()
	road := geojson.NewFeature(orb.LineString{{c.Lon() - dx, c.Lat() - dy}, {c.Lon() + dx, c.Lat() + dy}})
	road.Properties["name"] = "main street"
	road.Properties["lanes"] = 2.0
	roads.Append(road)

	layers := mvt.NewLayers(map[string]*geojson.FeatureCollection{"water": water, "roads": roads})
	layers.ProjectToTile(tile.Tile())
	data, err := mvt.Marshal(layers)
	require.NoError(t, err)
	return data
}

func TestDecodeVectorTile(t *testing.T) {
	tile := Zxy{12, 3702, 2509}
	layers, err := DecodeVectorTile(vectorTile(t, tile), tile)
	require.NoError(t, err)

	assert.Equal(t, []string{"roads", "water"}, LayerNames(layers))

	bound := tile.Bound().Pad(1e-6)
	for _, l := range layers {
		for _, f := range l.Features {
			assert.True(t, bound.Contains(f.Geometry.Bound().Center()), "feature of %s outside tile", l.Name)
		}
		if l.Name == "water" {
			assert.Len(t, l.Features, 2)
		}
	}
}

func TestDecodeVectorTileErrors(t *testing.T) {
	_, err := DecodeVectorTile([]byte{0x1a, 0x05, 0x01}, Zxy{1, 0, 0})
	assert.Error(t, err)

	_, err = DecodeVectorTile(nil, Zxy{MaxZoom, 0, 0})
	assert.ErrorIs(t, err, ErrZoomTooHigh)
}
