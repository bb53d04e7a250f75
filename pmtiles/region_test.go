package pmtiles

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBboxRegion(t *testing.T) {
	result, err := BboxRegion("-1.906033,50.680367,1.097501,52.304934")
	require.NoError(t, err)
	assert.Equal(t, -1.906033, result[0][0][0][0])
	assert.Equal(t, 52.304934, result[0][0][0][1])
	assert.Equal(t, 1.097501, result[0][0][2][0])
	assert.Equal(t, 50.680367, result[0][0][2][1])
	assert.Equal(t, result[0][0][0], result[0][0][4])
}

func TestBboxRegionRejects(t *testing.T) {
	for _, bbox := range []string{"", "1,2,3", "a,0,1,1", "1,0,0,1", "0,1,1,1"} {
		_, err := BboxRegion(bbox)
		assert.ErrorIs(t, err, ErrInvalidValue, bbox)
	}
}

func TestRawPolygonRegion(t *testing.T) {
	result, err := UnmarshalRegion([]byte(`{
		"type": "Polygon",
		"coordinates": [[[0, 0],[0,1],[1,1],[0,0]]]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, len(result))
}

func TestRawMultiPolygonRegion(t *testing.T) {
	result, err := UnmarshalRegion([]byte(`{
		"type": "MultiPolygon",
		"coordinates": [[[[0, 0],[0,1],[1,1],[0,0]]]]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, len(result))
}

func TestRawPolygonFeatureRegion(t *testing.T) {
	result, err := UnmarshalRegion([]byte(`{
		"type": "Feature",
		"geometry": {
			"type": "Polygon",
			"coordinates": [[[0, 0],[0,1],[1,1],[0,0]]]
		}
	}`))
	require.NoError(t, err)
	assert.Equal(t, 1, len(result))
}

func TestFeatureCollectionRegion(t *testing.T) {
	result, err := UnmarshalRegion([]byte(`{
		"type": "FeatureCollection",
		"features": [
			{
				"type": "Feature",
				"geometry": {
					"type": "MultiPolygon",
					"coordinates": [[[[0, 0],[0,1],[1,1],[0,0]]]]
				}
			},
			{
				"type": "Feature",
				"geometry": {
					"type": "Point",
					"coordinates": [5, 5]
				}
			},
			{
				"type": "Feature",
				"geometry": {
					"type": "Polygon",
					"coordinates": [[[1, 1],[1,2],[2,2],[1,1]]]
				}
			}
		]
	}`))
	require.NoError(t, err)
	assert.Equal(t, 2, len(result))
}

func TestEmptyFeatureCollectionRegion(t *testing.T) {
	_, err := UnmarshalRegion([]byte(`{
		"type": "FeatureCollection",
		"features": [
		]
	}`))
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestPointRegion(t *testing.T) {
	_, err := UnmarshalRegion([]byte(`{"type": "Point", "coordinates": [0, 0]}`))
	assert.ErrorIs(t, err, ErrInvalidValue)

	_, err = UnmarshalRegion([]byte(`not json`))
	assert.ErrorIs(t, err, ErrInvalidValue)
}
