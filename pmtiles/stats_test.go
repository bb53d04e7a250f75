package pmtiles

import (
	"bytes"
	"context"
	"encoding/csv"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTileLayerStats(t *testing.T) {
	stats, err := TileLayerStats(vectorTile(t, Zxy{3, 1, 2}))
	require.NoError(t, err)
	require.Len(t, stats, 2)
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })

	assert.Equal(t, "roads", stats[0].Name)
	assert.Equal(t, 1, stats[0].Features)
	assert.Equal(t, 2, stats[0].AttributeValues)

	assert.Equal(t, "water", stats[1].Name)
	assert.Equal(t, 2, stats[1].Features)
	assert.Equal(t, 2, stats[1].AttributeValues)
	assert.Positive(t, stats[1].LayerBytes)
	assert.Positive(t, stats[1].AttributeBytes)
}

func TestTileLayerStatsEmpty(t *testing.T) {
	stats, err := TileLayerStats(nil)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestWriteLayerStats(t *testing.T) {
	f := fixture{
		internal:    Gzip,
		compression: Gzip,
		tileType:    Mvt,
		tiles: map[uint64][]byte{
			mustID(t, 0, 0, 0): vectorTile(t, Zxy{0, 0, 0}),
			mustID(t, 1, 1, 1): vectorTile(t, Zxy{1, 1, 1}),
		},
	}
	data, _ := f.build(t)
	archive, err := NewArchiveFromBytes(data)
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, WriteLayerStats(context.Background(), archive, &out, QuietProgressWriter{}))

	r := csv.NewReader(&out)
	r.Comma = '\t'
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "hilbert", records[0][0])
	assert.Equal(t, "layer", records[0][5])
	assert.Equal(t, []string{"0", "0", "0", "0"}, records[1][:4])
	assert.Equal(t, []string{"3", "1", "1", "1"}, records[3][:4])
}

func TestWriteLayerStatsRequiresMvt(t *testing.T) {
	f := sampleFixture(t)
	f.tileType = Png
	data, _ := f.build(t)
	archive, err := NewArchiveFromBytes(data)
	require.NoError(t, err)

	err = WriteLayerStats(context.Background(), archive, &bytes.Buffer{}, QuietProgressWriter{})
	assert.Error(t, err)
}
