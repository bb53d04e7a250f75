package pmtiles

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/hilbert"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZxyToID(t *testing.T) {
	cases := []struct {
		tile Zxy
		id   uint64
	}{
		{Zxy{0, 0, 0}, 0},
		{Zxy{1, 0, 0}, 1},
		{Zxy{1, 0, 1}, 2},
		{Zxy{1, 1, 1}, 3},
		{Zxy{1, 1, 0}, 4},
		{Zxy{2, 0, 0}, 5},
		{Zxy{12, 3423, 1763}, 19078479},
		{Zxy{12, 3702, 2509}, 18007234},
	}
	for _, tc := range cases {
		id, err := tc.tile.ID()
		require.NoError(t, err)
		assert.Equal(t, tc.id, id, "tile %s", tc.tile)
		assert.Equal(t, tc.tile, IDToZxy(tc.id))
	}
}

func TestIDToZxy(t *testing.T) {
	assert.Equal(t, Zxy{0, 0, 0}, IDToZxy(0))
	assert.Equal(t, Zxy{1, 0, 0}, IDToZxy(1))
	assert.Equal(t, Zxy{12, 3423, 1763}, IDToZxy(19078479))
}

func TestManyTileIDs(t *testing.T) {
	var z uint8
	var x uint32
	var y uint32
	for z = 0; z < 10; z++ {
		for x = 0; x < (1 << z); x++ {
			for y = 0; y < (1 << z); y++ {
				want := Zxy{z, x, y}
				id, err := want.ID()
				require.NoError(t, err)
				if diff := cmp.Diff(want, IDToZxy(id)); diff != "" {
					t.Fatalf("roundtrip of %s (-want +got):\n%s", want, diff)
				}
			}
		}
	}
}

func TestHilbertIndexMatchesReference(t *testing.T) {
	for z := uint8(1); z <= 8; z++ {
		n := 1 << z
		h, err := hilbert.NewHilbert(n)
		require.NoError(t, err)
		for x := 0; x < n; x++ {
			for y := 0; y < n; y++ {
				want, err := h.MapInverse(x, y)
				require.NoError(t, err)
				id, err := ZxyToID(z, uint32(x), uint32(y))
				require.NoError(t, err)
				require.Equal(t, uint64(want), id-zoomBase[z], "tile %d/%d/%d", z, x, y)
			}
		}
	}
}

func TestExtremes(t *testing.T) {
	for tz := uint8(0); tz <= MaxZoom; tz++ {
		dim := uint32((uint64(1) << tz) - 1)
		for _, tile := range []Zxy{{tz, 0, 0}, {tz, dim, 0}, {tz, 0, dim}, {tz, dim, dim}} {
			id, err := tile.ID()
			if tz == MaxZoom && tile.X == dim && tile.Y == 0 {
				// the last tile on the Hilbert curve of zoom 32 needs a 65th bit
				assert.ErrorIs(t, err, ErrZoomTooHigh)
				continue
			}
			require.NoError(t, err, "tile %s", tile)
			assert.Equal(t, tile, IDToZxy(id))
		}
	}
}

func TestZoomBase(t *testing.T) {
	assert.Equal(t, uint64(0), zoomBase[0])
	assert.Equal(t, uint64(1), zoomBase[1])
	assert.Equal(t, uint64(5), zoomBase[2])
	assert.Equal(t, uint64(6148914691236517205), zoomBase[MaxZoom])
	for z := 1; z <= MaxZoom; z++ {
		assert.Equal(t, uint64(1)<<(2*(z-1)), zoomBase[z]-zoomBase[z-1])
	}
}

func TestZoomTooHigh(t *testing.T) {
	_, err := ZxyToID(33, 0, 0)
	assert.ErrorIs(t, err, ErrZoomTooHigh)

	_, err = ZxyToID(32, math.MaxUint32, 0)
	assert.ErrorIs(t, err, ErrZoomTooHigh)

	id, err := ZxyToID(32, 0, math.MaxUint32)
	require.NoError(t, err)
	assert.Equal(t, uint64(12297829382473034410), id)
}

func TestOutsideGrid(t *testing.T) {
	_, err := ZxyToID(1, 2, 0)
	assert.ErrorIs(t, err, ErrInvalidValue)
	_, err = ZxyToID(0, 0, 1)
	assert.ErrorIs(t, err, ErrInvalidValue)
}

func TestIDToZxyLargeIDs(t *testing.T) {
	// every 64-bit id lies on some zoom level up to 32
	tile := IDToZxy(math.MaxUint64)
	assert.Equal(t, uint8(MaxZoom), tile.Z)

	tile = IDToZxy(zoomBase[MaxZoom])
	assert.Equal(t, Zxy{MaxZoom, 0, 0}, tile)

	tile = IDToZxy(zoomBase[MaxZoom] - 1)
	assert.Equal(t, uint8(MaxZoom-1), tile.Z)
}

func TestParentID(t *testing.T) {
	assert.Equal(t, uint64(0), ParentID(0))
	assert.Equal(t, uint64(0), ParentID(1))
	assert.Equal(t, uint64(0), ParentID(4))

	for z := uint8(1); z < 8; z++ {
		for x := uint32(0); x < (1 << z); x++ {
			for y := uint32(0); y < (1 << z); y++ {
				id := mustID(t, z, x, y)
				parent := mustID(t, z-1, x/2, y/2)
				require.Equal(t, parent, ParentID(id), "tile %d/%d/%d", z, x, y)
			}
		}
	}
}
