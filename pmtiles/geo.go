package pmtiles

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
)

// LatLonToTile returns the web mercator tile containing a position. Points
// outside the grid (longitude 180, latitudes past the mercator limit) are
// clamped onto the nearest edge tile.
func LatLonToTile(lat float64, lon float64, z uint8) (Zxy, error) {
	if z > MaxZoom {
		return Zxy{}, fmt.Errorf("%w: zoom %d", ErrZoomTooHigh, z)
	}
	n := math.Exp2(float64(z))
	latRad := lat * math.Pi / 180
	x := math.Floor((lon + 180) / 360 * n)
	y := math.Floor((1 - math.Asinh(math.Tan(latRad))/math.Pi) / 2 * n)
	return Zxy{Z: z, X: clampToGrid(x, n), Y: clampToGrid(y, n)}, nil
}

func clampToGrid(v float64, n float64) uint32 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v >= n {
		return uint32(n - 1)
	}
	return uint32(v)
}

// TileToLatLon returns the north-west corner of a tile.
func TileToLatLon(x uint32, y uint32, z uint8) Position {
	return gridToLatLon(float64(x), float64(y), z)
}

func gridToLatLon(x float64, y float64, z uint8) Position {
	n := math.Exp2(float64(z))
	lon := x/n*360 - 180
	lat := math.Atan(math.Sinh(math.Pi*(1-2*y/n))) * 180 / math.Pi
	return Position{Lat: lat, Lon: lon}
}

// Bound returns the geographic extent of the tile.
func (t Zxy) Bound() orb.Bound {
	nw := gridToLatLon(float64(t.X), float64(t.Y), t.Z)
	se := gridToLatLon(float64(t.X)+1, float64(t.Y)+1, t.Z)
	return orb.Bound{
		Min: orb.Point{nw.Lon, se.Lat},
		Max: orb.Point{se.Lon, nw.Lat},
	}
}

// Tile converts the coordinate to an orb maptile.
func (t Zxy) Tile() maptile.Tile {
	return maptile.New(t.X, t.Y, maptile.Zoom(t.Z))
}
