package pmtiles

import (
	"fmt"
	"math/bits"
)

// MaxZoom is the deepest zoom level addressable by a 64-bit tile id.
const MaxZoom = 32

// Zxy is a tile-grid coordinate.
type Zxy struct {
	Z uint8
	X uint32
	Y uint32
}

func (t Zxy) String() string {
	return fmt.Sprintf("%d/%d/%d", t.Z, t.X, t.Y)
}

// zoomBase[z] is the id of the first tile on zoom z: the number of tiles on
// all shallower zooms.
var zoomBase = func() [MaxZoom + 1]uint64 {
	var base [MaxZoom + 1]uint64
	for z := 1; z <= MaxZoom; z++ {
		base[z] = base[z-1] + 1<<(2*(z-1))
	}
	return base
}()

func rotate(n uint64, x *uint64, y *uint64, rx uint64, ry uint64) {
	if ry == 0 {
		if rx == 1 {
			*x = n - 1 - *x
			*y = n - 1 - *y
		}
		*x, *y = *y, *x
	}
}

func tOnLevel(z uint8, pos uint64) Zxy {
	var n uint64 = 1 << z
	var tx, ty uint64
	t := pos
	for s := uint64(1); s < n; s *= 2 {
		rx := 1 & (t / 2)
		ry := 1 & (t ^ rx)
		rotate(s, &tx, &ty, rx, ry)
		tx += s * rx
		ty += s * ry
		t /= 4
	}
	return Zxy{Z: z, X: uint32(tx), Y: uint32(ty)}
}

// ZxyToID converts (Z,X,Y) tile coordinates to a Hilbert TileID.
func ZxyToID(z uint8, x uint32, y uint32) (uint64, error) {
	if z > MaxZoom {
		return 0, fmt.Errorf("%w: zoom %d", ErrZoomTooHigh, z)
	}
	var n uint64 = 1 << z
	if uint64(x) >= n || uint64(y) >= n {
		return 0, fmt.Errorf("%w: tile %d/%d/%d outside of the grid", ErrInvalidValue, z, x, y)
	}
	var d uint64
	tx := uint64(x)
	ty := uint64(y)
	for s := n / 2; s > 0; s /= 2 {
		var rx, ry uint64
		if tx&s > 0 {
			rx = 1
		}
		if ty&s > 0 {
			ry = 1
		}
		d += s * s * ((3 * rx) ^ ry)
		rotate(s, &tx, &ty, rx, ry)
	}
	id, carry := bits.Add64(zoomBase[z], d, 0)
	if carry != 0 {
		return 0, fmt.Errorf("%w: tile %d/%d/%d", ErrZoomTooHigh, z, x, y)
	}
	return id, nil
}

// ID returns the Hilbert TileID of the coordinate.
func (t Zxy) ID() (uint64, error) {
	return ZxyToID(t.Z, t.X, t.Y)
}

// idZoom returns the zoom level holding id. The ids of zoom 32 run to the end
// of the 64-bit range, so every id has a zoom.
func idZoom(id uint64) uint8 {
	for z := uint8(1); z <= MaxZoom; z++ {
		if id < zoomBase[z] {
			return z - 1
		}
	}
	return MaxZoom
}

// IDToZxy converts a Hilbert TileID to (Z,X,Y) tile coordinates.
func IDToZxy(i uint64) Zxy {
	z := idZoom(i)
	return tOnLevel(z, i-zoomBase[z])
}

// ParentID finds the parent Hilbert TileID without converting to (Z,X,Y).
// The single zoom 0 tile is its own parent.
func ParentID(i uint64) uint64 {
	z := idZoom(i)
	if z == 0 {
		return 0
	}
	return zoomBase[z-1] + (i-zoomBase[z])/4
}
