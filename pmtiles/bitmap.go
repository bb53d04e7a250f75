package pmtiles

import (
	"fmt"
	"math"

	"github.com/RoaringBitmap/roaring/roaring64"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/maptile"
	"github.com/paulmach/orb/maptile/tilecover"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
	"go.uber.org/zap"
)

// maxCoverZoom is the deepest zoom orb's tile grid can address.
const maxCoverZoom = 31

// Coverage compares the tiles touching a region with the tiles an archive addresses.
type Coverage struct {
	Zoom    uint8
	Covered uint64
	Present uint64
}

// Missing is the number of covered tiles the archive does not address.
func (c Coverage) Missing() uint64 {
	return c.Covered - c.Present
}

func levelRange(zoom uint8) (uint64, uint64) {
	return zoomBase[zoom], zoomBase[zoom] + 1<<(2*uint64(zoom))
}

// bitmapMultiPolygon returns the ids of every tile on zoom that touches the
// region. Ring tiles come from tilecover; the runs of the Hilbert curve between
// two ring tiles lie entirely inside or entirely outside, so one center test
// per run fills the interior.
func bitmapMultiPolygon(zoom uint8, region orb.MultiPolygon) (*roaring64.Bitmap, error) {
	boundary := roaring64.New()
	for _, polygon := range region {
		for _, ring := range polygon {
			tiles, err := tilecover.Geometry(orb.LineString(ring), maptile.Zoom(zoom))
			if err != nil {
				return nil, fmt.Errorf("covering region ring: %w", err)
			}
			for tile := range tiles {
				id, err := ZxyToID(zoom, tile.X, tile.Y)
				if err != nil {
					return nil, err
				}
				boundary.Add(id)
			}
		}
	}
	if boundary.IsEmpty() {
		return boundary, nil
	}

	projected := project.MultiPolygon(region.Clone(), project.WGS84.ToMercator)
	result := boundary.Clone()
	fill := func(start uint64, end uint64) {
		if start >= end {
			return
		}
		center := IDToZxy(start).Tile().Center()
		if planar.MultiPolygonContains(projected, project.Point(center, project.WGS84.ToMercator)) {
			result.AddRange(start, end)
		}
	}

	prev, last := levelRange(zoom)
	it := boundary.Iterator()
	for it.HasNext() {
		id := it.Next()
		fill(prev, id)
		prev = id + 1
	}
	fill(prev, last)
	return result, nil
}

// CoverRegion counts the tiles on zoom that touch region and how many of them
// the root directory addresses.
func (a *Archive) CoverRegion(region orb.MultiPolygon, zoom uint8) (Coverage, error) {
	if zoom > maxCoverZoom {
		return Coverage{}, fmt.Errorf("%w: coverage zoom %d deeper than %d", ErrInvalidValue, zoom, maxCoverZoom)
	}
	covered, err := bitmapMultiPolygon(zoom, region)
	if err != nil {
		return Coverage{}, err
	}
	entries, err := a.RootDirectory()
	if err != nil {
		return Coverage{}, fmt.Errorf("reading root directory: %w", err)
	}

	levelStart, levelEnd := levelRange(zoom)
	addressed := roaring64.New()
	for _, e := range entries {
		if e.IsLeaf() {
			return Coverage{}, fmt.Errorf("entry for tile id %d: %w", e.TileID, ErrLeafDirectoryUnsupported)
		}
		end := e.TileID + e.RunLength
		if end < e.TileID {
			end = math.MaxUint64
		}
		start := max(e.TileID, levelStart)
		end = min(end, levelEnd)
		if start < end {
			addressed.AddRange(start, end)
		}
	}

	c := Coverage{
		Zoom:    zoom,
		Covered: covered.GetCardinality(),
		Present: roaring64.And(covered, addressed).GetCardinality(),
	}
	a.logger.Debug("covered region", zap.Uint8("zoom", zoom), zap.Uint64("covered", c.Covered), zap.Uint64("present", c.Present))
	return c, nil
}
