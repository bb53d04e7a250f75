package pmtiles

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// BboxRegion parses "min_lon,min_lat,max_lon,max_lat" into a single rectangle.
func BboxRegion(bbox string) (orb.MultiPolygon, error) {
	parts := strings.Split(bbox, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("%w: bbox %q needs 4 comma-separated numbers", ErrInvalidValue, bbox)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: bbox %q: %v", ErrInvalidValue, bbox, err)
		}
		v[i] = f
	}
	minLon, minLat, maxLon, maxLat := v[0], v[1], v[2], v[3]
	if minLon >= maxLon || minLat >= maxLat {
		return nil, fmt.Errorf("%w: bbox %q has no area", ErrInvalidValue, bbox)
	}
	return orb.MultiPolygon{{{
		{minLon, maxLat},
		{maxLon, maxLat},
		{maxLon, minLat},
		{minLon, minLat},
		{minLon, maxLat},
	}}}, nil
}

func polygons(g orb.Geometry) []orb.Polygon {
	switch v := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{v}
	case orb.MultiPolygon:
		return v
	}
	return nil
}

// UnmarshalRegion reads the polygons of a GeoJSON FeatureCollection, Feature
// or bare geometry. Other geometry types are ignored.
func UnmarshalRegion(data []byte) (orb.MultiPolygon, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		var result orb.MultiPolygon
		for _, f := range fc.Features {
			result = append(result, polygons(f.Geometry)...)
		}
		if len(result) > 0 {
			return result, nil
		}
	}

	if f, err := geojson.UnmarshalFeature(data); err == nil {
		if p := polygons(f.Geometry); len(p) > 0 {
			return p, nil
		}
	}

	g, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("%w: region is not GeoJSON: %v", ErrInvalidValue, err)
	}
	if p := polygons(g.Geometry()); len(p) > 0 {
		return p, nil
	}
	return nil, fmt.Errorf("%w: region has no polygon geometry", ErrInvalidValue)
}
