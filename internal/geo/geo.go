package geo

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/peterstace/simplefeatures/geom"
)

// BoundaryTolerance is how close (in coordinate degrees) a point may sit
// to a geometry's edge and still count as covered. Isochrone rings are
// coarse, so exact covers misses points right on a border.
const BoundaryTolerance = 1e-3

// Geometry wraps a simplefeatures geometry so the rest of the codebase
// never imports the geometry library directly.
type Geometry struct {
	g geom.Geometry
}

// Empty returns a geometry with no area.
func Empty() Geometry {
	return Geometry{}
}

// BuildPolygon assembles a polygon from rings of (lng, lat) points. The
// first ring is the exterior, any further rings are holes. Open rings are
// closed automatically.
func BuildPolygon(rings [][][]float64) (Geometry, error) {
	poly, err := buildPolygon(rings)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{g: poly.AsGeometry()}, nil
}

// BuildMultiPolygon assembles a multipolygon; each element follows the
// BuildPolygon ring convention.
func BuildMultiPolygon(polygons [][][][]float64) (Geometry, error) {
	polys := make([]geom.Polygon, 0, len(polygons))
	for i, rings := range polygons {
		poly, err := buildPolygon(rings)
		if err != nil {
			return Geometry{}, fmt.Errorf("polygon %d: %w", i, err)
		}
		polys = append(polys, poly)
	}
	return Geometry{g: geom.NewMultiPolygon(polys).AsGeometry()}, nil
}

func buildPolygon(rings [][][]float64) (geom.Polygon, error) {
	if len(rings) == 0 {
		return geom.Polygon{}, fmt.Errorf("polygon needs at least an exterior ring")
	}
	lss := make([]geom.LineString, 0, len(rings))
	for i, ring := range rings {
		if len(ring) < 3 {
			return geom.Polygon{}, fmt.Errorf("ring %d has %d points, need at least 3", i, len(ring))
		}
		closed := ring
		if first, last := ring[0], ring[len(ring)-1]; first[0] != last[0] || first[1] != last[1] {
			closed = append(append([][]float64{}, ring...), ring[0])
		}
		flat := make([]float64, 0, 2*len(closed))
		for _, pt := range closed {
			if len(pt) < 2 {
				return geom.Polygon{}, fmt.Errorf("ring %d has a malformed coordinate", i)
			}
			flat = append(flat, pt[0], pt[1])
		}
		lss = append(lss, geom.NewLineString(geom.NewSequence(flat, geom.DimXY)))
	}
	return geom.NewPolygon(lss), nil
}

// FromGeoJSON decodes a GeoJSON geometry object. Input comes from the
// isochrone provider, so validation is skipped; degenerate shapes just
// yield zero area downstream.
func FromGeoJSON(raw json.RawMessage) (Geometry, error) {
	g, err := geom.UnmarshalGeoJSON(raw, geom.NoValidate{})
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{g: polygonal(g)}, nil
}

// GeoJSON encodes the geometry back to a GeoJSON geometry object.
func (g Geometry) GeoJSON() (json.RawMessage, error) {
	return json.Marshal(g.g)
}

// Intersection returns the shared area of two geometries. An empty result
// is returned as a zero-area geometry, not an error.
func (g Geometry) Intersection(o Geometry) (Geometry, error) {
	out, err := geom.Intersection(g.g, o.g)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{g: polygonal(out)}, nil
}

// Difference returns the part of g not covered by o.
func (g Geometry) Difference(o Geometry) (Geometry, error) {
	out, err := geom.Difference(g.g, o.g)
	if err != nil {
		return Geometry{}, err
	}
	return Geometry{g: polygonal(out)}, nil
}

// Area in squared coordinate units; 0 for empty or lower-dimensional
// geometries.
func (g Geometry) Area() float64 {
	return g.g.Area()
}

func (g Geometry) IsEmpty() bool {
	return g.g.IsEmpty()
}

// Type reports "Polygon" or "MultiPolygon" for areal geometries.
func (g Geometry) Type() string {
	return g.g.Type().String()
}

// DistanceToPoint returns the planar distance from the geometry to a
// (lng, lat) point, or +Inf when the geometry is empty.
func (g Geometry) DistanceToPoint(lng, lat float64) float64 {
	d, ok := geom.Distance(g.g, pointGeom(lng, lat))
	if !ok {
		return math.Inf(1)
	}
	return d
}

// Covers reports whether the point lies inside the geometry or within
// BoundaryTolerance of its edge.
func (g Geometry) Covers(lng, lat float64) bool {
	covered, err := geom.Covers(g.g, pointGeom(lng, lat))
	if err == nil && covered {
		return true
	}
	return g.DistanceToPoint(lng, lat) < BoundaryTolerance
}

// Centroid returns the centroid as (lng, lat); ok is false for an empty
// geometry.
func (g Geometry) Centroid() (lng, lat float64, ok bool) {
	xy, ok := g.g.Centroid().XY()
	if !ok {
		return 0, 0, false
	}
	return xy.X, xy.Y, true
}

func pointGeom(lng, lat float64) geom.Geometry {
	return geom.NewPoint(geom.Coordinates{XY: geom.XY{X: lng, Y: lat}}).AsGeometry()
}

// polygonal strips non-areal pieces out of a boolean-op result. Touching
// inputs can leave stray points or lines in a collection; callers only
// care about area.
func polygonal(g geom.Geometry) geom.Geometry {
	switch g.Type() {
	case geom.TypePolygon, geom.TypeMultiPolygon:
		return g
	case geom.TypeGeometryCollection:
		gc := g.MustAsGeometryCollection()
		var polys []geom.Polygon
		for i := 0; i < gc.NumGeometries(); i++ {
			sub := polygonal(gc.GeometryN(i))
			switch sub.Type() {
			case geom.TypePolygon:
				polys = append(polys, sub.MustAsPolygon())
			case geom.TypeMultiPolygon:
				mp := sub.MustAsMultiPolygon()
				for j := 0; j < mp.NumPolygons(); j++ {
					polys = append(polys, mp.PolygonN(j))
				}
			}
		}
		if len(polys) == 0 {
			return geom.Geometry{}
		}
		if len(polys) == 1 {
			return polys[0].AsGeometry()
		}
		return geom.NewMultiPolygon(polys).AsGeometry()
	default:
		return geom.Geometry{}
	}
}
