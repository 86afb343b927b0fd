package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(minX, minY, maxX, maxY float64) Geometry {
	g, err := BuildPolygon([][][]float64{{
		{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY},
	}})
	if err != nil {
		panic(err)
	}
	return g
}

func TestBuildPolygonClosesOpenRing(t *testing.T) {
	g, err := BuildPolygon([][][]float64{{
		{0, 0}, {4, 0}, {4, 4}, {0, 4},
	}})
	require.NoError(t, err)
	assert.InDelta(t, 16.0, g.Area(), 1e-9)
	assert.Equal(t, "Polygon", g.Type())
}

func TestBuildPolygonWithHole(t *testing.T) {
	g, err := BuildPolygon([][][]float64{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{4, 4}, {6, 4}, {6, 6}, {4, 6}, {4, 4}},
	})
	require.NoError(t, err)
	assert.InDelta(t, 96.0, g.Area(), 1e-9)
	assert.False(t, g.Covers(5, 5))
	assert.True(t, g.Covers(1, 1))
}

func TestBuildPolygonRejectsShortRing(t *testing.T) {
	_, err := BuildPolygon([][][]float64{{{0, 0}, {1, 1}}})
	assert.Error(t, err)
}

func TestIntersectionOverlap(t *testing.T) {
	a := square(0, 0, 4, 4)
	b := square(2, 2, 6, 6)
	got, err := a.Intersection(b)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.Area(), 1e-9)
	assert.Equal(t, "Polygon", got.Type())
}

func TestIntersectionDisjointIsEmptyNotError(t *testing.T) {
	a := square(0, 0, 1, 1)
	b := square(5, 5, 6, 6)
	got, err := a.Intersection(b)
	require.NoError(t, err)
	assert.Zero(t, got.Area())
	assert.True(t, got.IsEmpty())
}

func TestIntersectionTouchingEdgeHasZeroArea(t *testing.T) {
	a := square(0, 0, 2, 2)
	b := square(2, 0, 4, 2)
	got, err := a.Intersection(b)
	require.NoError(t, err)
	// shared edge is a line, which counts as no remaining area
	assert.Zero(t, got.Area())
}

func TestDifference(t *testing.T) {
	a := square(0, 0, 4, 4)
	b := square(0, 0, 4, 2)
	got, err := a.Difference(b)
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got.Area(), 1e-9)
}

func TestCoversBoundaryTolerance(t *testing.T) {
	g := square(0, 0, 1, 1)
	assert.True(t, g.Covers(0.5, 0.5))
	assert.True(t, g.Covers(1, 0.5))
	// just outside, but within tolerance
	assert.True(t, g.Covers(1.0005, 0.5))
	assert.False(t, g.Covers(1.01, 0.5))
}

func TestDistanceToPointEmptyGeometry(t *testing.T) {
	var g Geometry
	assert.True(t, g.IsEmpty())
	assert.False(t, g.Covers(0, 0))
}

func TestCentroid(t *testing.T) {
	g := square(0, 0, 4, 2)
	lng, lat, ok := g.Centroid()
	require.True(t, ok)
	assert.InDelta(t, 2.0, lng, 1e-9)
	assert.InDelta(t, 1.0, lat, 1e-9)

	_, _, ok = Empty().Centroid()
	assert.False(t, ok)
}

func TestFromGeoJSONPolygon(t *testing.T) {
	raw := json.RawMessage(`{"type":"Polygon","coordinates":[[[0,0],[3,0],[3,3],[0,3],[0,0]]]}`)
	g, err := FromGeoJSON(raw)
	require.NoError(t, err)
	assert.InDelta(t, 9.0, g.Area(), 1e-9)

	out, err := g.GeoJSON()
	require.NoError(t, err)
	var obj struct {
		Type string `json:"type"`
	}
	require.NoError(t, json.Unmarshal(out, &obj))
	assert.Equal(t, "Polygon", obj.Type)
}

func TestFromGeoJSONMultiPolygonWithHole(t *testing.T) {
	raw := json.RawMessage(`{"type":"MultiPolygon","coordinates":[
		[[[0,0],[10,0],[10,10],[0,10],[0,0]],[[4,4],[6,4],[6,6],[4,6],[4,4]]],
		[[[20,20],[22,20],[22,22],[20,22],[20,20]]]
	]}`)
	g, err := FromGeoJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, "MultiPolygon", g.Type())
	assert.InDelta(t, 100.0, g.Area(), 1e-9)
}

func TestFromGeoJSONGarbage(t *testing.T) {
	_, err := FromGeoJSON(json.RawMessage(`{"type":"Nope"}`))
	assert.Error(t, err)
}
