package geo

import (
	"fmt"
	"math"
	"testing"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_PointCount(t *testing.T) {
	for _, n := range []int{1, 2, 3, 4, 5, 9} {
		t.Run(fmt.Sprintf("size_%d", n), func(t *testing.T) {
			points := Generate(40.7128, -74.0060, 5, n)
			assert.Len(t, points, n*n)
			for i, p := range points {
				assert.Equal(t, i, p.Index)
			}
		})
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := Generate(51.5074, -0.1278, 3.5, 4)
	b := Generate(51.5074, -0.1278, 3.5, 4)
	assert.Equal(t, a, b)
}

func TestGenerate_DiagonalBound(t *testing.T) {
	const (
		centerLat = 48.8566
		centerLng = 2.3522
		radiusKm  = 5.0
	)
	center := orb.Point{centerLng, centerLat}

	for _, n := range []int{1, 2, 3, 5, 7} {
		points := Generate(centerLat, centerLng, radiusKm, n)
		require.Len(t, points, n*n)

		var maxKm float64
		for _, p := range points {
			d := orbgeo.Distance(center, orb.Point{p.Lng, p.Lat}) / 1000
			if d > maxKm {
				maxKm = d
			}
		}
		// Extreme points sit ~radiusKm out on each axis, so the corner is
		// bounded by the diagonal. Small slack for rounding to 6 decimals.
		assert.LessOrEqual(t, maxKm, radiusKm*math.Sqrt2*1.01,
			"grid size %d corner exceeds diagonal bound", n)
	}
}

func TestGenerate_SinglePointIsCenter(t *testing.T) {
	points := Generate(35.6762, 139.6503, 2, 1)
	require.Len(t, points, 1)
	assert.InDelta(t, 35.6762, points[0].Lat, 1e-6)
	assert.InDelta(t, 139.6503, points[0].Lng, 1e-6)
}

func TestGenerate_SymmetricAroundCenter(t *testing.T) {
	points := Generate(10, 20, 4, 3)
	require.Len(t, points, 9)
	// Row-major: middle point of a 3x3 grid is the center itself.
	assert.InDelta(t, 10.0, points[4].Lat, 1e-6)
	assert.InDelta(t, 20.0, points[4].Lng, 1e-6)
	// Rows share a latitude, columns share a longitude.
	assert.Equal(t, points[0].Lat, points[1].Lat)
	assert.Equal(t, points[0].Lng, points[3].Lng)
}

func TestGenerate_InvalidInput(t *testing.T) {
	assert.Nil(t, Generate(10, 20, 5, 0))
	assert.Nil(t, Generate(10, 20, -1, 3))
}

func TestGenerateBoundingBox(t *testing.T) {
	bound := orb.Bound{Min: orb.Point{-0.2, 51.4}, Max: orb.Point{0.1, 51.6}}
	points := GenerateBoundingBox(bound, 2)
	require.NotEmpty(t, points)

	for i, p := range points {
		assert.Equal(t, i, p.Index)
		assert.GreaterOrEqual(t, p.Lat, 51.4-1e-6)
		assert.LessOrEqual(t, p.Lat, 51.6+1e-6)
		assert.GreaterOrEqual(t, p.Lng, -0.2-1e-6)
		assert.LessOrEqual(t, p.Lng, 0.1+1e-6)
	}

	assert.Nil(t, GenerateBoundingBox(bound, 0))
}

func TestEstimateAPICalls(t *testing.T) {
	est := EstimateAPICalls(5, 3)
	assert.Equal(t, 9, est.GridPoints)
	assert.Equal(t, 9, est.EstimatedCalls)
	assert.InDelta(t, 0.0018, est.EstimatedCost, 1e-12)

	est = EstimateAPICalls(10, 5)
	assert.Equal(t, 25, est.EstimatedCalls)
	assert.InDelta(t, 0.005, est.EstimatedCost, 1e-12)
}
