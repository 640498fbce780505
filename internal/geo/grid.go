package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const earthRadiusKm = 6371.0

// unitPriceUSD is the provider's price per 10k requests.
const unitPriceUSD = 2.0

// SamplePoint is one sampled coordinate used as the center of a provider
// search call. Generated, never persisted.
type SamplePoint struct {
	Lat   float64 `json:"lat"`
	Lng   float64 `json:"lng"`
	Index int     `json:"index"`
}

// Estimate is the projected API usage of a grid search.
type Estimate struct {
	GridPoints     int     `json:"gridPoints"`
	EstimatedCalls int     `json:"estimatedCalls"`
	EstimatedCost  float64 `json:"estimatedCost"`
}

// Generate produces a gridSize x gridSize grid of sample points covering a
// square circumscribing radiusKm around the center, ordered row-major and
// tagged with a linear index. Adjacent points sit 2*radiusKm/(gridSize-1) km
// apart (the full step for a single point), so the extreme points lie about
// radiusKm from center along each axis. Longitude steps are widened by
// 1/cos(lat) to correct for meridian convergence; coordinates are rounded to
// 6 decimal places for reproducibility.
func Generate(centerLat, centerLng, radiusKm float64, gridSize int) []SamplePoint {
	if gridSize < 1 || radiusKm <= 0 {
		return nil
	}

	stepKm := 2 * radiusKm
	if gridSize > 1 {
		stepKm = 2 * radiusKm / float64(gridSize-1)
	}

	latStep := kmToLatDegrees(stepKm)
	lngStep := latStep / math.Cos(centerLat*math.Pi/180)

	points := make([]SamplePoint, 0, gridSize*gridSize)
	half := float64(gridSize-1) / 2
	for i := 0; i < gridSize; i++ {
		for j := 0; j < gridSize; j++ {
			lat := centerLat + (float64(i)-half)*latStep
			lng := centerLng + (float64(j)-half)*lngStep
			points = append(points, SamplePoint{
				Lat:   round6(lat),
				Lng:   round6(lng),
				Index: len(points),
			})
		}
	}

	return points
}

// GenerateBoundingBox covers a rectangle with fixed-step sampling rather than
// a fixed grid count. Not exercised by the primary search flows.
func GenerateBoundingBox(bound orb.Bound, stepKm float64) []SamplePoint {
	if stepKm <= 0 {
		return nil
	}

	south, north := bound.Min.Lat(), bound.Max.Lat()
	west, east := bound.Min.Lon(), bound.Max.Lon()

	latStep := kmToLatDegrees(stepKm)

	var points []SamplePoint
	for lat := south; lat <= north; lat += latStep {
		lngStep := latStep / math.Cos(lat*math.Pi/180)
		for lng := west; lng <= east; lng += lngStep {
			points = append(points, SamplePoint{
				Lat:   round6(lat),
				Lng:   round6(lng),
				Index: len(points),
			})
		}
	}

	return points
}

// EstimateAPICalls projects the call count and spend of an area search before
// it is committed. One call per grid point.
func EstimateAPICalls(radiusKm float64, gridSize int) Estimate {
	totalPoints := gridSize * gridSize
	return Estimate{
		GridPoints:     totalPoints,
		EstimatedCalls: totalPoints,
		EstimatedCost:  float64(totalPoints) / 10000 * unitPriceUSD,
	}
}

func kmToLatDegrees(km float64) float64 {
	return km / earthRadiusKm * 180 / math.Pi
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
