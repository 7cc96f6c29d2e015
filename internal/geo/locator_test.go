package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"
)

func TestHaversineKm_ZeroDistance(t *testing.T) {
	p := Coordinate{Lat: 55.75, Lon: 37.61}
	d := HaversineKm(p, p)
	assert.InDelta(t, 0, d, 1e-9)
}

func TestDistanceKm_Rounding(t *testing.T) {
	// Moscow center to Sheremetyevo is roughly 28.5 km; the point is the
	// single-decimal rounding, not the exact geodesic.
	a := Coordinate{Lat: 55.7558, Lon: 37.6173}
	b := Coordinate{Lat: 55.9736, Lon: 37.4125}
	d := DistanceKm(a, b)
	assert.InDelta(t, math.Round(d*10)/10, d, 1e-9)
	assert.Greater(t, d, 20.0)
	assert.Less(t, d, 40.0)
}

func TestThresholds_Classify_Boundaries(t *testing.T) {
	thresholds := DefaultThresholds

	testCases := []struct {
		name       string
		distanceKm float64
		want       Band
	}{
		{name: "well within near", distanceKm: 0.4, want: BandNear},
		{name: "exactly near boundary stays near", distanceKm: 5.0, want: BandNear},
		{name: "just past near boundary", distanceKm: 5.1, want: BandStandard},
		{name: "exactly max boundary stays standard", distanceKm: 20.0, want: BandStandard},
		{name: "past max boundary", distanceKm: 20.1, want: BandTooFar},
		{name: "far away", distanceKm: 120.5, want: BandTooFar},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, thresholds.Classify(tc.distanceKm))
		})
	}
}

func TestLocate_PicksNearest(t *testing.T) {
	customer := Coordinate{Lat: 55.75, Lon: 37.61}
	places := []Place{
		{ID: "far", Address: "ул. Дальняя, 1", Coord: Coordinate{Lat: 55.90, Lon: 37.80}},
		{ID: "close", Address: "ул. Ближняя, 2", Coord: Coordinate{Lat: 55.76, Lon: 37.62}},
	}

	nearest, err := Locate(customer, places, DefaultThresholds)
	require.NoError(t, err)
	assert.Equal(t, "close", nearest.Place.ID)
	assert.Equal(t, BandNear, nearest.Band)
	assert.LessOrEqual(t, nearest.DistanceKm, 5.0)
}

func TestLocate_Deterministic(t *testing.T) {
	customer := Coordinate{Lat: 55.75, Lon: 37.61}
	places := []Place{
		{ID: "a", Coord: Coordinate{Lat: 55.80, Lon: 37.70}},
		{ID: "b", Coord: Coordinate{Lat: 55.70, Lon: 37.50}},
	}

	first, err := Locate(customer, places, DefaultThresholds)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Locate(customer, places, DefaultThresholds)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestLocate_TieBreakKeepsFirst(t *testing.T) {
	customer := Coordinate{Lat: 55.75, Lon: 37.61}
	spot := Coordinate{Lat: 55.78, Lon: 37.65}
	places := []Place{
		{ID: "first", Coord: spot},
		{ID: "second", Coord: spot},
	}

	nearest, err := Locate(customer, places, DefaultThresholds)
	require.NoError(t, err)
	assert.Equal(t, "first", nearest.Place.ID)
}

func TestLocate_EmptyPlaces(t *testing.T) {
	_, err := Locate(Coordinate{Lat: 1, Lon: 1}, nil, DefaultThresholds)
	require.Error(t, err)

	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "E120", appErr.Code)
}
