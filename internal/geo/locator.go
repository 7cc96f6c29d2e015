package geo

import apperrors "github.com/avolkov-go/pizzeria-bot/internal/errors"

// Band classifies the delivery distance into a fee/availability tier.
type Band string

const (
	// BandNear is a distance of at most NearRadiusKm: free courier delivery.
	BandNear Band = "near"
	// BandStandard is a distance within (NearRadiusKm, MaxRadiusKm]: paid courier delivery.
	BandStandard Band = "standard"
	// BandTooFar exceeds MaxRadiusKm: pickup only.
	BandTooFar Band = "too_far"
)

// Thresholds holds the band boundaries in kilometers. Boundary values resolve
// to the cheaper band: exactly NearRadiusKm is near, exactly MaxRadiusKm is standard.
type Thresholds struct {
	NearRadiusKm float64
	MaxRadiusKm  float64
}

// DefaultThresholds mirror the chain's delivery policy.
var DefaultThresholds = Thresholds{NearRadiusKm: 5, MaxRadiusKm: 20}

// Classify maps a rounded distance onto a Band.
func (t Thresholds) Classify(distanceKm float64) Band {
	switch {
	case distanceKm > t.MaxRadiusKm:
		return BandTooFar
	case distanceKm > t.NearRadiusKm:
		return BandStandard
	default:
		return BandNear
	}
}

// Place is a candidate fulfillment location.
type Place struct {
	ID      string
	Address string
	Coord   Coordinate
}

// Nearest is the locator result: the chosen place, its rounded distance, and the band.
type Nearest struct {
	Place      Place
	DistanceKm float64
	Band       Band
}

// Locate finds the place closest to the customer and classifies the delivery
// tier. Ties on equal rounded distance keep the first place in input order.
// Pure function; an empty places list fails without partial computation.
func Locate(customer Coordinate, places []Place, thresholds Thresholds) (Nearest, error) {
	if len(places) == 0 {
		return Nearest{}, apperrors.NewNoPizzeriasError()
	}

	best := Nearest{Place: places[0], DistanceKm: DistanceKm(customer, places[0].Coord)}
	for _, place := range places[1:] {
		if d := DistanceKm(customer, place.Coord); d < best.DistanceKm {
			best = Nearest{Place: place, DistanceKm: d}
		}
	}

	best.Band = thresholds.Classify(best.DistanceKm)
	return best, nil
}
