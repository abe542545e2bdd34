// README: Reverse geocoding for map-tap destinations via the Google Maps Geocoding API.
package maps

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"
	"googlemaps.github.io/maps"

	"arrivo/internal/types"
)

// ErrGeocodeFailed wraps every failure of the upstream geocoding call.
var ErrGeocodeFailed = errors.New("reverse geocoding failed")

type reverseGeocoder interface {
	ReverseGeocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// Geocoder resolves coordinates to a street address. A nil *Geocoder is
// valid and resolves every point to an empty address.
type Geocoder struct {
	client   reverseGeocoder
	limiter  *rate.Limiter
	language string
}

// NewGeocoder creates a Geocoder with the given API key, allowing at most
// requestsPerSecond upstream calls.
func NewGeocoder(apiKey string, requestsPerSecond float64) (*Geocoder, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return newGeocoder(client, requestsPerSecond), nil
}

func newGeocoder(client reverseGeocoder, requestsPerSecond float64) *Geocoder {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &Geocoder{
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		language: "en",
	}
}

// ReverseGeocode returns the formatted address closest to p. A point with
// no result yields an empty address and no error.
func (g *Geocoder) ReverseGeocode(ctx context.Context, p types.Point) (string, error) {
	if g == nil {
		return "", nil
	}
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}

	results, err := g.client.ReverseGeocode(ctx, &maps.GeocodingRequest{
		LatLng:   &maps.LatLng{Lat: p.Lat, Lng: p.Lng},
		Language: g.language,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
	}
	if len(results) == 0 {
		return "", nil
	}
	return results[0].FormattedAddress, nil
}
