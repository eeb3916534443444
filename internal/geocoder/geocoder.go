// Package geocoder implements the geocoder capability (spec §4.1/§6.5):
// resolve a free-text location query to coordinates plus a precision tag.
// Grounded on the original's app/services/geocoding.py (get_gmaps_client,
// build_geocoding_query's Rio de Janeiro/RJ/Brasil default-locality
// fallback) and wired to googlemaps/google-maps-services-go, the one
// geocoding SDK present anywhere in the retrieval pack.
package geocoder

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/arquivodaviolencia/incident-pipeline/internal/models"
)

// Result is the capability contract's return shape (spec §4.1).
type Result struct {
	Lat        float64
	Lng        float64
	Precision  models.GeoPrecision
	Source     string // "google_maps"
	Confidence float64
	PlaceID    string
	FormattedAddress string
}

// Geocoder is the capability interface so internal/dedup can be tested
// against a fake.
type Geocoder interface {
	Geocode(ctx context.Context, query string) (*Result, error)
}

// Client wraps the Google Maps Geocoding API.
type Client struct {
	maps *maps.Client
}

func New(apiKey string) (*Client, error) {
	c, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("geocoder: client init: %w", err)
	}
	return &Client{maps: c}, nil
}

// geocodeLocationTypeToPrecision maps the Google Maps API's location_type
// enum to this system's GeoPrecision tags. Any value outside this switch
// falls through to models.NormalizeGeoPrecision's GeoApproximate default.
func geocodeLocationTypeToPrecision(locationType string) models.GeoPrecision {
	switch locationType {
	case "ROOFTOP":
		return models.GeoExact
	case "RANGE_INTERPOLATED", "GEOMETRIC_CENTER":
		return models.GeoApproximate
	case "APPROXIMATE":
		return models.GeoApproximate
	default:
		return models.NormalizeGeoPrecision(locationType)
	}
}

// Geocode issues one Geocoding API request for query and maps the first
// result. Returns (nil, nil) on zero results -- not finding a location is
// not itself an error (spec §4.1).
func (c *Client) Geocode(ctx context.Context, query string) (*Result, error) {
	resp, err := c.maps.Geocode(ctx, &maps.GeocodingRequest{
		Address: query,
		Region:  "br",
	})
	if err != nil {
		return nil, fmt.Errorf("geocoder: request: %w", err)
	}
	if len(resp) == 0 {
		return nil, nil
	}

	top := resp[0]
	precision := geocodeLocationTypeToPrecision(string(top.Geometry.LocationType))

	confidence := 1.0
	if precision != models.GeoExact {
		confidence = 0.6
	}

	return &Result{
		Lat:              top.Geometry.Location.Lat,
		Lng:              top.Geometry.Location.Lng,
		Precision:        precision,
		Source:           "google_maps",
		Confidence:       confidence,
		PlaceID:          top.PlaceID,
		FormattedAddress: top.FormattedAddress,
	}, nil
}

// BuildQuery composes a geocoding query string from known location
// fragments, falling back to the original's default locality
// (Rio de Janeiro/RJ/Brasil) whenever city, state or country is unknown;
// an empty street or neighborhood is simply left out -- this system
// ingests only Rio de Janeiro violent-death news, so an unresolved city is
// assumed to be within it rather than left unqualified.
func BuildQuery(street, neighborhood, city, state, country string) string {
	parts := make([]string, 0, 5)
	if street != "" {
		parts = append(parts, street)
	}
	if neighborhood != "" {
		parts = append(parts, neighborhood)
	}
	if city == "" {
		city = "Rio de Janeiro"
	}
	parts = append(parts, city)
	if state == "" {
		state = "RJ"
	}
	parts = append(parts, state)
	if country == "" {
		country = "Brasil"
	}
	parts = append(parts, country)

	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
