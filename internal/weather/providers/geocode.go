package providers

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/kelvins/geocoder"

	"github.com/i474232898/weather-ingest/internal/weather"
)

// ErrGeocoderDisabled is returned when no API key is configured.
var ErrGeocoderDisabled = errors.New("geocoding requires GEOCODER_API_KEY")

// geocoder.ApiKey is package-global; lookups are serialised.
var geocodeMu sync.Mutex

// Geocoder resolves a city and country to coordinates using the Google
// Geocoding API.
type Geocoder struct {
	apiKey string
	lookup func(geocoder.Address) (geocoder.Location, error)
}

// NewGeocoder creates a Geocoder. An empty key disables it.
func NewGeocoder(apiKey string) *Geocoder {
	return NewGeocoderWithLookup(apiKey, geocoder.Geocoding)
}

// NewGeocoderWithLookup creates a Geocoder that resolves addresses through
// lookup instead of the Google API.
func NewGeocoderWithLookup(apiKey string, lookup func(geocoder.Address) (geocoder.Location, error)) *Geocoder {
	return &Geocoder{apiKey: apiKey, lookup: lookup}
}

// Enabled reports whether an API key is configured.
func (g *Geocoder) Enabled() bool {
	return g != nil && g.apiKey != ""
}

// Resolve returns the coordinates of city, country.
func (g *Geocoder) Resolve(city, country string) (weather.Location, error) {
	if !g.Enabled() {
		return weather.Location{}, ErrGeocoderDisabled
	}
	city = strings.TrimSpace(city)
	if city == "" {
		return weather.Location{}, &weather.ValidationError{Field: "city", Reason: "is required"}
	}

	geocodeMu.Lock()
	geocoder.ApiKey = g.apiKey
	loc, err := g.lookup(geocoder.Address{City: city, Country: strings.TrimSpace(country)})
	geocodeMu.Unlock()
	if err != nil {
		return weather.Location{}, fmt.Errorf("geocode %s,%s: %w", city, country, err)
	}

	return weather.Location{Latitude: loc.Latitude, Longitude: loc.Longitude}, nil
}
