package providers

import (
	"errors"
	"testing"

	"github.com/kelvins/geocoder"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/weather-ingest/internal/weather"
)

func TestGeocoderDisabledWithoutKey(t *testing.T) {
	g := NewGeocoder("")
	assert.False(t, g.Enabled())

	_, err := g.Resolve("Chennai", "IN")
	assert.ErrorIs(t, err, ErrGeocoderDisabled)

	var nilGeocoder *Geocoder
	assert.False(t, nilGeocoder.Enabled())
}

func TestGeocoderResolve(t *testing.T) {
	var got geocoder.Address
	g := NewGeocoder("key")
	g.lookup = func(a geocoder.Address) (geocoder.Location, error) {
		got = a
		assert.Equal(t, "key", geocoder.ApiKey)
		return geocoder.Location{Latitude: 13.0827, Longitude: 80.2707}, nil
	}

	loc, err := g.Resolve(" Chennai ", "IN")
	require.NoError(t, err)
	assert.Equal(t, weather.Location{Latitude: 13.0827, Longitude: 80.2707}, loc)
	assert.Equal(t, "Chennai", got.City)
	assert.Equal(t, "IN", got.Country)
}

func TestGeocoderResolveErrors(t *testing.T) {
	g := NewGeocoder("key")
	g.lookup = func(geocoder.Address) (geocoder.Location, error) {
		return geocoder.Location{}, errors.New("ZERO_RESULTS")
	}

	_, err := g.Resolve("Atlantis", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZERO_RESULTS")

	_, err = g.Resolve("  ", "IN")
	var verr *weather.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "city", verr.Field)
}
