package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strconv"

	"github.com/i474232898/weather-ingest/internal/common"
	"github.com/i474232898/weather-ingest/internal/weather"
)

// DefaultOpenMeteoURL is the forecast endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

const (
	maxBodyBytes    = 32 << 20
	diagnosticBytes = 500
)

// OpenMeteoExtractor implements the weather.Extractor interface for Open-Meteo.
type OpenMeteoExtractor struct {
	name    string
	baseURL string
	client  *Client
}

// NewOpenMeteoExtractor creates an extractor. An empty baseURL selects the
// public forecast endpoint.
func NewOpenMeteoExtractor(client *Client, baseURL string) *OpenMeteoExtractor {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoExtractor{
		name:    "openmeteo",
		baseURL: baseURL,
		client:  client,
	}
}

func (p *OpenMeteoExtractor) Name() string {
	return p.name
}

// Query builds the provider query for a point, date range and variables.
func Query(loc weather.Location, rng weather.DateRange, vars weather.VariableSet) url.Values {
	values := url.Values{}
	values.Set("latitude", strconv.FormatFloat(loc.Latitude, 'f', -1, 64))
	values.Set("longitude", strconv.FormatFloat(loc.Longitude, 'f', -1, 64))
	values.Set("hourly", vars.String())
	values.Set("start_date", rng.StartDate())
	values.Set("end_date", rng.EndDate())
	values.Set("timezone", "auto")
	return values
}

// Extract fetches and validates the hourly payload. Retries happen in the
// client; this layer only classifies the outcome.
func (p *OpenMeteoExtractor) Extract(ctx context.Context, loc weather.Location, rng weather.DateRange, vars weather.VariableSet) (weather.RawPayload, error) {
	resp, err := p.client.Fetch(ctx, p.baseURL, Query(loc, rng, vars))
	if err != nil {
		return weather.RawPayload{}, &weather.ExtractionError{Kind: weather.FetchFailed, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return weather.RawPayload{}, &weather.ExtractionError{
			Kind: weather.FetchFailed,
			Err:  fmt.Errorf("read body: %w", err),
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return weather.RawPayload{}, &weather.ExtractionError{
			Kind:       weather.BadStatus,
			StatusCode: resp.StatusCode,
			Body:       common.Truncate(string(body), diagnosticBytes),
		}
	}

	return DecodePayload(body)
}

// DecodePayload parses an Open-Meteo response into a RawPayload. The hourly
// container and its time column must be present; every other hourly column
// must be an array of numbers or nulls.
func DecodePayload(body []byte) (weather.RawPayload, error) {
	var envelope struct {
		Latitude         float64                    `json:"latitude"`
		Longitude        float64                    `json:"longitude"`
		Timezone         string                     `json:"timezone"`
		UTCOffsetSeconds int                        `json:"utc_offset_seconds"`
		Hourly           map[string]json.RawMessage `json:"hourly"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return weather.RawPayload{}, malformed("response is not a JSON object: %v", err)
	}
	if envelope.Hourly == nil {
		return weather.RawPayload{}, malformed("missing 'hourly'")
	}

	rawTimes, ok := envelope.Hourly["time"]
	if !ok || isNull(rawTimes) {
		return weather.RawPayload{}, malformed("missing 'hourly.time'")
	}
	var times []string
	if err := json.Unmarshal(rawTimes, &times); err != nil {
		return weather.RawPayload{}, malformed("'hourly.time' is not an array of strings")
	}

	series := make(map[string][]*float64, len(envelope.Hourly)-1)
	for name, raw := range envelope.Hourly {
		if name == "time" || isNull(raw) {
			continue
		}
		var values []*float64
		if err := json.Unmarshal(raw, &values); err != nil {
			return weather.RawPayload{}, malformed("'hourly.%s' is not an array of numbers", name)
		}
		series[name] = values
	}

	return weather.RawPayload{
		Times:            times,
		Series:           series,
		Latitude:         envelope.Latitude,
		Longitude:        envelope.Longitude,
		Timezone:         envelope.Timezone,
		UTCOffsetSeconds: envelope.UTCOffsetSeconds,
	}, nil
}

func malformed(format string, args ...any) *weather.ExtractionError {
	return &weather.ExtractionError{
		Kind:   weather.MalformedPayload,
		Reason: fmt.Sprintf(format, args...),
	}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
