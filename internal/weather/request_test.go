package weather

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest(t *testing.T) Request {
	t.Helper()
	rng, err := ParseDateRange("2025-08-01", "2025-08-07")
	require.NoError(t, err)
	return Request{
		Location:  chennai,
		Range:     rng,
		Variables: NewVariableSet(DefaultVariables...),
	}
}

func TestRequestValidate(t *testing.T) {
	require.NoError(t, validRequest(t).Validate())

	same := validRequest(t)
	same.Range.End = same.Range.Start
	assert.NoError(t, same.Validate(), "a single-day range is valid")
}

func TestRequestValidateFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		field  string
	}{
		{"latitude too high", func(r *Request) { r.Location.Latitude = 90.5 }, "lat"},
		{"latitude too low", func(r *Request) { r.Location.Latitude = -91 }, "lat"},
		{"longitude out of range", func(r *Request) { r.Location.Longitude = 181 }, "lon"},
		{"start after end", func(r *Request) { r.Range.Start, r.Range.End = r.Range.End, r.Range.Start }, "date range"},
		{"missing start", func(r *Request) { r.Range.Start = time.Time{} }, "start"},
		{"no variables", func(r *Request) { r.Variables = VariableSet{} }, "hourly"},
		{"dotted variable", func(r *Request) { r.Variables = NewVariableSet("temperature_2m", "a.b") }, "hourly"},
		{"operator variable", func(r *Request) { r.Variables = NewVariableSet("$where") }, "hourly"},
		{"reserved variable", func(r *Request) { r.Variables = NewVariableSet("ingested_at") }, "hourly"},
		{"time axis variable", func(r *Request) { r.Variables = NewVariableSet("time") }, "hourly"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest(t)
			tt.mutate(&req)

			err := req.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestValidateAcceptsOpenMeteoVariableNames(t *testing.T) {
	req := validRequest(t)
	req.Variables = NewVariableSet("temperature_2m", "wind_speed_10m", "soil_moisture_0_to_1cm")

	require.NoError(t, req.Validate())
}

func TestInvalidVariableNameMessage(t *testing.T) {
	req := validRequest(t)
	req.Variables = NewVariableSet("a.b")

	assert.Contains(t, req.Validate().Error(), `invalid variable name "a.b"`)
}

func TestStartAfterEndMessage(t *testing.T) {
	req := validRequest(t)
	req.Range.Start, req.Range.End = req.Range.End, req.Range.Start

	assert.Contains(t, req.Validate().Error(), "start date cannot be after end date")
}

func TestParseDateRange(t *testing.T) {
	rng, err := ParseDateRange("2025-08-01", "2025-08-03")
	require.NoError(t, err)
	assert.Equal(t, "2025-08-01", rng.StartDate())
	assert.Equal(t, "2025-08-03", rng.EndDate())

	_, err = ParseDateRange("2025/08/01", "2025-08-03")
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "start", verr.Field)

	_, err = ParseDateRange("2025-08-01", "tomorrow")
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "end", verr.Field)
}

func TestTrailingDays(t *testing.T) {
	rng := TrailingDays(time.Date(2025, 8, 8, 17, 45, 0, 0, time.UTC), 7)
	assert.Equal(t, "2025-08-01", rng.StartDate())
	assert.Equal(t, "2025-08-08", rng.EndDate())
}
