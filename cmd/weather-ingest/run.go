package main

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/i474232898/weather-ingest/internal/weather"
	"github.com/i474232898/weather-ingest/internal/weather/providers"
)

// Default query point: Chennai.
const (
	defaultLat = 13.0827
	defaultLon = 80.2707

	defaultLookbackDays = 7
)

// locationFlags are shared by run and schedule.
type locationFlags struct {
	lat, lon      float64
	city, country string
	hourly        string
}

func (f *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&f.lat, "lat", defaultLat, "latitude of the query point")
	cmd.Flags().Float64Var(&f.lon, "lon", defaultLon, "longitude of the query point")
	cmd.Flags().StringVar(&f.city, "city", "", "resolve the point from a city name (needs GEOCODER_API_KEY)")
	cmd.Flags().StringVar(&f.country, "country", "", "country used with --city")
	cmd.Flags().StringVar(&f.hourly, "hourly", strings.Join(weather.DefaultVariables, ","), "comma-separated hourly variables")
}

// newGeocoder is replaced in tests.
var newGeocoder = providers.NewGeocoder

func (f *locationFlags) hasCity() bool { return strings.TrimSpace(f.city) != "" }

// flagLocation is the point given by --lat/--lon. With --city set it is the
// zero point, replaced once the city resolves.
func (f *locationFlags) flagLocation() weather.Location {
	if f.hasCity() {
		return weather.Location{}
	}
	return weather.Location{Latitude: f.lat, Longitude: f.lon}
}

func (f *locationFlags) location(geo *providers.Geocoder) (weather.Location, error) {
	if !f.hasCity() {
		return f.flagLocation(), nil
	}

	loc, err := geo.Resolve(f.city, f.country)
	if err == nil {
		return loc, nil
	}
	var verr *weather.ValidationError
	switch {
	case errors.As(err, &verr):
		return weather.Location{}, err
	case errors.Is(err, providers.ErrGeocoderDisabled):
		return weather.Location{}, &weather.ValidationError{Field: "city", Reason: err.Error()}
	default:
		return weather.Location{}, &weather.ExtractionError{Kind: weather.FetchFailed, Err: err}
	}
}

type runOptions struct {
	locationFlags
	start, end string
	dryRun     bool
}

// request turns flags into a validated request. Missing dates default to the
// trailing week ending today. The city lookup runs last so invalid input
// never reaches the geocoder.
func (o *runOptions) request(today time.Time, geo *providers.Geocoder) (weather.Request, error) {
	def := weather.TrailingDays(today, defaultLookbackDays)
	start, end := o.start, o.end
	if start == "" {
		start = def.StartDate()
	}
	if end == "" {
		end = def.EndDate()
	}
	rng, err := weather.ParseDateRange(start, end)
	if err != nil {
		return weather.Request{}, err
	}

	req := weather.Request{
		Location:  o.flagLocation(),
		Range:     rng,
		Variables: weather.ParseVariableSet(o.hourly),
	}
	if err := req.Validate(); err != nil {
		return weather.Request{}, err
	}
	if !o.hasCity() {
		return req, nil
	}

	if req.Location, err = o.location(geo); err != nil {
		return weather.Request{}, err
	}
	if err := req.Validate(); err != nil {
		return weather.Request{}, err
	}
	return req, nil
}

// runOutput is printed on stdout when a run finishes.
type runOutput struct {
	Status     string `json:"status"`
	Processed  int    `json:"processed"`
	Upserted   int    `json:"upserted"`
	Modified   int    `json:"modified"`
	Matched    int    `json:"matched"`
	Failed     int    `json:"failed"`
	Collection string `json:"collection"`
	RunID      string `json:"run_id"`
	DryRun     bool   `json:"dry_run,omitempty"`
}

func newRunOutput(s weather.Summary) runOutput {
	return runOutput{
		Status:     s.Status(),
		Processed:  s.Processed,
		Upserted:   s.Upserted,
		Modified:   s.Modified,
		Matched:    s.Matched,
		Failed:     s.Failed,
		Collection: s.Collection,
		RunID:      s.RunID,
		DryRun:     s.DryRun,
	}
}

func newRunCmd() *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one extract, transform and load",
		Example: `  weather-ingest run --lat 13.0827 --lon 80.2707 --start 2024-01-01 --end 2024-01-07
  weather-ingest run --city Chennai --country IN --hourly temperature_2m --dry-run`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}

			req, err := opts.request(time.Now().UTC(), newGeocoder(cfg.Geocoder.APIKey))
			if err != nil {
				return err
			}

			d, err := connect(cmd.Context(), cfg, log, opts.dryRun)
			if err != nil {
				return err
			}
			defer d.close()

			summary, err := d.pipeline.Run(cmd.Context(), req)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			return enc.Encode(newRunOutput(summary))
		},
	}

	opts.register(cmd)
	cmd.Flags().StringVar(&opts.start, "start", "", "first date, YYYY-MM-DD (default: 7 days ago)")
	cmd.Flags().StringVar(&opts.end, "end", "", "last date, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "fetch and transform only; write nothing")
	return cmd
}
