package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-ingest/internal/api/http"
	"github.com/i474232898/weather-ingest/internal/scheduler"
	"github.com/i474232898/weather-ingest/internal/weather"
)

type scheduleOptions struct {
	locationFlags
	every  time.Duration
	window time.Duration
	addr   string
}

func newScheduleCmd() *cobra.Command {
	opts := &scheduleOptions{}
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Run the load periodically and serve the status API",
		Long: `schedule runs the load every --every over a window reaching --window back
from now. At most one run is in flight at a time. The HTTP API reports the
latest run and accepts ad hoc runs on POST /api/v1/runs.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("every") {
				opts.every = cfg.Schedule.Interval
			}
			if !cmd.Flags().Changed("window") {
				opts.window = cfg.Schedule.Window
			}
			if opts.addr == "" {
				opts.addr = fmt.Sprintf(":%d", cfg.Server.Port)
			}
			if opts.every < time.Minute {
				return &weather.ValidationError{Field: "every", Reason: "must be at least 1m"}
			}

			vars := weather.ParseVariableSet(opts.hourly)
			check := weather.Request{
				Location:  opts.flagLocation(),
				Range:     weather.TrailingDays(time.Now().UTC(), 0),
				Variables: vars,
			}
			if err := check.Validate(); err != nil {
				return err
			}
			loc, err := opts.location(newGeocoder(cfg.Geocoder.APIKey))
			if err != nil {
				return err
			}
			check.Location = loc
			if err := check.Validate(); err != nil {
				return err
			}

			d, err := connect(cmd.Context(), cfg, log, false)
			if err != nil {
				return err
			}
			defer d.close()

			tracker := &httpapi.Tracker{}
			sched := scheduler.New(scheduler.Config{
				Location:  loc,
				Variables: vars,
				Interval:  opts.every,
				Window:    opts.window,
				Timeout:   opts.every,
			}, d.pipeline, log)
			sched.OnResult(tracker.Record)
			if err := sched.Start(); err != nil {
				return err
			}
			defer sched.Stop()

			app := httpapi.NewApp(d.pipeline, tracker, log)
			errCh := make(chan error, 1)
			go func() {
				log.Info("http server listening", "addr", opts.addr)
				errCh <- app.Listen(opts.addr)
			}()

			select {
			case <-cmd.Context().Done():
				log.Info("shutting down")
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("http server: %w", err)
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("error during shutdown", "error", err)
			}
			return nil
		},
	}

	opts.register(cmd)
	cmd.Flags().DurationVar(&opts.every, "every", time.Hour, "interval between runs (default from SCHEDULE_INTERVAL)")
	cmd.Flags().DurationVar(&opts.window, "window", 48*time.Hour, "how far back each run reaches (default from SCHEDULE_WINDOW)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default :$PORT)")
	return cmd
}
