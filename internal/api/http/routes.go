package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/i474232898/weather-ingest/internal/weather"
)

var validate = validator.New()

// Runner executes one pipeline invocation.
type Runner interface {
	Run(ctx context.Context, req weather.Request) (weather.Summary, error)
}

// RunResponse is a Summary with its status and, for failed runs, the error.
type RunResponse struct {
	Status string `json:"status"`
	weather.Summary
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// Tracker remembers the outcome of the most recent run.
type Tracker struct {
	mu     sync.RWMutex
	latest *RunResponse
}

// Record stores the outcome of a run.
func (t *Tracker) Record(s weather.Summary, err error) {
	resp := RunResponse{Status: s.Status(), Summary: s, FinishedAt: time.Now().UTC()}
	if err != nil {
		resp.Status = "failed"
		resp.Error = err.Error()
	}
	t.mu.Lock()
	t.latest = &resp
	t.mu.Unlock()
}

// Latest returns the last recorded run.
func (t *Tracker) Latest() (RunResponse, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return RunResponse{}, false
	}
	return *t.latest, true
}

// NewApp builds the Fiber app with the health endpoint and the run routes.
func NewApp(runner Runner, tracker *Tracker, log *slog.Logger) *fiber.App {
	if log == nil {
		log = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:               "weather-ingest",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          2 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	app.Use(recover.New())
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		log.Debug("http request",
			"method", c.Method(),
			"path", c.Path(),
			"status", c.Response().StatusCode(),
			"duration", time.Since(start).String(),
		)
		return err
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-ingest",
		})
	})

	RegisterRoutes(app, runner, tracker)
	return app
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, runner Runner, tracker *Tracker) {
	v1 := app.Group("/api/v1")

	v1.Get("/runs/latest", func(c *fiber.Ctx) error {
		latest, ok := tracker.Latest()
		if !ok {
			return fiber.NewError(fiber.StatusNotFound, "no run has completed yet")
		}
		return c.JSON(latest)
	})

	v1.Post("/runs", func(c *fiber.Ctx) error {
		var body runRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
		}
		if err := validate.Struct(body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		req, err := body.toRequest()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		summary, err := runner.Run(c.UserContext(), req)
		tracker.Record(summary, err)
		if err != nil {
			return fiber.NewError(statusFor(err), err.Error())
		}
		return c.JSON(RunResponse{Status: summary.Status(), Summary: summary, FinishedAt: time.Now().UTC()})
	})
}

// runRequest is the body of POST /api/v1/runs.
type runRequest struct {
	Lat    *float64 `json:"lat" validate:"required,gte=-90,lte=90"`
	Lon    *float64 `json:"lon" validate:"required,gte=-180,lte=180"`
	Start  string   `json:"start" validate:"required,datetime=2006-01-02"`
	End    string   `json:"end" validate:"required,datetime=2006-01-02"`
	Hourly string   `json:"hourly"`
}

func (r runRequest) toRequest() (weather.Request, error) {
	rng, err := weather.ParseDateRange(r.Start, r.End)
	if err != nil {
		return weather.Request{}, err
	}
	vars := weather.NewVariableSet(weather.DefaultVariables...)
	if strings.TrimSpace(r.Hourly) != "" {
		vars = weather.ParseVariableSet(r.Hourly)
	}
	return weather.Request{
		Location:  weather.Location{Latitude: *r.Lat, Longitude: *r.Lon},
		Range:     rng,
		Variables: vars,
	}, nil
}

func statusFor(err error) int {
	var (
		verr *weather.ValidationError
		xerr *weather.ExtractionError
		terr *weather.TransformError
	)
	switch {
	case errors.As(err, &verr):
		return fiber.StatusBadRequest
	case errors.As(err, &xerr):
		return fiber.StatusBadGateway
	case errors.As(err, &terr):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}
