package main

import (
	"errors"

	"github.com/i474232898/weather-ingest/internal/weather"
)

const (
	exitOK                  = 0
	exitInvalidInput        = 1
	exitConnectivity        = 2
	exitBadStatus           = 3
	exitMalformedPayload    = 4
	exitLengthMismatch      = 5
	exitUpstreamUnreachable = 6
	exitConfig              = 7
	exitLoadFailed          = 8
)

// configError marks failures to read or validate configuration.
type configError struct {
	err error
}

func (e *configError) Error() string { return "configuration: " + e.err.Error() }

func (e *configError) Unwrap() error { return e.err }

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		cerr *configError
		verr *weather.ValidationError
		xerr *weather.ExtractionError
		terr *weather.TransformError
	)
	switch {
	case errors.As(err, &cerr):
		return exitConfig
	case errors.As(err, &verr):
		return exitInvalidInput
	case errors.Is(err, weather.ErrConnectivity):
		return exitConnectivity
	case errors.As(err, &xerr):
		switch xerr.Kind {
		case weather.BadStatus:
			return exitBadStatus
		case weather.MalformedPayload:
			return exitMalformedPayload
		default:
			return exitUpstreamUnreachable
		}
	case errors.As(err, &terr):
		return exitLengthMismatch
	case errors.Is(err, weather.ErrLoad):
		return exitLoadFailed
	default:
		return exitInvalidInput
	}
}
