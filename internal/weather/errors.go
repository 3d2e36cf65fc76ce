package weather

import (
	"errors"
	"fmt"
)

var (
	// ErrConnectivity is returned when the store cannot be reached at startup.
	ErrConnectivity = errors.New("store unreachable")

	// ErrLoad is returned when a batch could not be written at all.
	ErrLoad = errors.New("load failed")
)

// ValidationError reports bad invocation input. It is raised before any
// network call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// ExtractionKind classifies extraction failures.
type ExtractionKind int

const (
	// BadStatus means the provider answered with a non-2xx status after retries.
	BadStatus ExtractionKind = iota + 1
	// MalformedPayload means a 2xx answer did not have the expected shape.
	MalformedPayload
	// FetchFailed means no response was obtained after retries.
	FetchFailed
)

func (k ExtractionKind) String() string {
	switch k {
	case BadStatus:
		return "bad_status"
	case MalformedPayload:
		return "malformed_payload"
	case FetchFailed:
		return "fetch_failed"
	default:
		return "unknown"
	}
}

// ExtractionError is returned by extractors.
type ExtractionError struct {
	Kind       ExtractionKind
	StatusCode int
	Body       string // truncated, for diagnostics
	Reason     string
	Err        error
}

func (e *ExtractionError) Error() string {
	switch e.Kind {
	case BadStatus:
		return fmt.Sprintf("extract: upstream status %d: %s", e.StatusCode, e.Body)
	case MalformedPayload:
		return fmt.Sprintf("extract: malformed payload: %s", e.Reason)
	default:
		if e.Err != nil {
			return fmt.Sprintf("extract: %s: %v", e.Kind, e.Err)
		}
		return fmt.Sprintf("extract: %s", e.Kind)
	}
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// TransformKind classifies transform failures.
type TransformKind int

const (
	// LengthMismatch means a variable column is not co-indexed with the timestamps.
	LengthMismatch TransformKind = iota + 1
)

func (k TransformKind) String() string {
	if k == LengthMismatch {
		return "length_mismatch"
	}
	return "unknown"
}

// TransformError is returned by Transform. No records are produced with it.
type TransformError struct {
	Kind     TransformKind
	Variable string
	Got      int
	Want     int
}

func (e *TransformError) Error() string {
	return fmt.Sprintf("transform: length mismatch for %q: %d values vs %d timestamps", e.Variable, e.Got, e.Want)
}

// LoadError is a per-record write failure inside an unordered batch.
// It never aborts the batch.
type LoadError struct {
	Index int
	Key   RecordKey
	Err   error
}

func (e LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Key, e.Err)
}

func (e LoadError) Unwrap() error { return e.Err }
