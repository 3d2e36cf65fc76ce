package weather

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = newValidator()

// Variable names become document field names in the store.
var variableName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

// reservedNames collide with the record's own fields or the payload's time axis.
var reservedNames = map[string]bool{
	"_id": true, "source": true, "lat": true, "lon": true, "timestamp": true,
	"ingested_at": true, "ingestion_run_id": true, "time": true,
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Request is the input of one pipeline invocation.
type Request struct {
	Location  Location    `json:"location"`
	Range     DateRange   `json:"range"`
	Variables VariableSet `json:"variables"`
}

// Validate checks coordinates, date ordering and the variable list.
func (r Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return describe(verrs[0])
		}
		return &ValidationError{Field: "request", Reason: err.Error()}
	}
	if r.Variables.Len() == 0 {
		return &ValidationError{Field: "hourly", Reason: "at least one variable is required"}
	}
	for _, n := range r.Variables.Names() {
		if !variableName.MatchString(n) || reservedNames[n] {
			return &ValidationError{Field: "hourly", Reason: fmt.Sprintf("invalid variable name %q", n)}
		}
	}
	return nil
}

func describe(fe validator.FieldError) *ValidationError {
	switch fe.Tag() {
	case "gtefield":
		return &ValidationError{Field: "date range", Reason: "start date cannot be after end date"}
	case "required":
		return &ValidationError{Field: fe.Field(), Reason: "is required"}
	case "gte", "lte":
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("%v is out of range", fe.Value())}
	default:
		return &ValidationError{Field: fe.Field(), Reason: fmt.Sprintf("failed %q check", fe.Tag())}
	}
}
