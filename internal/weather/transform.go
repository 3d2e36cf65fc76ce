package weather

import (
	"log/slog"
)

// Transform flattens a columnar payload into one record per timestamp.
//
// Every requested variable present in the payload must have exactly one value
// per timestamp, otherwise the whole transform fails and nothing is returned.
// A requested variable missing from the payload is tolerated: it is logged
// and every record carries a null for it.
func Transform(p RawPayload, loc Location, vars VariableSet, log *slog.Logger) ([]ObservationRecord, error) {
	if log == nil {
		log = slog.Default()
	}

	n := len(p.Times)
	names := vars.Names()

	for _, name := range names {
		values, ok := p.Series[name]
		if !ok {
			log.Warn("requested variable missing from payload; filling with null", "variable", name)
			continue
		}
		if len(values) != n {
			return nil, &TransformError{
				Kind:     LengthMismatch,
				Variable: name,
				Got:      len(values),
				Want:     n,
			}
		}
	}

	records := make([]ObservationRecord, 0, n)
	for i, ts := range p.Times {
		rec := ObservationRecord{
			Source:    SourceOpenMeteo,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
			Timestamp: ts,
			Values:    make([]Measurement, 0, len(names)),
		}
		for _, name := range names {
			var v *float64
			if values, ok := p.Series[name]; ok && values[i] != nil {
				x := *values[i]
				v = &x
			}
			rec.Values = append(rec.Values, Measurement{Name: name, Value: v})
		}
		records = append(records, rec)
	}

	log.Debug("transformed hourly records", "count", len(records), "location", loc.Key())
	return records, nil
}
