package weather

import "strings"

// DefaultVariables are requested when the caller does not name any.
var DefaultVariables = []string{"temperature_2m", "relative_humidity_2m"}

// VariableSet is an ordered, duplicate-free list of measurement names.
// The zero value is an empty set.
type VariableSet struct {
	names []string
}

// NewVariableSet trims each name, drops blanks and keeps the first
// occurrence of duplicates.
func NewVariableSet(names ...string) VariableSet {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return VariableSet{names: out}
}

// ParseVariableSet splits a comma-separated list.
func ParseVariableSet(csv string) VariableSet {
	return NewVariableSet(strings.Split(csv, ",")...)
}

// Names returns a copy of the names in order.
func (v VariableSet) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Len returns the number of variables.
func (v VariableSet) Len() int { return len(v.names) }

// Contains reports whether name is in the set.
func (v VariableSet) Contains(name string) bool {
	for _, n := range v.names {
		if n == name {
			return true
		}
	}
	return false
}

// String joins the names with commas, the form the provider expects.
func (v VariableSet) String() string {
	return strings.Join(v.names, ",")
}

// MarshalText lets the set appear as a plain string in JSON output.
func (v VariableSet) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses a comma-separated list.
func (v *VariableSet) UnmarshalText(b []byte) error {
	*v = ParseVariableSet(string(b))
	return nil
}
