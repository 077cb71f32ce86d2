// Package features turns a (content, author, campaign) triple into a flat numeric feature map.
package features

import (
	"encoding/json"
	"math"
	"sort"
)

// Vector is an insertion-ordered mapping from feature name to a finite real number.
type Vector struct {
	names  []string
	values map[string]float64
}

// NewVector returns an empty vector.
func NewVector() *Vector {
	return &Vector{values: make(map[string]float64)}
}

// FromMap builds a vector with names in sorted order.
func FromMap(m map[string]float64) *Vector {
	v := NewVector()
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		v.Set(name, m[name])
	}
	return v
}

// Set stores value under name. NaN and infinities become 0; re-setting keeps the original position.
func (v *Vector) Set(name string, value float64) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		value = 0
	}
	if _, ok := v.values[name]; !ok {
		v.names = append(v.names, name)
	}
	v.values[name] = value
}

// SetBool stores a boolean as 0 or 1.
func (v *Vector) SetBool(name string, b bool) {
	if b {
		v.Set(name, 1)
		return
	}
	v.Set(name, 0)
}

// Get returns the value for name.
func (v *Vector) Get(name string) (float64, bool) {
	value, ok := v.values[name]
	return value, ok
}

// GetOr returns the value for name, or fallback when absent.
func (v *Vector) GetOr(name string, fallback float64) float64 {
	if value, ok := v.values[name]; ok {
		return value
	}
	return fallback
}

// Has reports whether name is present.
func (v *Vector) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}

// Len returns the number of features.
func (v *Vector) Len() int { return len(v.names) }

// Names returns feature names in insertion order.
func (v *Vector) Names() []string {
	out := make([]string, len(v.names))
	copy(out, v.names)
	return out
}

// Map returns a copy of the values.
func (v *Vector) Map() map[string]float64 {
	out := make(map[string]float64, len(v.values))
	for k, val := range v.values {
		out[k] = val
	}
	return out
}

// Merge copies every feature of other into v.
func (v *Vector) Merge(other *Vector) {
	if other == nil {
		return
	}
	for _, name := range other.names {
		v.Set(name, other.values[name])
	}
}

// Clone returns an independent copy.
func (v *Vector) Clone() *Vector {
	out := NewVector()
	out.Merge(v)
	return out
}

// Align lays the vector out in schema order. Absent names take defaults[name], or 0.
func (v *Vector) Align(schema []string, defaults map[string]float64) []float64 {
	out := make([]float64, len(schema))
	for i, name := range schema {
		if value, ok := v.values[name]; ok {
			out[i] = value
			continue
		}
		out[i] = defaults[name]
	}
	return out
}

// MarshalJSON renders the vector as a JSON object.
func (v *Vector) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.values)
}
