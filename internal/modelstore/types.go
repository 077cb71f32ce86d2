// Package modelstore trains, versions, persists and serves per-platform regression ensembles.
package modelstore

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ModelType names a target metric.
type ModelType string

const (
	SnapDelta       ModelType = "snap_delta"
	PositionChange  ModelType = "position_change"
	ROI             ModelType = "roi"
	CategorySuccess ModelType = "category_success"
)

// ModelTypes lists every supported target.
func ModelTypes() []ModelType {
	return []ModelType{SnapDelta, PositionChange, ROI, CategorySuccess}
}

// ParseModelType validates a model type name.
func ParseModelType(s string) (ModelType, error) {
	t := ModelType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range ModelTypes() {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("modelstore: unknown model type %q", s)
}

// MinRows is the smallest training set accepted for the target.
func (t ModelType) MinRows() int {
	switch t {
	case ROI:
		return 30
	case CategorySuccess:
		return 50
	default:
		return 20
	}
}

// NonNegative reports whether the target can never be below zero.
func (t ModelType) NonNegative() bool {
	return t == SnapDelta || t == CategorySuccess
}

// clampMember bounds one algorithm's raw output before averaging.
func (t ModelType) clampMember(v float64) float64 {
	if t.NonNegative() && v < 0 {
		v = 0
	}
	if t == CategorySuccess && v > 1 {
		v = 1
	}
	return v
}

// ErrModelNotFound is returned when no trained ensemble exists for a key or version.
var ErrModelNotFound = errors.New("model not found")

// ErrInvalidName is returned for platform or version names that cannot be used as a key segment.
var ErrInvalidName = errors.New("invalid model name")

var nameSegment = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// checkName rejects anything that is not a single, plain key segment.
func checkName(kind, name string) error {
	if !nameSegment.MatchString(name) || name == "." || strings.Contains(name, "..") {
		return fmt.Errorf("%w: %s %q", ErrInvalidName, kind, name)
	}
	return nil
}

// ErrInsufficientData matches every *InsufficientDataError through errors.Is.
var ErrInsufficientData = errors.New("insufficient training data")

// InsufficientDataError reports a training request below the target's minimum row count.
type InsufficientDataError struct {
	ModelType ModelType
	Found     int
	Required  int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient training data for %s: found %d, required %d", e.ModelType, e.Found, e.Required)
}

// Is makes errors.Is(err, ErrInsufficientData) hold.
func (e *InsufficientDataError) Is(target error) bool { return target == ErrInsufficientData }

// Status is the training lifecycle of one (platform, model type) key.
type Status string

const (
	StatusUntrained Status = "untrained"
	StatusTraining  Status = "training"
	StatusTrained   Status = "trained"
)

// Row is one training example.
type Row struct {
	Features map[string]float64 `json:"features"`
	Target   float64            `json:"target"`
}

// Interval is a symmetric spread around the estimate, with Lower possibly clamped.
type Interval struct {
	Lower float64 `json:"lower"`
	Upper float64 `json:"upper"`
	Std   float64 `json:"std"`
}

// Prediction is an ensemble output.
type Prediction struct {
	Estimate     float64            `json:"estimate"`
	PerAlgorithm map[string]float64 `json:"per_algorithm"`
	Interval     Interval           `json:"interval"`
}
