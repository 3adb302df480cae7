package model

import (
	"errors"
	"fmt"
)

// Runtime input errors. Callers are expected to match these with errors.Is:
// a failed equation call invalidates that call only, never the model.
var (
	// ErrInvalidLoad reports a malformed future-loading parameterization.
	ErrInvalidLoad = errors.New("invalid load parameterization")
	// ErrOutOfDomain reports a model evaluation that would require a
	// transcendental term outside its valid domain.
	ErrOutOfDomain = errors.New("evaluation outside valid domain")
	// ErrDimension reports a vector whose length does not match the
	// model's declared counts.
	ErrDimension = errors.New("vector dimension mismatch")
)

// Dimensions declares the vector sizes of a model, fixed at construction.
type Dimensions struct {
	States           int
	Inputs           int
	Outputs          int
	PredictedOutputs int
}

// Model is the state-space contract every physical model provides. All
// methods are pure given their arguments and mutate only the designated
// output slice.
type Model interface {
	// StateEqn advances x in place to x(t+dt) under input u and process
	// noise n, using explicit forward-Euler integration.
	StateEqn(t float64, x, u, n []float64, dt float64) error

	// OutputEqn computes the measured outputs z from the state and output
	// noise n. x is not mutated.
	OutputEqn(t float64, x, u, n, z []float64) error

	// ThresholdEqn reports whether the end-of-life condition holds at the
	// given state.
	ThresholdEqn(t float64, x, u []float64) (bool, error)

	// InputEqn maps a flat list of (magnitude, duration) pairs to the input
	// u active at time t. An empty or odd-length list is rejected with
	// ErrInvalidLoad.
	InputEqn(t float64, loading []float64, u []float64) error

	// Initialize reconstructs a consistent state x from an observed output z
	// and input u.
	Initialize(x, u, z []float64) error

	// Dimensions returns the declared vector sizes.
	Dimensions() Dimensions

	// DefaultStep returns the model's nominal integration step in seconds.
	DefaultStep() float64
}

// PrognosticsModel extends Model with derived quantities of interest used by
// predictors for reporting.
type PrognosticsModel interface {
	Model

	// PredictedOutputEqn computes noise-free derived outputs z (e.g. state
	// of charge) from the state.
	PredictedOutputEqn(t float64, x, u, z []float64) error

	// PredictedOutputNames returns the derived output names in vector order.
	PredictedOutputNames() []string
}

// CheckLen validates a vector against the length the model declares for it.
func CheckLen(name string, v []float64, want int) error {
	if len(v) != want {
		return fmt.Errorf("%s vector has length %d, want %d: %w", name, len(v), want, ErrDimension)
	}
	return nil
}
