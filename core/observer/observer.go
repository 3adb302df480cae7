// Package observer defines the state estimator contract and a sample-based
// reference implementation. An observer turns the noisy (input, output)
// stream into a state distribution for the predictor.
package observer

import "github.com/kilianp07/prognos/core/udata"

// Observer estimates the model state from streamed samples.
type Observer interface {
	// Initialize seeds the estimate with a reconstructed state at time t.
	Initialize(t float64, x, u []float64) error

	// Step folds one (input, output) sample at time t into the estimate.
	Step(t float64, u, z []float64) error

	// StateEstimate returns the current estimate as one sample distribution
	// per state dimension.
	StateEstimate() []udata.UData
}
