// Package predictor defines the forward prediction contract and a Monte
// Carlo reference implementation. A predictor projects a state distribution
// forward in time and fills the shared result container in place.
package predictor

import "github.com/kilianp07/prognos/core/udata"

// Predictor fills result with the event occurrence distribution and the
// predicted output trajectories, starting the projection at time t from the
// given per-dimension state distributions. The container is overwritten in
// place; only one predict call may be in flight per container.
type Predictor interface {
	Predict(t float64, state []udata.UData, result *udata.ProgData) error
}
