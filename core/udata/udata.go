// Package udata holds uncertainty-bearing values: fixed-size sample
// distributions, per-step output trajectories and the prediction result
// container filled in place by predictors.
package udata

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// UData represents a scalar quantity as a fixed population of samples.
type UData struct {
	samples []float64
}

// NewUData allocates a distribution with n sample points.
func NewUData(n int) UData {
	return UData{samples: make([]float64, n)}
}

// NPoints returns the sample count.
func (u *UData) NPoints() int { return len(u.samples) }

// Get returns sample i.
func (u *UData) Get(i int) float64 { return u.samples[i] }

// Set overwrites sample i.
func (u *UData) Set(i int, v float64) { u.samples[i] = v }

// Samples exposes the backing sample slice. The caller must not resize it.
func (u *UData) Samples() []float64 { return u.samples }

// Copy overwrites the population from src. Lengths must match.
func (u *UData) Copy(src []float64) error {
	if len(src) != len(u.samples) {
		return fmt.Errorf("udata: copy %d samples into %d", len(src), len(u.samples))
	}
	copy(u.samples, src)
	return nil
}

// Mean returns the sample mean. Infinite samples (events that never
// occurred within the horizon) are excluded; the mean of an empty finite
// population is +Inf.
func (u *UData) Mean() float64 {
	finite := make([]float64, 0, len(u.samples))
	for _, s := range u.samples {
		if !math.IsInf(s, 0) && !math.IsNaN(s) {
			finite = append(finite, s)
		}
	}
	if len(finite) == 0 {
		return math.Inf(1)
	}
	return stat.Mean(finite, nil)
}

// Percentile returns the p-th percentile (0 < p < 100) over the finite
// samples, +Inf when no sample is finite.
func (u *UData) Percentile(p float64) float64 {
	finite := make([]float64, 0, len(u.samples))
	for _, s := range u.samples {
		if !math.IsInf(s, 0) && !math.IsNaN(s) {
			finite = append(finite, s)
		}
	}
	if len(finite) == 0 {
		return math.Inf(1)
	}
	sort.Float64s(finite)
	return stat.Quantile(p/100, stat.Empirical, finite, nil)
}

// Trajectory is one predicted output over the horizon: H steps, each an
// N-sample distribution.
type Trajectory struct {
	steps []UData
}

// NewTrajectory allocates a trajectory of h steps with n samples each.
func NewTrajectory(n, h int) *Trajectory {
	t := &Trajectory{steps: make([]UData, h)}
	for i := range t.steps {
		t.steps[i] = NewUData(n)
	}
	return t
}

// Len returns the horizon length.
func (t *Trajectory) Len() int { return len(t.steps) }

// At returns the distribution at the given step.
func (t *Trajectory) At(step int) *UData { return &t.steps[step] }

// ProgData is the prediction result container. It is sized once at
// configuration time and overwritten, never reallocated, by each predict
// call. A single in-flight predict call owns it exclusively.
type ProgData struct {
	// EventName identifies the predicted event, e.g. "EOD".
	EventName string

	// ToE holds the event occurrence time samples, in seconds relative to
	// the prognoser time reference. Samples are +Inf when the event did not
	// occur within the horizon.
	ToE UData

	names        []string
	trajectories map[string]*Trajectory
}

// NewProgData sizes a container for one event, the named predicted outputs,
// n occurrence samples and an h-step horizon.
func NewProgData(event string, outputs []string, n, h int) *ProgData {
	p := &ProgData{
		EventName:    event,
		ToE:          NewUData(n),
		names:        append([]string(nil), outputs...),
		trajectories: make(map[string]*Trajectory, len(outputs)),
	}
	for _, name := range outputs {
		p.trajectories[name] = NewTrajectory(n, h)
	}
	return p
}

// OutputNames returns the predicted output names in declaration order.
func (p *ProgData) OutputNames() []string { return p.names }

// Trajectory returns the trajectory for the named output, nil if unknown.
func (p *ProgData) Trajectory(name string) *Trajectory { return p.trajectories[name] }
