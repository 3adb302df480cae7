package predictor

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/prognos/core/model"
	"github.com/kilianp07/prognos/core/udata"
)

// MonteCarloConfig tunes the Monte Carlo predictor.
type MonteCarloConfig struct {
	// Loading is the flat (magnitude, duration) future-loading profile fed
	// to the model's input equation during rollouts.
	Loading []float64 `json:"loading"`
	// StepSeconds is the rollout integration step. Defaults to the model's
	// nominal step.
	StepSeconds float64 `json:"step_seconds"`
	// ProcessNoise holds one standard deviation per state dimension applied
	// during rollouts. Empty disables rollout noise.
	ProcessNoise []float64 `json:"process_noise"`
	// Workers bounds the rollout parallelism. Defaults to GOMAXPROCS.
	Workers int `json:"workers"`
	// Seed fixes the random source; 0 picks an arbitrary seed.
	Seed uint64 `json:"seed"`
}

// MonteCarlo projects each state sample forward under the configured loading
// profile until the model's end-of-life threshold fires or the horizon ends.
// Rollouts are independent given the state snapshot, so they run on a
// bounded worker pool; the model is only read during a predict call.
type MonteCarlo struct {
	model   model.PrognosticsModel
	cfg     MonteCarloConfig
	dims    model.Dimensions
	seed    uint64
	workers int
}

// NewMonteCarlo builds a predictor for the given model. The loading profile
// is validated eagerly so a malformed configuration fails at construction
// rather than on the first predict.
func NewMonteCarlo(m model.PrognosticsModel, cfg MonteCarloConfig) (*MonteCarlo, error) {
	dims := m.Dimensions()
	u := make([]float64, dims.Inputs)
	if err := m.InputEqn(0, cfg.Loading, u); err != nil {
		return nil, err
	}
	if cfg.StepSeconds <= 0 {
		cfg.StepSeconds = m.DefaultStep()
	}
	if len(cfg.ProcessNoise) == 0 {
		cfg.ProcessNoise = make([]float64, dims.States)
	}
	if err := model.CheckLen("process noise", cfg.ProcessNoise, dims.States); err != nil {
		return nil, err
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &MonteCarlo{model: m, cfg: cfg, dims: dims, seed: seed, workers: workers}, nil
}

// Predict implements Predictor. Workers write to disjoint sample indices of
// the shared container, so no further synchronization is needed.
func (mc *MonteCarlo) Predict(t float64, state []udata.UData, result *udata.ProgData) error {
	if len(state) != mc.dims.States {
		return fmt.Errorf("predictor: state estimate has %d dimensions, want %d: %w",
			len(state), mc.dims.States, model.ErrDimension)
	}
	n := result.ToE.NPoints()
	for k := range state {
		if state[k].NPoints() != n {
			return fmt.Errorf("predictor: state dimension %d has %d samples, want %d: %w",
				k, state[k].NPoints(), n, model.ErrDimension)
		}
	}
	names := result.OutputNames()
	if len(names) == 0 {
		return fmt.Errorf("predictor: result container declares no predicted outputs")
	}
	horizon := result.Trajectory(names[0]).Len()

	indices := make(chan int)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for w := 0; w < mc.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(mc.seed + uint64(worker)))
			x := make([]float64, mc.dims.States)
			u := make([]float64, mc.dims.Inputs)
			noise := make([]float64, mc.dims.States)
			zp := make([]float64, mc.dims.PredictedOutputs)
			for i := range indices {
				for k := range x {
					x[k] = state[k].Get(i)
				}
				if err := mc.rollout(t, i, horizon, x, u, noise, zp, rng, names, result); err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()
				}
			}
		}(w)
	}
	for i := 0; i < n; i++ {
		indices <- i
	}
	close(indices)
	wg.Wait()
	return firstErr
}

// rollout simulates sample i forward and records its occurrence time and
// trajectory slots. Once the threshold fires the state is frozen: remaining
// trajectory steps carry the value at the event.
func (mc *MonteCarlo) rollout(t float64, i, horizon int, x, u, noise, zp []float64,
	rng *rand.Rand, names []string, result *udata.ProgData) error {

	dt := mc.cfg.StepSeconds
	toe := math.Inf(1)
	reached := false
	now := t
	for step := 0; step < horizon; step++ {
		if err := mc.model.InputEqn(now, mc.cfg.Loading, u); err != nil {
			return err
		}
		if !reached {
			hit, err := mc.model.ThresholdEqn(now, x, u)
			if err != nil {
				return err
			}
			if hit {
				toe = now
				reached = true
			}
		}
		if err := mc.model.PredictedOutputEqn(now, x, u, zp); err != nil {
			return err
		}
		for oi, name := range names {
			result.Trajectory(name).At(step).Set(i, zp[oi])
		}
		if !reached {
			for j, sigma := range mc.cfg.ProcessNoise {
				if sigma > 0 {
					noise[j] = distuv.Normal{Mu: 0, Sigma: sigma, Src: rng}.Rand()
				} else {
					noise[j] = 0
				}
			}
			if err := mc.model.StateEqn(now, x, u, noise, dt); err != nil {
				// The model left its valid domain mid-rollout, which for a
				// discharge means the cell is past empty: clamp the event
				// to the current time.
				toe = now
				reached = true
			}
		}
		now += dt
	}
	result.ToE.Set(i, toe)
	return nil
}
