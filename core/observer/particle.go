package observer

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/prognos/core/model"
	"github.com/kilianp07/prognos/core/udata"
)

// ParticleConfig tunes the bootstrap particle filter.
type ParticleConfig struct {
	// Particles is the population size. Defaults to 100.
	Particles int `json:"particles"`
	// ProcessNoise holds one standard deviation per state dimension. An
	// empty slice disables process noise.
	ProcessNoise []float64 `json:"process_noise"`
	// SensorNoise holds one standard deviation per output dimension, used
	// for the measurement likelihood. Defaults to 1 per output.
	SensorNoise []float64 `json:"sensor_noise"`
	// Seed fixes the random source; 0 picks an arbitrary seed.
	Seed uint64 `json:"seed"`
}

// ParticleFilter is a bootstrap filter over the model: particles are
// propagated through the state equation with process noise, weighted by a
// Gaussian output likelihood and resampled systematically on every step.
type ParticleFilter struct {
	model model.Model
	cfg   ParticleConfig
	dims  model.Dimensions
	rng   *rand.Rand

	t         float64
	particles [][]float64
	next      [][]float64
	weights   []float64

	scratch struct {
		noise   []float64
		noNoise []float64
		zPred   []float64
	}
}

// NewParticleFilter builds a filter for the given model.
func NewParticleFilter(m model.Model, cfg ParticleConfig) (*ParticleFilter, error) {
	dims := m.Dimensions()
	if cfg.Particles <= 0 {
		cfg.Particles = 100
	}
	if len(cfg.ProcessNoise) == 0 {
		cfg.ProcessNoise = make([]float64, dims.States)
	}
	if err := model.CheckLen("process noise", cfg.ProcessNoise, dims.States); err != nil {
		return nil, err
	}
	if len(cfg.SensorNoise) == 0 {
		cfg.SensorNoise = make([]float64, dims.Outputs)
		for i := range cfg.SensorNoise {
			cfg.SensorNoise[i] = 1
		}
	}
	if err := model.CheckLen("sensor noise", cfg.SensorNoise, dims.Outputs); err != nil {
		return nil, err
	}
	for i, s := range cfg.SensorNoise {
		if s <= 0 {
			return nil, fmt.Errorf("observer: sensor noise %d must be positive, got %g", i, s)
		}
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	pf := &ParticleFilter{
		model:     m,
		cfg:       cfg,
		dims:      dims,
		rng:       rand.New(rand.NewSource(seed)),
		particles: make([][]float64, cfg.Particles),
		next:      make([][]float64, cfg.Particles),
		weights:   make([]float64, cfg.Particles),
	}
	for i := range pf.particles {
		pf.particles[i] = make([]float64, dims.States)
		pf.next[i] = make([]float64, dims.States)
	}
	pf.scratch.noise = make([]float64, dims.States)
	pf.scratch.noNoise = make([]float64, dims.Outputs)
	pf.scratch.zPred = make([]float64, dims.Outputs)
	return pf, nil
}

// Initialize implements Observer. The population is spread around the seed
// state using the process noise standard deviations.
func (pf *ParticleFilter) Initialize(t float64, x, u []float64) error {
	if err := model.CheckLen("state", x, pf.dims.States); err != nil {
		return err
	}
	for i := range pf.particles {
		copy(pf.particles[i], x)
		for j, sigma := range pf.cfg.ProcessNoise {
			if sigma > 0 {
				pf.particles[i][j] += distuv.Normal{Mu: 0, Sigma: sigma, Src: pf.rng}.Rand()
			}
		}
	}
	pf.t = t
	return nil
}

// Step implements Observer. Particles that leave the model's valid domain
// during propagation keep their previous state and receive zero weight.
func (pf *ParticleFilter) Step(t float64, u, z []float64) error {
	if err := model.CheckLen("input", u, pf.dims.Inputs); err != nil {
		return err
	}
	if err := model.CheckLen("output", z, pf.dims.Outputs); err != nil {
		return err
	}
	dt := t - pf.t
	if dt <= 0 {
		return fmt.Errorf("observer: step time %g not after %g", t, pf.t)
	}

	total := 0.0
	for i, particle := range pf.particles {
		for j, sigma := range pf.cfg.ProcessNoise {
			if sigma > 0 {
				pf.scratch.noise[j] = distuv.Normal{Mu: 0, Sigma: sigma, Src: pf.rng}.Rand()
			} else {
				pf.scratch.noise[j] = 0
			}
		}
		copy(pf.next[i], particle)
		w := 0.0
		if err := pf.model.StateEqn(pf.t, pf.next[i], u, pf.scratch.noise, dt); err == nil {
			if err := pf.model.OutputEqn(t, pf.next[i], u, pf.scratch.noNoise, pf.scratch.zPred); err == nil {
				w = 1.0
				for k := range z {
					w *= distuv.Normal{Mu: pf.scratch.zPred[k], Sigma: pf.cfg.SensorNoise[k]}.Prob(z[k])
				}
			}
		}
		if w == 0 {
			// dead particle: keep its pre-propagation state
			copy(pf.next[i], particle)
		}
		pf.weights[i] = w
		total += w
	}
	pf.particles, pf.next = pf.next, pf.particles

	if total <= 0 || math.IsNaN(total) {
		// degenerate population, fall back to uniform weights
		for i := range pf.weights {
			pf.weights[i] = 1 / float64(len(pf.weights))
		}
	} else {
		for i := range pf.weights {
			pf.weights[i] /= total
		}
	}
	pf.resample()
	pf.t = t
	return nil
}

// resample draws a new population by systematic resampling; afterwards the
// particles are an unweighted sample of the posterior.
func (pf *ParticleFilter) resample() {
	n := len(pf.particles)
	step := 1.0 / float64(n)
	u := pf.rng.Float64() * step
	cum := pf.weights[0]
	j := 0
	for i := 0; i < n; i++ {
		for u > cum && j < n-1 {
			j++
			cum += pf.weights[j]
		}
		copy(pf.next[i], pf.particles[j])
		u += step
	}
	pf.particles, pf.next = pf.next, pf.particles
}

// StateEstimate implements Observer. The particles are returned directly as
// the per-dimension sample populations.
func (pf *ParticleFilter) StateEstimate() []udata.UData {
	est := make([]udata.UData, pf.dims.States)
	for k := range est {
		est[k] = udata.NewUData(len(pf.particles))
		for i, particle := range pf.particles {
			est[k].Set(i, particle[k])
		}
	}
	return est
}
