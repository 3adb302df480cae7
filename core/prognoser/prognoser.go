// Package prognoser sequences the model, observer and predictor into a
// periodic step loop. The orchestrator owns the time reference and the
// shared prediction result container.
package prognoser

import (
	"fmt"

	"github.com/kilianp07/prognos/config"
	"github.com/kilianp07/prognos/core/factory"
	"github.com/kilianp07/prognos/core/logger"
	"github.com/kilianp07/prognos/core/model"
	"github.com/kilianp07/prognos/core/observer"
	"github.com/kilianp07/prognos/core/predictor"
	"github.com/kilianp07/prognos/core/telemetry"
	"github.com/kilianp07/prognos/core/udata"
)

// Factory signatures bound through the registries. The observer and
// predictor constructors receive the already-built model.
type (
	ModelFactory     func(conf map[string]any) (model.PrognosticsModel, error)
	ObserverFactory  func(m model.Model, conf map[string]any) (observer.Observer, error)
	PredictorFactory func(m model.PrognosticsModel, conf map[string]any) (predictor.Predictor, error)
)

// Registries holds the three implementation registries.
type Registries struct {
	Models     *factory.Registry[ModelFactory]
	Observers  *factory.Registry[ObserverFactory]
	Predictors *factory.Registry[PredictorFactory]
}

// Prognoser is the step state machine. It starts Uninitialized and switches
// to Running on the first step; there is no terminal state. Step is not
// reentrant: the caller drives it from a single goroutine on a steady
// cadence.
type Prognoser struct {
	model     model.PrognosticsModel
	observer  observer.Observer
	predictor predictor.Predictor
	source    telemetry.Source
	log       logger.Logger

	inputs  []string
	outputs []string
	results *udata.ProgData

	initialized bool
	// refMS anchors the relative clock: the millisecond timestamp of the
	// first observed sample of the reference output. Set exactly once, on
	// the Uninitialized to Running transition.
	refMS    float64
	lastTime float64
}

// New builds a prognoser from a validated configuration. Any missing
// required key or unresolvable type name fails construction; no partially
// constructed prognoser is returned.
func New(cfg *config.Config, regs Registries, src telemetry.Source, log logger.Logger) (*Prognoser, error) {
	pc := cfg.Prognoser
	pc.SetDefaults()
	if err := pc.Validate(); err != nil {
		return nil, err
	}

	log.Debugf("creating model %s", pc.Model.Type)
	mf, err := regs.Models.Lookup(pc.Model.Type)
	if err != nil {
		return nil, err
	}
	m, err := mf(pc.Model.Conf)
	if err != nil {
		return nil, fmt.Errorf("model %s: %w", pc.Model.Type, err)
	}

	dims := m.Dimensions()
	if len(pc.Inputs) != dims.Inputs {
		return nil, fmt.Errorf("prognoser.inputs names %d signals, model declares %d: %w",
			len(pc.Inputs), dims.Inputs, config.ErrInvalidValue)
	}
	if len(pc.Outputs) != dims.Outputs {
		return nil, fmt.Errorf("prognoser.outputs names %d signals, model declares %d: %w",
			len(pc.Outputs), dims.Outputs, config.ErrInvalidValue)
	}
	if want := m.PredictedOutputNames(); len(pc.PredictedOutputs) != len(want) {
		return nil, fmt.Errorf("prognoser.predicted_outputs names %d quantities, model declares %d: %w",
			len(pc.PredictedOutputs), len(want), config.ErrInvalidValue)
	}

	log.Debugf("creating observer %s", pc.Observer.Type)
	of, err := regs.Observers.Lookup(pc.Observer.Type)
	if err != nil {
		return nil, err
	}
	obs, err := of(m, pc.Observer.Conf)
	if err != nil {
		return nil, fmt.Errorf("observer %s: %w", pc.Observer.Type, err)
	}

	log.Debugf("creating predictor %s", pc.Predictor.Type)
	pf, err := regs.Predictors.Lookup(pc.Predictor.Type)
	if err != nil {
		return nil, err
	}
	pred, err := pf(m, pc.Predictor.Conf)
	if err != nil {
		return nil, fmt.Errorf("predictor %s: %w", pc.Predictor.Type, err)
	}

	return &Prognoser{
		model:     m,
		observer:  obs,
		predictor: pred,
		source:    src,
		log:       log,
		inputs:    append([]string(nil), pc.Inputs...),
		outputs:   append([]string(nil), pc.Outputs...),
		results:   udata.NewProgData(pc.Event, pc.PredictedOutputs, pc.NumSamples, pc.Horizon),
	}, nil
}

// Results returns the shared result container. It is valid after the first
// Step that returned updated=true and is overwritten by later predictions.
func (p *Prognoser) Results() *udata.ProgData { return p.results }

// Initialized reports whether the first step has run.
func (p *Prognoser) Initialized() bool { return p.initialized }

// Step runs one cycle of the state machine and reports whether a fresh
// prediction was produced.
//
// The first call reads the current samples, anchors the relative clock on
// the reference output's timestamp, seeds the observer from the model's
// reconstructed state and transitions to Running without predicting. Later
// calls skip silently while the sample time has not advanced, otherwise
// they run exactly one observer update and one predict.
func (p *Prognoser) Step() (bool, error) {
	ref, ok := p.source.Lookup(p.outputs[0])
	if !ok {
		return false, fmt.Errorf("signal %q: %w", p.outputs[0], telemetry.ErrNoSample)
	}

	dims := p.model.Dimensions()
	u := make([]float64, dims.Inputs)
	z := make([]float64, dims.Outputs)
	for i, name := range p.inputs {
		s, ok := p.source.Lookup(name)
		if !ok {
			return false, fmt.Errorf("signal %q: %w", name, telemetry.ErrNoSample)
		}
		u[i] = s.Value
	}
	for i, name := range p.outputs {
		s, ok := p.source.Lookup(name)
		if !ok {
			return false, fmt.Errorf("signal %q: %w", name, telemetry.ErrNoSample)
		}
		z[i] = s.Value
	}

	if !p.initialized {
		p.refMS = ref.TimeMS
		newT := 0.0
		p.log.Debugf("initializing prognoser at reference time %gms", p.refMS)
		x := make([]float64, dims.States)
		if err := p.model.Initialize(x, u, z); err != nil {
			return false, err
		}
		if err := p.observer.Initialize(newT, x, u); err != nil {
			return false, err
		}
		p.initialized = true
		p.lastTime = newT
		return false, nil
	}

	newT := (ref.TimeMS - p.refMS) / 1e3
	if newT <= p.lastTime {
		// stale or duplicate sample, intentionally a silent no-op
		p.log.Debugf("skipping step, time did not advance (%.3fs)", newT)
		return false, nil
	}

	if err := p.observer.Step(newT, u, z); err != nil {
		return false, err
	}
	est := p.observer.StateEstimate()
	if err := p.predictor.Predict(newT, est, p.results); err != nil {
		return false, err
	}
	p.lastTime = newT
	return true, nil
}

// LastTime returns the relative time, in seconds, of the last processed
// sample.
func (p *Prognoser) LastTime() float64 { return p.lastTime }
