// Package plugins wires the built-in model, observer and predictor
// implementations into the registries the prognoser resolves its
// configuration against.
package plugins

import (
	"github.com/kilianp07/prognos/core/factory"
	"github.com/kilianp07/prognos/core/model"
	"github.com/kilianp07/prognos/core/model/battery"
	"github.com/kilianp07/prognos/core/observer"
	"github.com/kilianp07/prognos/core/predictor"
	"github.com/kilianp07/prognos/core/prognoser"
)

// Registries builds the registries holding the built-in implementations:
// the "Battery" model, the "PF" particle filter observer and the "MC"
// Monte Carlo predictor.
func Registries() (prognoser.Registries, error) {
	regs := prognoser.Registries{
		Models:     factory.NewRegistry[prognoser.ModelFactory](),
		Observers:  factory.NewRegistry[prognoser.ObserverFactory](),
		Predictors: factory.NewRegistry[prognoser.PredictorFactory](),
	}

	if err := regs.Models.Register("Battery", func(conf map[string]any) (model.PrognosticsModel, error) {
		var cfg battery.Config
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return battery.New(cfg), nil
	}); err != nil {
		return regs, err
	}

	if err := regs.Observers.Register("PF", func(m model.Model, conf map[string]any) (observer.Observer, error) {
		var cfg observer.ParticleConfig
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return observer.NewParticleFilter(m, cfg)
	}); err != nil {
		return regs, err
	}

	if err := regs.Predictors.Register("MC", func(m model.PrognosticsModel, conf map[string]any) (predictor.Predictor, error) {
		var cfg predictor.MonteCarloConfig
		if err := factory.Decode(conf, &cfg); err != nil {
			return nil, err
		}
		return predictor.NewMonteCarlo(m, cfg)
	}); err != nil {
		return regs, err
	}

	return regs, nil
}
