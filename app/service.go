// Package app assembles the configured prognoser, the telemetry feed and the
// metric exporters into a runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kilianp07/prognos/app/plugins"
	"github.com/kilianp07/prognos/config"
	coremetrics "github.com/kilianp07/prognos/core/metrics"
	"github.com/kilianp07/prognos/core/prognoser"
	coretelemetry "github.com/kilianp07/prognos/core/telemetry"
	"github.com/kilianp07/prognos/infra/logger"
	inframetrics "github.com/kilianp07/prognos/infra/metrics"
	infratelemetry "github.com/kilianp07/prognos/infra/telemetry"
	"github.com/kilianp07/prognos/internal/eventbus"
)

// Service owns the step loop and its collaborators.
type Service struct {
	cfg   *config.Config
	log   logger.Logger
	store *coretelemetry.Store
	prog  *prognoser.Prognoser
	feed  *infratelemetry.Feed
	sink  coremetrics.Sink
	bus   *eventbus.TypedBus[coremetrics.PredictionEvent]
}

// New builds the service from a loaded configuration.
func New(cfg *config.Config) (*Service, error) {
	cfg.Prognoser.SetDefaults()
	cfg.Telemetry.SetDefaults()
	cfg.Logging.SetDefaults()
	logger.SetLevel(cfg.Logging.Level)
	log := logger.New("app")

	store := coretelemetry.NewStore()
	regs, err := plugins.Registries()
	if err != nil {
		return nil, err
	}
	prog, err := prognoser.New(cfg, regs, store, logger.New("prognoser"))
	if err != nil {
		return nil, err
	}

	sink, err := buildSink(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	var feed *infratelemetry.Feed
	if cfg.Telemetry.Enabled {
		feed, err = infratelemetry.NewFeed(cfg.MQTT, cfg.Telemetry, store)
		if err != nil {
			return nil, fmt.Errorf("telemetry feed: %w", err)
		}
	}

	return &Service{
		cfg:   cfg,
		log:   log,
		store: store,
		prog:  prog,
		feed:  feed,
		sink:  sink,
		bus:   eventbus.NewTyped[coremetrics.PredictionEvent](),
	}, nil
}

func buildSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		s, err := inframetrics.NewPromSink(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, inframetrics.NewInfluxSinkWithFallback(
			cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return inframetrics.NewMultiSink(sinks...), nil
	}
}

// Store returns the telemetry store. Offline replays inject samples here.
func (s *Service) Store() *coretelemetry.Store { return s.store }

// Prognoser returns the underlying prognoser.
func (s *Service) Prognoser() *prognoser.Prognoser { return s.prog }

// Events returns the bus carrying prediction summaries.
func (s *Service) Events() *eventbus.TypedBus[coremetrics.PredictionEvent] { return s.bus }

// Run drives the step loop at the configured cadence until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			addr := ":" + s.cfg.Metrics.PrometheusPort
			if err := inframetrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prometheus server: %v", err)
			}
		}()
	}
	if s.feed != nil {
		go s.feed.Start(ctx)
	}

	events := s.bus.Subscribe()
	go func() {
		for ev := range events {
			if err := s.sink.RecordPrediction(ev); err != nil {
				s.log.Errorf("record prediction: %v", err)
			}
		}
	}()
	defer s.bus.Close()

	interval := time.Duration(s.cfg.Prognoser.StepIntervalSeconds * float64(time.Second))
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.log.Infof("prognoser loop started, stepping every %s", interval)
	for {
		select {
		case <-ctx.Done():
			s.log.Infof("prognoser loop stopped")
			return ctx.Err()
		case <-ticker.C:
			began := time.Now()
			updated, err := s.prog.Step()
			if err != nil {
				if errors.Is(err, coretelemetry.ErrNoSample) {
					s.log.Debugf("waiting for telemetry: %v", err)
					continue
				}
				s.log.Errorf("step: %v", err)
				continue
			}
			if updated {
				ev := coremetrics.Summarize(s.prog.Results(), s.prog.LastTime())
				ev.Duration = time.Since(began)
				s.log.Debugw("prediction", map[string]any{
					"event":    ev.Event,
					"toe_mean": ev.ToEMean,
					"soc":      ev.SOC,
				})
				s.bus.Publish(ev)
			}
		}
	}
}
