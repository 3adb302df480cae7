package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	coremetrics "github.com/kilianp07/prognos/core/metrics"
	"github.com/kilianp07/prognos/infra/logger"
)

// PromSink exposes prediction summaries as Prometheus metrics.
type PromSink struct {
	predictions prometheus.Counter
	latency     prometheus.Histogram
	toe         *prometheus.GaugeVec
	soc         prometheus.Gauge
	rul         prometheus.Gauge
}

// NewPromSink registers prediction metrics on the default Prometheus
// registerer. The Prometheus server should be started separately using
// cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	predictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "prognosis_predictions_total",
		Help: "Total number of completed predictions",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "prognosis_step_duration_seconds",
		Help:    "Time one estimator update plus predict took",
		Buckets: prometheus.DefBuckets,
	})
	toe := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prognosis_time_of_event_seconds",
		Help: "Predicted time of event, seconds since the prognoser started",
	}, []string{"event", "stat"})
	soc := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prognosis_state_of_charge",
		Help: "Mean estimated state of charge at the prediction start",
	})
	rul := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "prognosis_remaining_useful_life_seconds",
		Help: "Mean predicted remaining time until the event",
	})

	if err := reg.Register(predictions); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			predictions = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(latency); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			latency = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(toe); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			toe = are.ExistingCollector.(*prometheus.GaugeVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(soc); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			soc = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(rul); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			rul = are.ExistingCollector.(prometheus.Gauge)
		} else {
			return nil, err
		}
	}

	return &PromSink{predictions: predictions, latency: latency, toe: toe, soc: soc, rul: rul}, nil
}

// RecordPrediction publishes the summary gauges for one prediction.
func (s *PromSink) RecordPrediction(ev coremetrics.PredictionEvent) error {
	s.predictions.Inc()
	s.latency.Observe(ev.Duration.Seconds())
	s.toe.WithLabelValues(ev.Event, "mean").Set(ev.ToEMean)
	s.toe.WithLabelValues(ev.Event, "p05").Set(ev.ToEP05)
	s.toe.WithLabelValues(ev.Event, "p50").Set(ev.ToEP50)
	s.toe.WithLabelValues(ev.Event, "p95").Set(ev.ToEP95)
	s.rul.Set(ev.ToEMean - ev.Time)
	if ev.SOC == ev.SOC { // skip NaN
		s.soc.Set(ev.SOC)
	}
	return nil
}

// StartPromServer serves the default registry on addr until ctx is done.
func StartPromServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	log := logger.New("prom-server")
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Errorf("prometheus server shutdown: %v", err)
		}
	}()
	log.Infof("serving prometheus metrics on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
