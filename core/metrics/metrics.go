// Package metrics defines the sink contract prediction results are exported
// through. Concrete sinks live in infra/metrics.
package metrics

import (
	"math"
	"time"

	"github.com/kilianp07/prognos/core/udata"
)

// PredictionEvent summarizes one completed predict call.
type PredictionEvent struct {
	// Event is the predicted event name, e.g. "EOD".
	Event string
	// Time is the prediction start, seconds relative to the prognoser's
	// time reference.
	Time float64
	// ToEMean and the percentiles summarize the event occurrence time
	// distribution, in the same relative seconds.
	ToEMean float64
	ToEP05  float64
	ToEP50  float64
	ToEP95  float64
	// SOC is the mean first-step value of the "SOC" trajectory when the
	// model predicts one, NaN otherwise.
	SOC float64
	// Generated is the wall-clock time the prediction completed and
	// Duration how long the producing step took.
	Generated time.Time
	Duration  time.Duration
}

// Summarize builds a PredictionEvent from a filled result container.
func Summarize(pd *udata.ProgData, t float64) PredictionEvent {
	ev := PredictionEvent{
		Event:     pd.EventName,
		Time:      t,
		ToEMean:   pd.ToE.Mean(),
		ToEP05:    pd.ToE.Percentile(5),
		ToEP50:    pd.ToE.Percentile(50),
		ToEP95:    pd.ToE.Percentile(95),
		SOC:       math.NaN(),
		Generated: time.Now(),
	}
	if traj := pd.Trajectory("SOC"); traj != nil && traj.Len() > 0 {
		ev.SOC = traj.At(0).Mean()
	}
	return ev
}

// Sink receives prediction summaries.
type Sink interface {
	RecordPrediction(ev PredictionEvent) error
}

// Config enables and configures the metric exporters.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled"`
	InfluxURL         string `json:"influx_url"`
	InfluxToken       string `json:"influx_token"`
	InfluxOrg         string `json:"influx_org"`
	InfluxBucket      string `json:"influx_bucket"`
}

// NopSink discards all events.
type NopSink struct{}

// RecordPrediction implements Sink.
func (NopSink) RecordPrediction(PredictionEvent) error { return nil }
