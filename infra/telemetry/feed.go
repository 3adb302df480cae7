// Package telemetry feeds the in-memory sample store from MQTT. One
// subtopic per signal is expected under the configured prefix, carrying a
// JSON payload with the value and its millisecond timestamp.
package telemetry

import (
	"context"
	"encoding/json"
	"strings"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/prognos/config"
	coretelemetry "github.com/kilianp07/prognos/core/telemetry"
	"github.com/kilianp07/prognos/infra/logger"
	infmqtt "github.com/kilianp07/prognos/infra/mqtt"
)

// Feed subscribes to the telemetry topics and caches the latest sample per
// signal into the store the prognoser reads from.
type Feed struct {
	cfg   config.TelemetryConfig
	cli   paho.Client
	store *coretelemetry.Store
	log   logger.Logger

	received *prometheus.CounterVec
	rejected prometheus.Counter
}

type sampleMessage struct {
	Value float64 `json:"value"`
	TS    float64 `json:"ts"` // milliseconds
}

// NewFeed connects to MQTT and prepares the subscription.
func NewFeed(mqttCfg infmqtt.Config, cfg config.TelemetryConfig, store *coretelemetry.Store) (*Feed, error) {
	cli, err := infmqtt.Connect(mqttCfg)
	if err != nil {
		return nil, err
	}
	f := &Feed{
		cfg:   cfg,
		cli:   cli,
		store: store,
		log:   logger.New("telemetry"),
		received: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "telemetry_samples_received_total",
			Help: "Number of telemetry samples received per signal",
		}, []string{"signal"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "telemetry_samples_rejected_total",
			Help: "Number of telemetry payloads that failed to decode",
		}),
	}
	if err := prometheus.Register(f.received); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			f.received = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := prometheus.Register(f.rejected); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			f.rejected = are.ExistingCollector.(prometheus.Counter)
		} else {
			return nil, err
		}
	}
	return f, nil
}

// Start subscribes and blocks until the context is done.
func (f *Feed) Start(ctx context.Context) {
	topic := strings.TrimSuffix(f.cfg.TopicPrefix, "/") + "/+"
	if token := f.cli.Subscribe(topic, 0, f.onSample); token.Wait() && token.Error() != nil {
		f.log.Errorf("subscribe %s: %v", topic, token.Error())
	}
	<-ctx.Done()
	if f.cli.IsConnected() {
		f.cli.Disconnect(250)
	}
}

func (f *Feed) onSample(_ paho.Client, msg paho.Message) {
	signal := signalName(msg.Topic())
	var m sampleMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil || signal == "" {
		f.rejected.Inc()
		f.log.Warnf("drop telemetry on %s: %v", msg.Topic(), err)
		return
	}
	f.store.Set(signal, coretelemetry.Sample{Value: m.Value, TimeMS: m.TS})
	f.received.WithLabelValues(signal).Inc()
}

func signalName(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) == 0 {
		return ""
	}
	return parts[len(parts)-1]
}
