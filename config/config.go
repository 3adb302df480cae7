// Package config loads and validates the service configuration. A missing
// required prognoser key is fatal: Load returns an error and no partially
// configured service is ever constructed.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kilianp07/prognos/core/factory"
	"github.com/kilianp07/prognos/core/metrics"
	"github.com/kilianp07/prognos/infra/mqtt"
)

// Configuration error kinds.
var (
	// ErrMissingKey reports an absent required key.
	ErrMissingKey = errors.New("missing required configuration key")
	// ErrInvalidValue reports a present value outside its valid domain.
	ErrInvalidValue = errors.New("invalid configuration value")
)

// Config is the root configuration.
type Config struct {
	Prognoser PrognoserConfig `json:"prognoser"`
	Telemetry TelemetryConfig `json:"telemetry"`
	MQTT      mqtt.Config     `json:"mqtt"`
	Metrics   metrics.Config  `json:"metrics"`
	Logging   LoggingConfig   `json:"logging"`
}

// PrognoserConfig selects the model, observer and predictor implementations
// and sizes the prediction containers.
type PrognoserConfig struct {
	Model     factory.ModuleConfig `json:"model"`
	Observer  factory.ModuleConfig `json:"observer"`
	Predictor factory.ModuleConfig `json:"predictor"`

	// Event names the predicted end-of-life event, e.g. "EOD".
	Event string `json:"event"`
	// NumSamples is the Monte Carlo sample count N.
	NumSamples int `json:"num_samples"`
	// Horizon is the prediction horizon length H in steps.
	Horizon int `json:"horizon"`
	// PredictedOutputs, Inputs and Outputs name the telemetry signals and
	// derived quantities, in model vector order.
	PredictedOutputs []string `json:"predicted_outputs"`
	Inputs           []string `json:"inputs"`
	Outputs          []string `json:"outputs"`

	// StepIntervalSeconds is the cadence the service invokes step at.
	StepIntervalSeconds float64 `json:"step_interval_seconds"`
}

// SetDefaults applies defaults for optional fields.
func (c *PrognoserConfig) SetDefaults() {
	if c.StepIntervalSeconds <= 0 {
		c.StepIntervalSeconds = 1
	}
}

// Validate checks all required keys. Every violation is reported so a bad
// config surfaces completely on the first run.
func (c PrognoserConfig) Validate() error {
	var errs []error
	missing := func(key string) {
		errs = append(errs, fmt.Errorf("prognoser.%s: %w", key, ErrMissingKey))
	}
	if c.Model.Type == "" {
		missing("model.type")
	}
	if c.Observer.Type == "" {
		missing("observer.type")
	}
	if c.Predictor.Type == "" {
		missing("predictor.type")
	}
	if c.Event == "" {
		missing("event")
	}
	if c.NumSamples == 0 {
		missing("num_samples")
	} else if c.NumSamples < 0 {
		errs = append(errs, fmt.Errorf("prognoser.num_samples = %d: %w", c.NumSamples, ErrInvalidValue))
	}
	if c.Horizon == 0 {
		missing("horizon")
	} else if c.Horizon < 0 {
		errs = append(errs, fmt.Errorf("prognoser.horizon = %d: %w", c.Horizon, ErrInvalidValue))
	}
	if len(c.PredictedOutputs) == 0 {
		missing("predicted_outputs")
	}
	if len(c.Inputs) == 0 {
		missing("inputs")
	}
	if len(c.Outputs) == 0 {
		missing("outputs")
	}
	return errors.Join(errs...)
}

// Map returns the required keys as a string-list dictionary. Every key a
// valid configuration was constructed from is recoverable here unchanged.
func (c PrognoserConfig) Map() map[string][]string {
	return map[string][]string{
		"model":             {c.Model.Type},
		"observer":          {c.Observer.Type},
		"predictor":         {c.Predictor.Type},
		"event":             {c.Event},
		"num_samples":       {strconv.Itoa(c.NumSamples)},
		"horizon":           {strconv.Itoa(c.Horizon)},
		"predicted_outputs": append([]string(nil), c.PredictedOutputs...),
		"inputs":            append([]string(nil), c.Inputs...),
		"outputs":           append([]string(nil), c.Outputs...),
	}
}

// TelemetryConfig configures the MQTT telemetry feed.
type TelemetryConfig struct {
	// Enabled switches the MQTT feed on. Tests and offline replays inject
	// samples into the store directly instead.
	Enabled bool `json:"enabled"`
	// TopicPrefix is the topic under which one subtopic per signal name is
	// expected, e.g. prognos/telemetry/voltage.
	TopicPrefix string `json:"topic_prefix"`
}

// SetDefaults applies sane defaults.
func (c *TelemetryConfig) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "prognos/telemetry"
	}
}

// LoggingConfig controls the zerolog output.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error.
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks the level name.
func (c LoggingConfig) Validate() error {
	switch c.Level {
	case "trace", "debug", "info", "warn", "error":
		return nil
	}
	return fmt.Errorf("logging.level %q: %w", c.Level, ErrInvalidValue)
}

// Load reads the configuration file, applies environment overrides with the
// P_ prefix (P_PROGNOSER__EVENT overrides prognoser.event), fills defaults
// and validates.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	var parser koanf.Parser
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	if err := k.Load(env.Provider("P_", ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "p_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.Prognoser.SetDefaults()
	cfg.Telemetry.SetDefaults()
	cfg.Logging.SetDefaults()
	if err := cfg.Prognoser.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Logging.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
