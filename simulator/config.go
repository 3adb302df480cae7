package main

import (
	"flag"
	"fmt"
	"time"
)

// Config collects the simulator flags.
type Config struct {
	Broker      string
	TopicPrefix string
	Interval    time.Duration
	Duration    time.Duration

	// Power is the constant discharge power drawn from the pack, in W.
	Power float64
	// QMobile overrides the mobile charge of the simulated pack.
	QMobile float64
	// VoltageNoise and TempNoise are the sensor noise standard deviations.
	VoltageNoise float64
	TempNoise    float64
	Seed         uint64

	Verbose bool
}

func parseFlags() Config {
	var cfg Config
	flag.StringVar(&cfg.Broker, "broker", "tcp://localhost:1883", "MQTT broker URL")
	flag.StringVar(&cfg.TopicPrefix, "topic", "prognos/telemetry", "telemetry topic prefix")
	flag.DurationVar(&cfg.Interval, "interval", time.Second, "publish interval")
	flag.DurationVar(&cfg.Duration, "duration", 0, "stop after this long (0 runs until discharge)")
	flag.Float64Var(&cfg.Power, "power", 8, "discharge power in W")
	flag.Float64Var(&cfg.QMobile, "qmobile", 7600, "mobile charge of the simulated pack")
	flag.Float64Var(&cfg.VoltageNoise, "voltage-noise", 0.002, "voltage sensor noise stddev")
	flag.Float64Var(&cfg.TempNoise, "temp-noise", 0.05, "temperature sensor noise stddev")
	flag.Uint64Var(&cfg.Seed, "seed", 0, "random seed, 0 picks one")
	flag.BoolVar(&cfg.Verbose, "verbose", false, "log every published sample")
	flag.Parse()
	return cfg
}

// Validate rejects unusable flag combinations.
func (c *Config) Validate() error {
	if c.Broker == "" {
		return fmt.Errorf("broker must not be empty")
	}
	if c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}
	if c.Power <= 0 {
		return fmt.Errorf("power must be positive")
	}
	if c.QMobile <= 0 {
		return fmt.Errorf("qmobile must be positive")
	}
	return nil
}
