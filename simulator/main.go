// Command simulator publishes synthetic battery telemetry over MQTT. It
// integrates the same electrochemistry model the service estimates against,
// adds sensor noise and streams voltage, temperature and power samples until
// the pack reaches end of discharge.
package main

import (
	"context"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/kilianp07/prognos/core/model/battery"
)

func main() {
	cfg := parseFlags()
	if err := (&cfg).Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if !cfg.Verbose {
		log.SetOutput(io.Discard)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Duration)
		defer cancel()
	}

	pub, err := newPublisher(cfg)
	if err != nil {
		log.Fatalf("mqtt connect: %v", err)
	}
	defer pub.close()

	if err := run(ctx, cfg, pub); err != nil {
		log.Fatalf("simulate: %v", err)
	}
}

func run(ctx context.Context, cfg Config, pub *publisher) error {
	m := battery.New(battery.Config{QMobile: cfg.QMobile})
	dims := m.Dimensions()

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)
	vNoise := distuv.Normal{Mu: 0, Sigma: cfg.VoltageNoise, Src: src}
	tNoise := distuv.Normal{Mu: 0, Sigma: cfg.TempNoise, Src: src}

	// Start from a full pack at ambient temperature.
	x := make([]float64, dims.States)
	u := []float64{cfg.Power}
	if err := m.Initialize(x, u, []float64{20, 4.2}); err != nil {
		return err
	}

	zClean := make([]float64, dims.Outputs)
	noNoise := make([]float64, dims.Outputs)
	stateNoise := make([]float64, dims.States)
	dt := cfg.Interval.Seconds()

	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	var elapsed float64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if err := m.OutputEqn(elapsed, x, u, noNoise, zClean); err != nil {
			return err
		}
		now := float64(time.Now().UnixMilli())
		pub.sample("temperature", zClean[battery.OutputTemp]+tNoise.Rand(), now)
		pub.sample("voltage", zClean[battery.OutputVoltage]+vNoise.Rand(), now)
		pub.sample("power", cfg.Power, now)
		log.Printf("t=%.0fs V=%.3f T=%.2f", elapsed, zClean[battery.OutputVoltage], zClean[battery.OutputTemp])

		reached, err := m.ThresholdEqn(elapsed, x, u)
		if err != nil {
			return err
		}
		if reached {
			log.Printf("end of discharge reached after %.0fs", elapsed)
			return nil
		}
		if err := m.StateEqn(elapsed, x, u, stateNoise, dt); err != nil {
			return err
		}
		elapsed += dt
	}
}
