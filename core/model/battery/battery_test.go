package battery

import (
	"errors"
	"math"
	"testing"

	"github.com/kilianp07/prognos/core/model"
)

func TestCalibrateDerivedParams(t *testing.T) {
	b := New(Config{})
	p := b.Params()

	if p.QMobile != DefaultQMobile {
		t.Fatalf("qMobile = %g", p.QMobile)
	}
	if got, want := p.QMax, DefaultQMobile/0.6; math.Abs(got-want) > 1e-9 {
		t.Fatalf("qMax = %g want %g", got, want)
	}
	// all mobile lithium fits in the negative electrode at full charge
	if math.Abs(p.QnMax-p.QMobile) > 1e-9 {
		t.Fatalf("qnMax = %g want %g", p.QnMax, p.QMobile)
	}
	if p.QnMin != 0 {
		t.Fatalf("qnMin = %g", p.QnMin)
	}
	if p.QnMin >= p.QnMax || p.QpMin >= p.QpMax {
		t.Fatalf("charge bounds not ordered")
	}
	if math.Abs(p.VolS+p.VolB-p.Vol) > 1e-18 {
		t.Fatalf("sub-volumes do not sum: %g + %g != %g", p.VolS, p.VolB, p.Vol)
	}
	for _, tc := range []float64{p.TDiffusion, p.To, p.Tsn, p.Tsp} {
		if tc <= 0 {
			t.Fatalf("non-positive time constant %g", tc)
		}
	}
}

func TestNewAppliesOverrides(t *testing.T) {
	b := New(Config{QMobile: 7000, Ro: 0.2, VEOD: 3.0})
	p := b.Params()
	if p.QMobile != 7000 || p.Ro != 0.2 || p.VEOD != 3.0 {
		t.Fatalf("overrides not applied: %+v", p)
	}

	b = New(Config{})
	p = b.Params()
	if p.Ro != DefaultRo || p.VEOD != DefaultVEOD {
		t.Fatalf("defaults not applied: Ro=%g VEOD=%g", p.Ro, p.VEOD)
	}
}

func TestInputEqnSegments(t *testing.T) {
	b := New(Config{})
	loading := []float64{8, 10, 4, 20}
	u := make([]float64, 1)

	cases := []struct {
		t    float64
		want float64
	}{
		{0, 8},
		{5, 8},
		{10, 8},
		{15, 4},
		{30, 4},
		// beyond the profile the last magnitude stays applied
		{1000, 4},
	}
	for _, c := range cases {
		if err := b.InputEqn(c.t, loading, u); err != nil {
			t.Fatalf("t=%g: %v", c.t, err)
		}
		if u[InputPower] != c.want {
			t.Fatalf("t=%g: power = %g want %g", c.t, u[InputPower], c.want)
		}
	}
}

func TestInputEqnRejectsMalformedProfiles(t *testing.T) {
	b := New(Config{})
	u := make([]float64, 1)
	for _, loading := range [][]float64{nil, {}, {8}, {8, 10, 4}} {
		err := b.InputEqn(0, loading, u)
		if !errors.Is(err, model.ErrInvalidLoad) {
			t.Fatalf("loading %v: err = %v, want ErrInvalidLoad", loading, err)
		}
	}
}

func TestInitializeRoundTrip(t *testing.T) {
	b := New(Config{})
	x := make([]float64, numStates)
	u := []float64{1}
	z := []float64{20, 3.8}
	if err := b.Initialize(x, u, z); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if x[StateVsn] != 0 || x[StateVsp] != 0 {
		t.Fatalf("surface overpotentials not at equilibrium: %g %g", x[StateVsn], x[StateVsp])
	}
	if got, want := x[StateTb], 20+273.15; math.Abs(got-want) > 1e-9 {
		t.Fatalf("Tb = %g want %g", got, want)
	}

	// the reconstructed state must reproduce the observed output
	got := make([]float64, numOutputs)
	noNoise := make([]float64, numOutputs)
	if err := b.OutputEqn(0, x, u, noNoise, got); err != nil {
		t.Fatalf("output: %v", err)
	}
	if math.Abs(got[OutputVoltage]-z[OutputVoltage]) > 0.05 {
		t.Fatalf("voltage round-trip: got %g want %g", got[OutputVoltage], z[OutputVoltage])
	}
	if math.Abs(got[OutputTemp]-z[OutputTemp]) > 1e-9 {
		t.Fatalf("temperature round-trip: got %g want %g", got[OutputTemp], z[OutputTemp])
	}
}

func TestInitializeOrdersByVoltage(t *testing.T) {
	b := New(Config{})
	u := []float64{1}
	socAt := func(voltage float64) float64 {
		x := make([]float64, numStates)
		if err := b.Initialize(x, u, []float64{20, voltage}); err != nil {
			t.Fatalf("initialize at %gV: %v", voltage, err)
		}
		z := make([]float64, numPredicted)
		if err := b.PredictedOutputEqn(0, x, u, z); err != nil {
			t.Fatalf("soc at %gV: %v", voltage, err)
		}
		return z[PredictedSOC]
	}
	high := socAt(4.0)
	low := socAt(3.5)
	if high <= low {
		t.Fatalf("soc not ordered by voltage: soc(4.0)=%g soc(3.5)=%g", high, low)
	}
	if low <= 0 || high >= 1.01 {
		t.Fatalf("soc outside expected range: %g %g", low, high)
	}
}

func TestStateEqnConservesCharge(t *testing.T) {
	b := New(Config{})
	x := make([]float64, numStates)
	u := []float64{8}
	if err := b.Initialize(x, u, []float64{20, 3.8}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	total := x[StateQnB] + x[StateQnS] + x[StateQpB] + x[StateQpS]

	noise := make([]float64, numStates)
	for i := 0; i < 10; i++ {
		if err := b.StateEqn(float64(i), x, u, noise, 1); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	after := x[StateQnB] + x[StateQnS] + x[StateQpB] + x[StateQpS]
	if math.Abs(after-total) > 1e-6 {
		t.Fatalf("total charge drifted: %g -> %g", total, after)
	}
}

func TestThresholdFiresUnderDischarge(t *testing.T) {
	b := New(Config{})
	x := make([]float64, numStates)
	u := []float64{10}
	if err := b.Initialize(x, u, []float64{20, 3.3}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	reached, err := b.ThresholdEqn(0, x, u)
	if err != nil {
		t.Fatalf("threshold: %v", err)
	}
	if reached {
		t.Fatalf("threshold fired at 3.3V")
	}

	noise := make([]float64, numStates)
	for i := 0; i < 5000; i++ {
		if err := b.StateEqn(float64(i), x, u, noise, 1); err != nil {
			t.Fatalf("step %d before threshold: %v", i, err)
		}
		reached, err = b.ThresholdEqn(float64(i+1), x, u)
		if err != nil {
			t.Fatalf("threshold at step %d: %v", i, err)
		}
		if reached {
			return
		}
	}
	t.Fatalf("threshold never fired under 10W discharge")
}

func TestStateEqnDomainErrors(t *testing.T) {
	b := New(Config{})
	x := make([]float64, numStates)
	u := []float64{8}
	if err := b.Initialize(x, u, []float64{20, 3.8}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	noise := make([]float64, numStates)

	drained := append([]float64(nil), x...)
	drained[StateQnS] = 0
	err := b.StateEqn(0, drained, u, noise, 1)
	if !errors.Is(err, model.ErrOutOfDomain) {
		t.Fatalf("drained surface: err = %v, want ErrOutOfDomain", err)
	}

	if err := b.StateEqn(0, x[:3], u, noise, 1); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("short state: err = %v, want ErrDimension", err)
	}
	if err := b.StateEqn(0, x, nil, noise, 1); !errors.Is(err, model.ErrDimension) {
		t.Fatalf("missing input: err = %v, want ErrDimension", err)
	}
}

func TestDimensions(t *testing.T) {
	b := New(Config{})
	d := b.Dimensions()
	if d.States != 8 || d.Inputs != 1 || d.Outputs != 2 || d.PredictedOutputs != 1 {
		t.Fatalf("dimensions = %+v", d)
	}
	names := b.PredictedOutputNames()
	if len(names) != 1 || names[0] != "SOC" {
		t.Fatalf("predicted names = %v", names)
	}
}
