// Package battery implements an 8-state nonlinear electrochemistry model of
// a Li-ion cell for end-of-discharge prognostics. Open-circuit potentials use
// Redlich-Kister expansions per electrode, surface overpotentials follow a
// Butler-Volmer kinetic with first-order relaxation, and each electrode
// carries a bulk/surface charge diffusion pair.
package battery

import (
	"fmt"
	"math"

	"github.com/kilianp07/prognos/core/model"
)

// State vector layout. The order is fixed here and nowhere else: estimators
// and predictors exchange raw vectors, so reordering is a wire change.
const (
	StateTb  = iota // bulk temperature, K
	StateVo         // ohmic drop voltage, V
	StateVsn        // negative electrode surface overpotential, V
	StateVsp        // positive electrode surface overpotential, V
	StateQnB        // charge in negative electrode bulk, C
	StateQnS        // charge in negative electrode surface, C
	StateQpB        // charge in positive electrode bulk, C
	StateQpS        // charge in positive electrode surface, C
	numStates
)

// Input vector layout.
const (
	InputPower = iota // applied power, W
	numInputs
)

// Output vector layout.
const (
	OutputTemp    = iota // measured surface temperature, degC
	OutputVoltage        // measured terminal voltage, V
	numOutputs
)

// Predicted output vector layout.
const (
	PredictedSOC = iota // state of charge, normalized
	numPredicted
)

// Name-to-position maps for states, inputs and outputs. Code outside this
// package indexes vectors through these or the constants above, never
// through positional literals.
var (
	StateIndex = map[string]int{
		"Tb": StateTb, "Vo": StateVo, "Vsn": StateVsn, "Vsp": StateVsp,
		"qnB": StateQnB, "qnS": StateQnS, "qpB": StateQpB, "qpS": StateQpS,
	}
	InputIndex     = map[string]int{"power": InputPower}
	OutputIndex    = map[string]int{"temperature": OutputTemp, "voltage": OutputVoltage}
	PredictedIndex = map[string]int{"SOC": PredictedSOC}
)

var predictedNames = []string{"SOC"}

// Calibration defaults.
const (
	DefaultQMobile = 7600     // mobile Li ions, C
	DefaultRo      = 0.117215 // lumped ohmic resistance, Ohm
	DefaultVEOD    = 3.2      // end-of-discharge voltage threshold, V
)

// Params holds the full physical parameter set. Everything except Ro and
// VEOD is derived deterministically from QMobile by Calibrate.
type Params struct {
	QMobile float64

	// Mole fraction bounds. xnMax+xpMin = 1 by lithium conservation.
	XnMax, XnMin float64
	XpMax, XpMin float64
	QMax         float64

	Ro float64 // ohmic drop resistance

	R float64 // universal gas constant, J/K/mol
	F float64 // Faraday constant, C/mol

	Alpha  float64 // transfer coefficient
	Sn, Sp float64 // electrode surface areas
	Kn, Kp float64 // lumped Butler-Volmer constants

	Vol          float64 // half interior volume, for concentrations
	VolSFraction float64
	VolS, VolB   float64

	// Charge bounds per electrode and sub-volume.
	QpMin, QpMax   float64
	QpSMin, QpBMin float64
	QpSMax, QpBMax float64
	QnMin, QnMax   float64
	QnSMin, QnBMin float64
	QnSMax, QnBMax float64
	QSMax, QBMax   float64

	// Time constants.
	TDiffusion float64
	To         float64
	Tsn, Tsp   float64

	// Redlich-Kister expansion, positive electrode.
	U0p float64
	Ap  [13]float64

	// Redlich-Kister expansion, negative electrode.
	U0n float64
	An  [13]float64

	VEOD float64
}

// Config carries the calibration values read from configuration. Zero values
// fall back to the built-in defaults.
type Config struct {
	QMobile float64 `json:"q_mobile"`
	Ro      float64 `json:"ro"`
	VEOD    float64 `json:"veod"`
}

// Battery is the concrete prognostics model. Safe for concurrent read-only
// use once constructed; Calibrate must not race with equation calls.
type Battery struct {
	params Params
	dt     float64
}

// New builds a battery calibrated from cfg, applying defaults for absent
// values.
func New(cfg Config) *Battery {
	b := &Battery{dt: 1}
	q := cfg.QMobile
	if q <= 0 {
		q = DefaultQMobile
	}
	b.Calibrate(q)
	if cfg.Ro > 0 {
		b.params.Ro = cfg.Ro
	}
	if cfg.VEOD > 0 {
		b.params.VEOD = cfg.VEOD
	}
	return b
}

// Params returns a copy of the current parameter set.
func (b *Battery) Params() Params { return b.params }

// Dimensions implements model.Model.
func (b *Battery) Dimensions() model.Dimensions {
	return model.Dimensions{States: numStates, Inputs: numInputs, Outputs: numOutputs, PredictedOutputs: numPredicted}
}

// DefaultStep implements model.Model.
func (b *Battery) DefaultStep() float64 { return b.dt }

// PredictedOutputNames implements model.PrognosticsModel.
func (b *Battery) PredictedOutputNames() []string { return predictedNames }

// Calibrate derives the entire dependent parameter set from the mobile
// charge qMobile. Called once at construction; an explicit recalibration is
// allowed but must not race with in-flight equation calls.
func (b *Battery) Calibrate(qMobile float64) {
	p := &b.params
	p.QMobile = qMobile

	p.XnMax = 0.6
	p.XnMin = 0
	p.XpMax = 1.0
	p.XpMin = 0.4
	p.QMax = p.QMobile / (p.XnMax - p.XnMin) // qMax = qn+qp
	p.Ro = DefaultRo

	p.R = 8.3144621
	p.F = 96487

	p.Alpha = 0.5
	p.Sn = 0.000437545
	p.Sp = 0.00030962
	p.Kn = 2120.96
	p.Kp = 248898
	p.Vol = 2e-5
	p.VolSFraction = 0.1

	// The surface/bulk split is the same at both electrodes.
	p.VolS = p.VolSFraction * p.Vol
	p.VolB = p.Vol - p.VolS

	p.QpMin = p.QMax * p.XpMin
	p.QpMax = p.QMax * p.XpMax
	p.QpSMin = p.QpMin * p.VolS / p.Vol
	p.QpBMin = p.QpMin * p.VolB / p.Vol
	p.QpSMax = p.QpMax * p.VolS / p.Vol
	p.QpBMax = p.QpMax * p.VolB / p.Vol
	p.QnMin = p.QMax * p.XnMin
	p.QnMax = p.QMax * p.XnMax
	p.QnSMin = p.QnMin * p.VolS / p.Vol
	p.QnBMin = p.QnMin * p.VolB / p.Vol
	p.QnSMax = p.QnMax * p.VolS / p.Vol
	p.QnBMax = p.QnMax * p.VolB / p.Vol
	p.QSMax = p.QMax * p.VolS / p.Vol
	p.QBMax = p.QMax * p.VolB / p.Vol

	p.TDiffusion = 7e6
	p.To = 6.08671
	p.Tsn = 1.00138e3
	p.Tsp = 46.4311

	p.U0p = 4.03
	p.Ap = [13]float64{
		-31593.7, 0.106747, 24606.4, -78561.9, 13317.9, 307387, 84916.1,
		-1.07469e6, 2285.04, 990894, 283920, -161513, -469218,
	}

	p.U0n = 0.01
	p.An = [13]float64{86.19} // higher-order negative electrode terms are zero

	p.VEOD = DefaultVEOD
}

// redlichKister returns the k-th expansion term at mole fraction x, without
// the 1/F factor.
func redlichKister(a float64, k int, x float64) float64 {
	if k == 0 {
		return a * (2*x - 1)
	}
	kf := float64(k)
	return a * (-2*kf*x*(1-x)*math.Pow(2*x-1, kf-1) + math.Pow(2*x-1, kf+1))
}

// equilibriumPotential computes the open-circuit potential of one electrode
// at surface mole fraction x and bulk temperature tb in Kelvin. x must lie
// strictly inside (0,1): the entropy term is singular at the boundaries.
func (b *Battery) equilibriumPotential(u0 float64, a *[13]float64, x, tb float64) (float64, error) {
	p := &b.params
	if x <= 0 || x >= 1 {
		return 0, fmt.Errorf("battery: mole fraction %g: %w", x, model.ErrOutOfDomain)
	}
	v := u0
	for k := range a {
		v += redlichKister(a[k], k, x) / p.F
	}
	return v + p.R*tb*math.Log((1-x)/x)/p.F, nil
}

// terminalVoltage computes the terminal voltage from the current state:
// electrode potential difference minus the ohmic and relaxation drops.
func (b *Battery) terminalVoltage(x []float64) (float64, error) {
	p := &b.params
	xnS := x[StateQnS] / p.QSMax
	xpS := x[StateQpS] / p.QSMax
	ven, err := b.equilibriumPotential(p.U0n, &p.An, xnS, x[StateTb])
	if err != nil {
		return 0, err
	}
	vep, err := b.equilibriumPotential(p.U0p, &p.Ap, xpS, x[StateTb])
	if err != nil {
		return 0, err
	}
	return vep - ven - x[StateVo] - x[StateVsn] - x[StateVsp], nil
}

// StateEqn implements model.Model.
//
// The discharge current is applied power divided by the voltage assembled
// from the previous step's drop terms. This explicit resolution of the
// current/voltage algebraic loop is part of the reference numerics; do not
// replace it with an implicit solve.
func (b *Battery) StateEqn(t float64, x, u, n []float64, dt float64) error {
	if err := model.CheckLen("state", x, numStates); err != nil {
		return err
	}
	if err := model.CheckLen("input", u, numInputs); err != nil {
		return err
	}
	if err := model.CheckLen("process noise", n, numStates); err != nil {
		return err
	}
	p := &b.params

	tb := x[StateTb]
	vo := x[StateVo]
	vsn := x[StateVsn]
	vsp := x[StateVsp]
	qnB := x[StateQnB]
	qnS := x[StateQnS]
	qpB := x[StateQpB]
	qpS := x[StateQpS]
	pw := u[InputPower]

	// Two normalized compositions are computed for the negative electrode.
	// xSn feeds only the exchange current and xnS everything else; the
	// formulas are identical but both are kept to match the reference
	// numerics. xSp intentionally normalizes by the bulk charge bound.
	xnS := qnS / p.QSMax
	xSn := qnS / p.QSMax
	xpS := qpS / p.QSMax
	xSp := qpS / p.QBMax
	for _, frac := range [...]float64{xSn, xSp} {
		if frac <= 0 || frac >= 1 {
			return fmt.Errorf("battery: exchange composition %g: %w", frac, model.ErrOutOfDomain)
		}
	}

	ven, err := b.equilibriumPotential(p.U0n, &p.An, xnS, tb)
	if err != nil {
		return err
	}
	vep, err := b.equilibriumPotential(p.U0p, &p.Ap, xpS, tb)
	if err != nil {
		return err
	}
	v := vep - ven - vo - vsn - vsp
	i := pw / v

	cnBulk := qnB / p.VolB
	cnSurface := qnS / p.VolS
	cpBulk := qpB / p.VolB
	cpSurface := qpS / p.VolS
	diffusionN := (cnBulk - cnSurface) / p.TDiffusion
	diffusionP := (cpBulk - cpSurface) / p.TDiffusion

	jn := i / p.Sn
	jp := i / p.Sp
	jn0 := p.Kn * math.Pow(xSn, p.Alpha) * math.Pow(1-xSn, p.Alpha)
	jp0 := p.Kp * math.Pow(xSp, p.Alpha) * math.Pow(1-xSp, p.Alpha)

	voNominal := p.Ro * i
	vsnNominal := p.R * tb * math.Asinh(jn/(2*jn0)) / (p.F * p.Alpha)
	vspNominal := p.R * tb * math.Asinh(jp/(2*jp0)) / (p.F * p.Alpha)

	tbDot := 0.0
	voDot := (voNominal - vo) / p.To
	vsnDot := (vsnNominal - vsn) / p.Tsn
	vspDot := (vspNominal - vsp) / p.Tsp
	qnBDot := -diffusionN
	qnSDot := diffusionN - i
	qpBDot := -diffusionP
	qpSDot := diffusionP + i

	x[StateTb] = tb + (tbDot+n[StateTb])*dt
	x[StateVo] = vo + (voDot+n[StateVo])*dt
	x[StateVsn] = vsn + (vsnDot+n[StateVsn])*dt
	x[StateVsp] = vsp + (vspDot+n[StateVsp])*dt
	x[StateQnB] = qnB + (qnBDot+n[StateQnB])*dt
	x[StateQnS] = qnS + (qnSDot+n[StateQnS])*dt
	x[StateQpB] = qpB + (qpBDot+n[StateQpB])*dt
	x[StateQpS] = qpS + (qpSDot+n[StateQpS])*dt
	return nil
}

// OutputEqn implements model.Model. Outputs are the cell surface temperature
// in degC and the terminal voltage.
func (b *Battery) OutputEqn(t float64, x, u, n, z []float64) error {
	if err := model.CheckLen("state", x, numStates); err != nil {
		return err
	}
	if err := model.CheckLen("output noise", n, numOutputs); err != nil {
		return err
	}
	if err := model.CheckLen("output", z, numOutputs); err != nil {
		return err
	}
	v, err := b.terminalVoltage(x)
	if err != nil {
		return err
	}
	z[OutputTemp] = x[StateTb] - 273.15 + n[OutputTemp]
	z[OutputVoltage] = v + n[OutputVoltage]
	return nil
}

// ThresholdEqn implements model.Model. End of discharge is declared once the
// noise-free terminal voltage reaches the configured threshold.
func (b *Battery) ThresholdEqn(t float64, x, u []float64) (bool, error) {
	z := make([]float64, numOutputs)
	zeroNoise := make([]float64, numOutputs)
	if err := b.OutputEqn(t, x, u, zeroNoise, z); err != nil {
		return false, err
	}
	return z[OutputVoltage] <= b.params.VEOD, nil
}

// InputEqn implements model.Model. The loading profile is a flat list of
// (magnitude, duration) pairs; the first segment whose cumulative end covers
// t is applied. Beyond the last segment the final magnitude, the
// second-to-last element, stays applied.
func (b *Battery) InputEqn(t float64, loading []float64, u []float64) error {
	if len(loading) < 2 || len(loading)%2 != 0 {
		return fmt.Errorf("battery: loading profile needs (magnitude, duration) pairs, got %d values: %w",
			len(loading), model.ErrInvalidLoad)
	}
	if err := model.CheckLen("input", u, numInputs); err != nil {
		return err
	}
	elapsed := 0.0
	for i := 0; i < len(loading); i += 2 {
		elapsed += loading[i+1]
		if t <= elapsed {
			u[InputPower] = loading[i]
			return nil
		}
	}
	u[InputPower] = loading[len(loading)-2]
	return nil
}

// PredictedOutputEqn implements model.PrognosticsModel. State of charge is
// the only derived output.
func (b *Battery) PredictedOutputEqn(t float64, x, u, z []float64) error {
	if err := model.CheckLen("state", x, numStates); err != nil {
		return err
	}
	if err := model.CheckLen("predicted output", z, numPredicted); err != nil {
		return err
	}
	z[PredictedSOC] = (x[StateQnS] + x[StateQnB]) / b.params.QnMax
	return nil
}

// Initialize implements model.Model. Given an observed (temperature,
// voltage) output and applied power, it reconstructs a consistent state by
// sweeping the positive electrode mole fraction from fully charged (0.4) to
// fully discharged (1.0). Predicted voltage decreases monotonically along
// the sweep, so the first sample at or below the observed voltage is the
// composition wanted; without a crossing the last evaluated sample is kept.
// Relaxation voltages are set to their zero-transient equilibrium and the
// bulk charges assume no concentration gradient.
func (b *Battery) Initialize(x, u, z []float64) error {
	if err := model.CheckLen("state", x, numStates); err != nil {
		return err
	}
	if err := model.CheckLen("input", u, numInputs); err != nil {
		return err
	}
	if err := model.CheckLen("output", z, numOutputs); err != nil {
		return err
	}
	p := &b.params

	tb := z[OutputTemp] + 273.15
	voltage := z[OutputVoltage]

	// Voltage drop from the applied current, assuming no concentration
	// gradient yet.
	current := u[InputPower] / voltage
	vo := current * p.Ro

	xpo := p.XpMin
	xno := p.XnMax
	for xi := p.XpMin; xi <= p.XpMax; xi += 1e-4 {
		vep, err := b.equilibriumPotential(p.U0p, &p.Ap, xi, tb)
		if err != nil {
			break // boundary of the sweep, keep the last valid sample
		}
		ven, err := b.equilibriumPotential(p.U0n, &p.An, 1-xi, tb)
		if err != nil {
			break
		}
		xpo, xno = xi, 1-xi
		if vep-ven-vo <= voltage {
			break
		}
	}

	qpS0 := p.QMax * xpo * p.VolS / p.Vol
	qnS0 := p.QMax * xno * p.VolS / p.Vol
	qpB0 := qpS0 * p.VolB / p.VolS
	qnB0 := qnS0 * p.VolB / p.VolS

	x[StateTb] = tb
	x[StateVo] = vo
	x[StateVsn] = 0
	x[StateVsp] = 0
	x[StateQnB] = qnB0
	x[StateQnS] = qnS0
	x[StateQpB] = qpB0
	x[StateQpS] = qpS0
	return nil
}
