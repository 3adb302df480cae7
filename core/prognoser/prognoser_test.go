package prognoser

import (
	"errors"
	"testing"

	"github.com/kilianp07/prognos/config"
	"github.com/kilianp07/prognos/core/factory"
	"github.com/kilianp07/prognos/core/model"
	"github.com/kilianp07/prognos/core/observer"
	"github.com/kilianp07/prognos/core/predictor"
	"github.com/kilianp07/prognos/core/telemetry"
	"github.com/kilianp07/prognos/core/udata"
	"github.com/kilianp07/prognos/infra/logger"
)

// fakeModel is a one-state pass-through model.
type fakeModel struct {
	initCalls int
}

func (m *fakeModel) StateEqn(t float64, x, u, n []float64, dt float64) error { return nil }
func (m *fakeModel) OutputEqn(t float64, x, u, n, z []float64) error {
	z[0] = x[0]
	return nil
}
func (m *fakeModel) ThresholdEqn(t float64, x, u []float64) (bool, error) { return false, nil }
func (m *fakeModel) InputEqn(t float64, loading, u []float64) error { return nil }
func (m *fakeModel) Initialize(x, u, z []float64) error {
	m.initCalls++
	x[0] = z[0]
	return nil
}
func (m *fakeModel) Dimensions() model.Dimensions {
	return model.Dimensions{States: 1, Inputs: 1, Outputs: 1, PredictedOutputs: 1}
}
func (m *fakeModel) DefaultStep() float64 { return 1 }
func (m *fakeModel) PredictedOutputEqn(t float64, x, u, z []float64) error {
	return nil
}
func (m *fakeModel) PredictedOutputNames() []string { return []string{"SOC"} }

type fakeObserver struct {
	initCalls int
	stepCalls int
	lastT     float64
}

func (o *fakeObserver) Initialize(t float64, x, u []float64) error { o.initCalls++; return nil }
func (o *fakeObserver) Step(t float64, u, z []float64) error {
	o.stepCalls++
	o.lastT = t
	return nil
}
func (o *fakeObserver) StateEstimate() []udata.UData { return []udata.UData{udata.NewUData(2)} }

type fakePredictor struct {
	calls int
	lastT float64
}

func (p *fakePredictor) Predict(t float64, state []udata.UData, result *udata.ProgData) error {
	p.calls++
	p.lastT = t
	return nil
}

func testConfig() *config.Config {
	return &config.Config{Prognoser: config.PrognoserConfig{
		Model:            factory.ModuleConfig{Type: "fake"},
		Observer:         factory.ModuleConfig{Type: "fake"},
		Predictor:        factory.ModuleConfig{Type: "fake"},
		Event:            "EOD",
		NumSamples:       2,
		Horizon:          4,
		PredictedOutputs: []string{"SOC"},
		Inputs:           []string{"power"},
		Outputs:          []string{"voltage"},
	}}
}

func testRegistries(m *fakeModel, o *fakeObserver, p *fakePredictor) Registries {
	regs := Registries{
		Models:     factory.NewRegistry[ModelFactory](),
		Observers:  factory.NewRegistry[ObserverFactory](),
		Predictors: factory.NewRegistry[PredictorFactory](),
	}
	_ = regs.Models.Register("fake", func(map[string]any) (model.PrognosticsModel, error) { return m, nil })
	_ = regs.Observers.Register("fake", func(model.Model, map[string]any) (observer.Observer, error) { return o, nil })
	_ = regs.Predictors.Register("fake", func(model.PrognosticsModel, map[string]any) (predictor.Predictor, error) { return p, nil })
	return regs
}

func TestStepLifecycle(t *testing.T) {
	m := &fakeModel{}
	o := &fakeObserver{}
	pr := &fakePredictor{}
	store := telemetry.NewStore()
	prog, err := New(testConfig(), testRegistries(m, o, pr), store, logger.NopLogger{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if prog.Initialized() {
		t.Fatalf("initialized before first step")
	}

	store.Set("power", telemetry.Sample{Value: 8, TimeMS: 5000})
	store.Set("voltage", telemetry.Sample{Value: 4.0, TimeMS: 5000})

	// first step seeds the observer and anchors the clock, no prediction
	updated, err := prog.Step()
	if err != nil {
		t.Fatalf("first step: %v", err)
	}
	if updated {
		t.Fatalf("first step reported a prediction")
	}
	if !prog.Initialized() || m.initCalls != 1 || o.initCalls != 1 {
		t.Fatalf("seeding: initialized=%v model=%d observer=%d", prog.Initialized(), m.initCalls, o.initCalls)
	}
	if o.stepCalls != 0 || pr.calls != 0 {
		t.Fatalf("first step ran update or predict")
	}

	// unchanged timestamp is a silent no-op
	updated, err = prog.Step()
	if err != nil || updated {
		t.Fatalf("stale step: updated=%v err=%v", updated, err)
	}
	if o.stepCalls != 0 || pr.calls != 0 {
		t.Fatalf("stale step invoked observer or predictor")
	}

	// advanced timestamp runs exactly one update and one predict
	store.Set("voltage", telemetry.Sample{Value: 3.9, TimeMS: 7500})
	updated, err = prog.Step()
	if err != nil {
		t.Fatalf("advanced step: %v", err)
	}
	if !updated {
		t.Fatalf("advanced step produced no prediction")
	}
	if o.stepCalls != 1 || pr.calls != 1 {
		t.Fatalf("advanced step: observer=%d predictor=%d", o.stepCalls, pr.calls)
	}
	// the anchor is the first sample's timestamp, so 7500ms maps to 2.5s
	if o.lastT != 2.5 || pr.lastT != 2.5 {
		t.Fatalf("relative time: observer=%g predictor=%g", o.lastT, pr.lastT)
	}
	if prog.LastTime() != 2.5 {
		t.Fatalf("last time = %g", prog.LastTime())
	}
}

func TestStepMissingSample(t *testing.T) {
	m := &fakeModel{}
	o := &fakeObserver{}
	pr := &fakePredictor{}
	store := telemetry.NewStore()
	prog, err := New(testConfig(), testRegistries(m, o, pr), store, logger.NopLogger{})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := prog.Step(); !errors.Is(err, telemetry.ErrNoSample) {
		t.Fatalf("err = %v, want ErrNoSample", err)
	}

	// the output arrived but the input did not
	store.Set("voltage", telemetry.Sample{Value: 4.0, TimeMS: 1000})
	if _, err := prog.Step(); !errors.Is(err, telemetry.ErrNoSample) {
		t.Fatalf("err = %v, want ErrNoSample", err)
	}
	if prog.Initialized() {
		t.Fatalf("initialized despite missing input sample")
	}
}

func TestNewValidatesSignalCounts(t *testing.T) {
	m := &fakeModel{}
	o := &fakeObserver{}
	pr := &fakePredictor{}
	cfg := testConfig()
	cfg.Prognoser.Inputs = []string{"power", "extra"}
	_, err := New(cfg, testRegistries(m, o, pr), telemetry.NewStore(), logger.NopLogger{})
	if !errors.Is(err, config.ErrInvalidValue) {
		t.Fatalf("err = %v, want ErrInvalidValue", err)
	}
}

func TestNewUnknownType(t *testing.T) {
	cfg := testConfig()
	cfg.Prognoser.Model.Type = "nope"
	_, err := New(cfg, testRegistries(&fakeModel{}, &fakeObserver{}, &fakePredictor{}), telemetry.NewStore(), logger.NopLogger{})
	if err == nil {
		t.Fatalf("unknown model type accepted")
	}
}
