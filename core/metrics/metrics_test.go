package metrics

import (
	"math"
	"testing"

	"github.com/kilianp07/prognos/core/udata"
)

func TestSummarize(t *testing.T) {
	pd := udata.NewProgData("EOD", []string{"SOC"}, 4, 2)
	for i, v := range []float64{100, 110, 120, 130} {
		pd.ToE.Set(i, v)
	}
	for i := 0; i < 4; i++ {
		pd.Trajectory("SOC").At(0).Set(i, 0.8)
	}

	ev := Summarize(pd, 10)
	if ev.Event != "EOD" || ev.Time != 10 {
		t.Fatalf("header: %+v", ev)
	}
	if ev.ToEMean != 115 {
		t.Fatalf("toe mean = %g", ev.ToEMean)
	}
	if ev.ToEP05 > ev.ToEP50 || ev.ToEP50 > ev.ToEP95 {
		t.Fatalf("percentiles not ordered: %+v", ev)
	}
	if ev.SOC != 0.8 {
		t.Fatalf("soc = %g", ev.SOC)
	}
	if ev.Generated.IsZero() {
		t.Fatalf("generated timestamp not set")
	}
}

func TestSummarizeWithoutSOC(t *testing.T) {
	pd := udata.NewProgData("EOD", []string{"capacity"}, 2, 1)
	ev := Summarize(pd, 0)
	if !math.IsNaN(ev.SOC) {
		t.Fatalf("soc = %g, want NaN", ev.SOC)
	}
}
