package udata

import (
	"math"
	"testing"
)

func TestUDataMeanExcludesInfinite(t *testing.T) {
	u := NewUData(4)
	u.Set(0, 10)
	u.Set(1, 20)
	u.Set(2, math.Inf(1))
	u.Set(3, 30)
	if got := u.Mean(); got != 20 {
		t.Fatalf("mean = %g", got)
	}
}

func TestUDataMeanAllInfinite(t *testing.T) {
	u := NewUData(2)
	u.Set(0, math.Inf(1))
	u.Set(1, math.Inf(1))
	if got := u.Mean(); !math.IsInf(got, 1) {
		t.Fatalf("mean = %g, want +Inf", got)
	}
	if got := u.Percentile(50); !math.IsInf(got, 1) {
		t.Fatalf("p50 = %g, want +Inf", got)
	}
}

func TestUDataPercentileOrdering(t *testing.T) {
	u := NewUData(100)
	for i := 0; i < 100; i++ {
		u.Set(i, float64(99-i))
	}
	p05 := u.Percentile(5)
	p50 := u.Percentile(50)
	p95 := u.Percentile(95)
	if !(p05 <= p50 && p50 <= p95) {
		t.Fatalf("percentiles not ordered: %g %g %g", p05, p50, p95)
	}
	if p50 < 45 || p50 > 55 {
		t.Fatalf("p50 = %g outside [45,55]", p50)
	}
}

func TestUDataCopy(t *testing.T) {
	u := NewUData(3)
	if err := u.Copy([]float64{1, 2, 3}); err != nil {
		t.Fatalf("copy: %v", err)
	}
	if u.Get(1) != 2 {
		t.Fatalf("sample 1 = %g", u.Get(1))
	}
	if err := u.Copy([]float64{1, 2}); err == nil {
		t.Fatalf("length mismatch accepted")
	}
}

func TestProgDataLayout(t *testing.T) {
	pd := NewProgData("EOD", []string{"SOC"}, 10, 50)
	if pd.EventName != "EOD" {
		t.Fatalf("event = %q", pd.EventName)
	}
	if pd.ToE.NPoints() != 10 {
		t.Fatalf("toe samples = %d", pd.ToE.NPoints())
	}
	traj := pd.Trajectory("SOC")
	if traj == nil || traj.Len() != 50 {
		t.Fatalf("trajectory missing or mis-sized")
	}
	if traj.At(0).NPoints() != 10 {
		t.Fatalf("trajectory step samples = %d", traj.At(0).NPoints())
	}
	if pd.Trajectory("unknown") != nil {
		t.Fatalf("unknown trajectory not nil")
	}
	names := pd.OutputNames()
	if len(names) != 1 || names[0] != "SOC" {
		t.Fatalf("names = %v", names)
	}
}
