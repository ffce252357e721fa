package monitor

import (
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/rewired-gh/postureguard/internal/models"
)

func TestFilterFixedPoint(t *testing.T) {
	for _, x := range []float64{0, 1, -1, 0.1, -15.3, 1e9, -1e-9, 123.456} {
		if got := Filter(x, x); got != x {
			t.Errorf("Filter(%v, %v) = %v", x, x, got)
		}
	}
}

func TestFilterStaysBetweenInputs(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for i := 0; i < 10000; i++ {
		cur := rng.Float64()*200 - 100
		prev := rng.Float64()*200 - 100
		got := Filter(cur, prev)
		if got < math.Min(cur, prev) || got > math.Max(cur, prev) {
			t.Fatalf("Filter(%v, %v) = %v escapes its inputs", cur, prev, got)
		}
	}
}

func TestLowPass(t *testing.T) {
	if got := LowPass(10, 0, 0.2); math.Abs(got-2) > 1e-12 {
		t.Errorf("LowPass(10, 0, 0.2) = %v, want 2", got)
	}
	if got := LowPass(10, 0, 1); got != 10 {
		t.Errorf("LowPass with alpha 1 = %v, want 10", got)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
		ok     bool
	}{
		{name: "empty", values: nil, ok: false},
		{name: "single", values: []float64{7}, want: 7, ok: true},
		{name: "odd", values: []float64{3, 1, 2}, want: 2, ok: true},
		{name: "even", values: []float64{1, 2, 3, 4}, want: 2.5, ok: true},
		{name: "even unsorted", values: []float64{4, 1, 3, 2}, want: 2.5, ok: true},
		{name: "negatives", values: []float64{-2, -1, 0, 1, 2}, want: 0, ok: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Median(tt.values)
			if ok != tt.ok || got != tt.want {
				t.Errorf("Median(%v) = %v, %v; want %v, %v", tt.values, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMedianOrderInvariant(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	values := make([]float64, 31)
	for i := range values {
		values[i] = rng.Float64()*60 - 30
	}
	orig := append([]float64(nil), values...)
	want, _ := Median(values)
	if diff := cmp.Diff(orig, values); diff != "" {
		t.Fatalf("Median modified its input (-want +got):\n%s", diff)
	}

	for i := 0; i < 20; i++ {
		rng.Shuffle(len(values), func(a, b int) { values[a], values[b] = values[b], values[a] })
		if got, _ := Median(values); got != want {
			t.Fatalf("Median after shuffle = %v, want %v", got, want)
		}
	}
}

func TestComputeBaseline(t *testing.T) {
	b := ComputeBaseline([]float64{-2, -1, 0, 1, 2}, []float64{2, 1, 0, -1, -2}, 9, 9)
	if b != (models.Baseline{}) {
		t.Errorf("ComputeBaseline = %+v, want zero baseline", b)
	}

	b = ComputeBaseline(nil, nil, -4, 1.5)
	if b != (models.Baseline{ReferencePitch: -4, ReferenceRoll: 1.5}) {
		t.Errorf("empty history should fall back to current reading, got %+v", b)
	}
}

func TestHistoryEvictsOldest(t *testing.T) {
	h := NewHistory(100)
	var want []float64
	for i := 0; i < 150; i++ {
		h.Append(float64(i))
		if i >= 50 {
			want = append(want, float64(i))
		}
	}
	if h.Len() != 100 {
		t.Fatalf("Len() = %d, want 100", h.Len())
	}
	if diff := cmp.Diff(want, h.Values()); diff != "" {
		t.Errorf("Values() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{147, 148, 149}, h.Tail(3)); diff != "" {
		t.Errorf("Tail(3) mismatch (-want +got):\n%s", diff)
	}
	if got := h.Tail(1000); len(got) != 100 {
		t.Errorf("Tail beyond length returned %d values", len(got))
	}

	h.Reset()
	if h.Len() != 0 || len(h.Values()) != 0 {
		t.Error("Reset should empty the buffer")
	}
}

func TestHistoryValuesIsACopy(t *testing.T) {
	h := NewHistory(3)
	h.Append(1)
	v := h.Values()
	v[0] = 99
	if h.Values()[0] != 1 {
		t.Error("mutating Values() changed the buffer")
	}
}

var (
	zeroBaseline      = models.Baseline{}
	defaultThresholds = models.Thresholds{PoorPosture: -15, Warning: 1, Roll: 1}
)

func TestIsBadPosture(t *testing.T) {
	tests := []struct {
		name  string
		pitch float64
		roll  float64
		b     models.Baseline
		t     models.Thresholds
		want  bool
	}{
		{name: "neutral", want: false},
		{name: "forward droop", pitch: -16, want: true},
		{name: "at poor bound", pitch: -15, want: false},
		{name: "leaning back", pitch: 1.5, want: true},
		{name: "lateral tilt", roll: -1.1, want: true},
		{name: "relative to baseline", pitch: -20, roll: 5, b: models.Baseline{ReferencePitch: -10, ReferenceRoll: 5}, want: false},
		{name: "inverted pitch bounds", pitch: -40, t: models.Thresholds{PoorPosture: 5, Warning: 1, Roll: 1}, want: false},
		{name: "negative roll bound", roll: 40, t: models.Thresholds{PoorPosture: -15, Warning: 1, Roll: -1}, want: false},
		{name: "NaN bounds", pitch: -40, roll: 40, t: models.Thresholds{PoorPosture: math.NaN(), Warning: 1, Roll: math.NaN()}, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := tt.t
			if th == (models.Thresholds{}) {
				th = defaultThresholds
			}
			if got := IsBadPosture(tt.pitch, tt.roll, tt.b, th); got != tt.want {
				t.Errorf("IsBadPosture(%v, %v) = %v, want %v", tt.pitch, tt.roll, got, tt.want)
			}
		})
	}
}

func TestClassifierEscalationScenario(t *testing.T) {
	c := NewClassifier(2 * time.Second)
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	pitches := []float64{0, 0, -20, -20, -20}
	wantKinds := []models.PostureKind{models.PostureGood, models.PostureGood, models.PostureWarning, models.PostureWarning, models.PostureAlert}
	wantEscalated := []bool{false, false, false, false, true}

	for i, p := range pitches {
		now := t0.Add(time.Duration(i) * time.Second)
		state, escalated := c.Classify(p, 0, zeroBaseline, defaultThresholds, t0, now)
		if state.Kind != wantKinds[i] {
			t.Errorf("tick %d: kind = %v, want %v", i, state.Kind, wantKinds[i])
		}
		if escalated != wantEscalated[i] {
			t.Errorf("tick %d: escalated = %v, want %v", i, escalated, wantEscalated[i])
		}
	}
	if got := c.Previous(); got != models.Alert(-20, 3*time.Second) {
		t.Errorf("final state = %v", got)
	}
}

func TestClassifierGoodDurationIsSessionTime(t *testing.T) {
	c := NewClassifier(2 * time.Second)
	start := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	state, _ := c.Classify(0, 0, zeroBaseline, defaultThresholds, start, start.Add(42*time.Second))
	if state != models.Good(42*time.Second) {
		t.Errorf("state = %v, want good(42s)", state)
	}
}

func TestClassifierColdStartIsWarning(t *testing.T) {
	c := NewClassifier(2 * time.Second)
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	state, escalated := c.Classify(-30, 0, zeroBaseline, defaultThresholds, t0.Add(-time.Hour), t0)
	if state.Kind != models.PostureWarning || escalated {
		t.Fatalf("first bad sample = %v (escalated %v), want warning", state, escalated)
	}
	if state.Duration != 0 {
		t.Errorf("cold-start elapsed = %v, want 0", state.Duration)
	}

	kinds := []models.PostureKind{models.PostureWarning, models.PostureWarning, models.PostureAlert}
	for i, want := range kinds {
		state, _ = c.Classify(-30, 0, zeroBaseline, defaultThresholds, t0, t0.Add(time.Duration(i+1)*time.Second))
		if state.Kind != want {
			t.Errorf("tick %d: kind = %v, want %v", i+1, state.Kind, want)
		}
	}
}

func TestClassifierDeescalatesAndEmitsOncePerAlert(t *testing.T) {
	c := NewClassifier(2 * time.Second)
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	at := func(s int) time.Time { return t0.Add(time.Duration(s) * time.Second) }

	c.Classify(0, 0, zeroBaseline, defaultThresholds, t0, at(0))
	var escalations int
	for s := 1; s <= 6; s++ {
		if _, esc := c.Classify(0, 5, zeroBaseline, defaultThresholds, t0, at(s)); esc {
			escalations++
		}
	}
	if escalations != 1 {
		t.Errorf("consecutive alerts escalated %d times, want 1", escalations)
	}

	state, _ := c.Classify(0, 0, zeroBaseline, defaultThresholds, t0, at(7))
	if !state.IsGood() {
		t.Fatalf("clean sample should return to good, got %v", state)
	}
	state, _ = c.Classify(0, 5, zeroBaseline, defaultThresholds, t0, at(8))
	if state.Kind != models.PostureWarning {
		t.Errorf("new bad stretch should start as warning, got %v", state)
	}

	c.Reset()
	if c.Previous() != (models.PostureState{}) {
		t.Error("Reset should clear the previous state")
	}
}

func TestAccountantTick(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := NewAccountant(100, t0)

	if got := a.PoorPosturePercentage(); got != 0 {
		t.Errorf("empty session percentage = %d, want 0", got)
	}

	if !a.Tick(-20, 0, zeroBaseline, defaultThresholds, t0.Add(time.Second)) {
		t.Fatal("expected bad tick")
	}
	if a.TotalSessionTime() != time.Second || a.PoorPostureDuration() != time.Second {
		t.Fatalf("total=%v poor=%v, want 1s each", a.TotalSessionTime(), a.PoorPostureDuration())
	}
	if got := a.PoorPosturePercentage(); got != 100 {
		t.Errorf("all-bad percentage = %d, want 100", got)
	}
	if start, ok := a.PoorPostureStart(); !ok || !start.Equal(t0.Add(time.Second)) {
		t.Errorf("PoorPostureStart = %v, %v", start, ok)
	}

	a.Tick(0, 0, zeroBaseline, defaultThresholds, t0.Add(2*time.Second))
	if got := a.PoorPosturePercentage(); got != 50 {
		t.Errorf("percentage = %d, want 50", got)
	}
	if _, ok := a.PoorPostureStart(); ok {
		t.Error("good tick should clear the poor posture start")
	}

	// A tick from the past counts nothing and does not move the anchor back.
	a.Tick(0, 0, zeroBaseline, defaultThresholds, t0)
	if a.TotalSessionTime() != 2*time.Second {
		t.Errorf("total after stale tick = %v, want 2s", a.TotalSessionTime())
	}
	if diff := cmp.Diff([]float64{-20, 0, 0}, a.PitchHistory().Values()); diff != "" {
		t.Errorf("pitch history mismatch (-want +got):\n%s", diff)
	}
}

func TestAccountantReanchorAndReset(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	a := NewAccountant(10, t0)
	a.Tick(0, 0, zeroBaseline, defaultThresholds, t0.Add(time.Second))

	a.Reanchor(t0.Add(time.Minute))
	a.Tick(0, 0, zeroBaseline, defaultThresholds, t0.Add(time.Minute+time.Second))
	if a.TotalSessionTime() != 2*time.Second {
		t.Errorf("total = %v, want 2s (gap not counted)", a.TotalSessionTime())
	}

	later := t0.Add(time.Hour)
	a.Reset(later)
	if a.TotalSessionTime() != 0 || a.PoorPostureDuration() != 0 || a.PitchHistory().Len() != 0 || a.RollHistory().Len() != 0 {
		t.Error("Reset should clear counters and histories")
	}
	if !a.SessionStart().Equal(later) {
		t.Errorf("SessionStart = %v, want %v", a.SessionStart(), later)
	}
}

func TestPoorPosturePercentage(t *testing.T) {
	tests := []struct {
		poor, total time.Duration
		want        int
	}{
		{0, 0, 0},
		{time.Second, 0, 0},
		{10 * time.Second, 10 * time.Second, 100},
		{time.Second, 3 * time.Second, 33},
		{2 * time.Second, 3 * time.Second, 67},
	}
	for _, tt := range tests {
		if got := PoorPosturePercentage(tt.poor, tt.total); got != tt.want {
			t.Errorf("PoorPosturePercentage(%v, %v) = %d, want %d", tt.poor, tt.total, got, tt.want)
		}
	}
}

func TestAlertGate(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

	g := NewAlertGate(10 * time.Second)
	fires := 0
	for _, at := range []time.Time{t0, t0.Add(5 * time.Second)} {
		if g.TryFire(at) {
			fires++
		}
	}
	if fires != 1 {
		t.Errorf("5s apart: %d fires, want 1", fires)
	}

	g = NewAlertGate(10 * time.Second)
	fires = 0
	for _, at := range []time.Time{t0, t0.Add(11 * time.Second)} {
		if g.TryFire(at) {
			fires++
		}
	}
	if fires != 2 {
		t.Errorf("11s apart: %d fires, want 2", fires)
	}

	g = NewAlertGate(10 * time.Second)
	g.TryFire(t0)
	if !g.TryFire(t0.Add(10 * time.Second)) {
		t.Error("a fire exactly one cooldown later should pass")
	}
}

func TestSummarize(t *testing.T) {
	if got := Summarize(nil); got != (models.HistoryStats{}) {
		t.Errorf("Summarize(nil) = %+v", got)
	}
	if got := Summarize([]float64{3}); got != (models.HistoryStats{Count: 1, Mean: 3, Min: 3, Max: 3}) {
		t.Errorf("Summarize([3]) = %+v", got)
	}

	got := Summarize([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	if got.Count != 8 || got.Min != 2 || got.Max != 9 {
		t.Errorf("unexpected count/min/max: %+v", got)
	}
	if math.Abs(got.Mean-5) > 1e-12 {
		t.Errorf("Mean = %v, want 5", got.Mean)
	}
	if math.Abs(got.StdDev-math.Sqrt(32.0/7)) > 1e-12 {
		t.Errorf("StdDev = %v, want %v", got.StdDev, math.Sqrt(32.0/7))
	}
}
