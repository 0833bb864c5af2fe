package logic

import (
	"math"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

const tick = 100 * time.Millisecond

func at(i int) time.Time {
	return epoch.Add(time.Duration(i) * tick)
}

// scenarioConfig uses enter=0.10 exit=0.20 with 2s debounce and a 5-sample window.
func scenarioConfig() MachineConfig {
	return MachineConfig{
		EnterThreshold: 0.10,
		ExitThreshold:  0.20,
		MinTimeStart:   2 * time.Second,
		MinTimeStop:    2 * time.Second,
		WindowSize:     5,
	}
}

// feed processes value at ticks [from, to) and returns all transitions.
func feed(m *EatingMachine, value float64, from, to int) []Transition {
	var out []Transition
	for i := from; i < to; i++ {
		if tr := m.Process(value, at(i)); tr != nil {
			out = append(out, *tr)
		}
	}
	return out
}

func TestNewEatingMachine(t *testing.T) {
	m := NewEatingMachine(DefaultMachineConfig())
	if m.State() != StateNotEating {
		t.Errorf("state: got %s, want %s", m.State(), StateNotEating)
	}
	if m.Pending() {
		t.Error("new machine should not be pending")
	}
	if _, ok := m.StartedAt(); ok {
		t.Error("new machine should have no start time")
	}
	if m.Samples() != 0 {
		t.Errorf("samples: got %d, want 0", m.Samples())
	}
}

func TestScenarioStartThenEnd(t *testing.T) {
	m := NewEatingMachine(scenarioConfig())

	// 3 seconds close to the bowl
	trs := feed(m, 0.05, 0, 30)
	if len(trs) != 1 {
		t.Fatalf("expected 1 start transition, got %d", len(trs))
	}
	if trs[0].To != StateEating || trs[0].From != StateNotEating {
		t.Errorf("transition: got %s->%s", trs[0].From, trs[0].To)
	}
	if !trs[0].At.Equal(at(20)) {
		t.Errorf("start at: got %v, want %v", trs[0].At.Sub(epoch), at(20).Sub(epoch))
	}
	started, ok := m.StartedAt()
	if !ok || !started.Equal(at(20)) {
		t.Errorf("StartedAt: got %v/%v, want %v", started, ok, at(20))
	}

	// 3 seconds away; smoothed mean first exceeds 0.20 on the 4th sample (t=3.3s)
	trs = feed(m, 0.25, 30, 60)
	if len(trs) != 1 {
		t.Fatalf("expected 1 end transition, got %d", len(trs))
	}
	end := trs[0]
	if end.To != StateNotEating {
		t.Errorf("end transition to: got %s, want %s", end.To, StateNotEating)
	}
	if !end.At.Equal(at(53)) {
		t.Errorf("end at: got %v, want %v", end.At.Sub(epoch), at(53).Sub(epoch))
	}
	if end.Duration != 3300*time.Millisecond {
		t.Errorf("duration: got %v, want 3.3s", end.Duration)
	}
	if !end.StartedAt.Equal(at(20)) {
		t.Errorf("end StartedAt: got %v, want %v", end.StartedAt, at(20))
	}
	if _, ok := m.StartedAt(); ok {
		t.Error("start time should be cleared after end")
	}
}

func TestScenarioBetweenThresholdsResetsDebounce(t *testing.T) {
	m := NewEatingMachine(scenarioConfig())

	trs := feed(m, 0.05, 0, 10)
	trs = append(trs, feed(m, 0.15, 10, 50)...)
	if len(trs) != 0 {
		t.Fatalf("expected no transitions, got %d", len(trs))
	}
	if m.State() != StateNotEating {
		t.Errorf("state: got %s, want %s", m.State(), StateNotEating)
	}
	if m.Pending() {
		t.Error("pending should be cleared once the mean reaches the enter threshold")
	}
}

func TestEnterNoPartialCredit(t *testing.T) {
	cfg := scenarioConfig()
	cfg.WindowSize = 4
	m := NewEatingMachine(cfg)

	// 1.5s close, then one far sample pushes the mean above enter
	trs := feed(m, 0.05, 0, 15)
	trs = append(trs, feed(m, 0.9, 15, 16)...)
	if m.Pending() {
		t.Fatal("far sample should clear pending")
	}
	// The far sample stays in the window until tick 19
	trs = append(trs, feed(m, 0.05, 16, 50)...)
	if len(trs) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(trs))
	}
	// Debounce restarts at tick 19, so the start is 2s later
	if !trs[0].At.Equal(at(39)) {
		t.Errorf("start at: got %v, want %v", trs[0].At.Sub(epoch), at(39).Sub(epoch))
	}
}

func TestExitBlipDoesNotEnd(t *testing.T) {
	cfg := scenarioConfig()
	cfg.WindowSize = 4
	m := NewEatingMachine(cfg)

	if trs := feed(m, 0.05, 0, 30); len(trs) != 1 {
		t.Fatalf("expected start, got %d transitions", len(trs))
	}

	// Two far samples keep the mean above exit for 5 ticks
	trs := feed(m, 0.9, 30, 32)
	if !m.Pending() {
		t.Error("far samples should set pending")
	}
	trs = append(trs, feed(m, 0.05, 32, 40)...)
	if len(trs) != 0 {
		t.Fatalf("expected no transitions, got %d", len(trs))
	}
	if m.State() != StateEating {
		t.Errorf("state: got %s, want %s", m.State(), StateEating)
	}
	if m.Pending() {
		t.Error("pending should be cleared after returning")
	}

	// A real departure needs a full MinTimeStop from its own first sample.
	// One far sample already lifts the mean to 0.2625.
	trs = feed(m, 0.9, 40, 70)
	if len(trs) != 1 {
		t.Fatalf("expected 1 end, got %d", len(trs))
	}
	if !trs[0].At.Equal(at(60)) {
		t.Errorf("end at: got %v, want %v", trs[0].At.Sub(epoch), at(60).Sub(epoch))
	}
}

func TestThresholdBoundaries(t *testing.T) {
	cfg := MachineConfig{
		EnterThreshold: 0.5,
		ExitThreshold:  1.0,
		MinTimeStart:   time.Second,
		MinTimeStop:    time.Second,
		WindowSize:     1,
	}
	m := NewEatingMachine(cfg)

	// Mean equal to enter is not below it
	m.Process(0.5, at(0))
	if m.Pending() {
		t.Error("mean == enter should not start debounce")
	}

	feed(m, 0.25, 1, 12)
	if m.State() != StateEating {
		t.Fatalf("state: got %s, want %s", m.State(), StateEating)
	}

	// Mean equal to exit is not above it
	m.Process(1.0, at(12))
	if m.Pending() {
		t.Error("mean == exit should not start debounce")
	}
}

func TestDebounceExactTiming(t *testing.T) {
	cfg := scenarioConfig()
	cfg.WindowSize = 1
	m := NewEatingMachine(cfg)

	m.Process(0.05, epoch)
	if tr := m.Process(0.05, epoch.Add(2*time.Second-time.Nanosecond)); tr != nil {
		t.Error("transition before MinTimeStart")
	}
	if tr := m.Process(0.05, epoch.Add(2*time.Second)); tr == nil {
		t.Error("expected transition exactly at MinTimeStart")
	}
}

func TestIgnoresInvalidSamples(t *testing.T) {
	m := NewEatingMachine(scenarioConfig())

	for i, v := range []float64{-1, math.NaN()} {
		if tr := m.Process(v, at(i)); tr != nil {
			t.Errorf("sample %v produced transition", v)
		}
	}
	if m.Samples() != 0 {
		t.Errorf("samples: got %d, want 0", m.Samples())
	}
	if m.Pending() {
		t.Error("invalid samples should not set pending")
	}
}

func TestStartedAtSetIffEating(t *testing.T) {
	cfg := scenarioConfig()
	cfg.WindowSize = 1
	m := NewEatingMachine(cfg)

	values := []float64{0.05, 0.05, 0.3, 0.05, 0.3, 0.3, 0.05}
	i := 0
	for round := 0; round < 5; round++ {
		for _, v := range values {
			for k := 0; k < 7; k++ {
				m.Process(v, at(i))
				i++
				_, ok := m.StartedAt()
				if ok != (m.State() == StateEating) {
					t.Fatalf("tick %d: StartedAt set=%v with state %s", i, ok, m.State())
				}
			}
		}
	}
}
