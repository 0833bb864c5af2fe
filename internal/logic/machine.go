package logic

import (
	"math"
	"time"
)

// MachineConfig holds the hysteresis thresholds and debounce timers of an
// EatingMachine. Thresholds are in the same unit as positions (metres).
type MachineConfig struct {
	EnterThreshold float64
	ExitThreshold  float64
	MinTimeStart   time.Duration
	MinTimeStop    time.Duration
	WindowSize     int
}

// DefaultMachineConfig returns the production thresholds.
func DefaultMachineConfig() MachineConfig {
	return MachineConfig{
		EnterThreshold: 0.45,
		ExitThreshold:  0.50,
		MinTimeStart:   4 * time.Second,
		MinTimeStop:    3 * time.Second,
		WindowSize:     8,
	}
}

// Transition is a confirmed change of feeding state.
type Transition struct {
	From      State
	To        State
	At        time.Time
	StartedAt time.Time
	// Duration is set on EATING -> NOT_EATING only.
	Duration time.Duration
}

// EatingMachine debounces distance samples for one animal at one landmark.
type EatingMachine struct {
	cfg    MachineConfig
	window *window

	eating    bool
	startTime time.Time

	// Pending transition during debounce
	pending      bool
	pendingSince time.Time
}

// NewEatingMachine creates a machine in NOT_EATING with an empty window.
func NewEatingMachine(cfg MachineConfig) *EatingMachine {
	return &EatingMachine{
		cfg:    cfg,
		window: newWindow(cfg.WindowSize),
	}
}

// Process appends one distance sample and returns the transition it
// confirmed, or nil. Negative and NaN samples are ignored.
func (m *EatingMachine) Process(distance float64, now time.Time) *Transition {
	if distance < 0 || math.IsNaN(distance) {
		return nil
	}
	m.window.push(distance)
	mean := m.window.mean()

	if !m.eating {
		if mean >= m.cfg.EnterThreshold {
			// Any progress toward entering is discarded
			m.pending = false
			return nil
		}
		if !m.pending {
			m.pending = true
			m.pendingSince = now
			return nil
		}
		if now.Sub(m.pendingSince) < m.cfg.MinTimeStart {
			return nil
		}
		m.eating = true
		m.startTime = now
		m.pending = false
		return &Transition{From: StateNotEating, To: StateEating, At: now, StartedAt: now}
	}

	if mean <= m.cfg.ExitThreshold {
		m.pending = false
		return nil
	}
	if !m.pending {
		m.pending = true
		m.pendingSince = now
		return nil
	}
	if now.Sub(m.pendingSince) < m.cfg.MinTimeStop {
		return nil
	}
	t := &Transition{
		From:      StateEating,
		To:        StateNotEating,
		At:        now,
		StartedAt: m.startTime,
		Duration:  now.Sub(m.startTime),
	}
	m.eating = false
	m.startTime = time.Time{}
	m.pending = false
	return t
}

// State returns the current debounced state.
func (m *EatingMachine) State() State {
	if m.eating {
		return StateEating
	}
	return StateNotEating
}

// StartedAt returns the session start time while eating.
func (m *EatingMachine) StartedAt() (time.Time, bool) {
	return m.startTime, m.eating
}

// Pending reports whether a transition is being debounced.
func (m *EatingMachine) Pending() bool {
	return m.pending
}

// Mean returns the current smoothed distance.
func (m *EatingMachine) Mean() float64 {
	return m.window.mean()
}

// Samples returns the number of samples in the window.
func (m *EatingMachine) Samples() int {
	return m.window.len()
}
