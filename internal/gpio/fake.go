package gpio

import "sync"

// FakeIndicator records every Set call.
type FakeIndicator struct {
	mu sync.Mutex

	// History holds every value passed to Set, in order.
	History []bool

	// SetError, if set, is returned by Set and nothing is recorded.
	SetError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeIndicator creates a FakeIndicator that starts off.
func NewFakeIndicator() *FakeIndicator {
	return &FakeIndicator{}
}

// Set records on.
func (f *FakeIndicator) Set(on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SetError != nil {
		return f.SetError
	}
	f.History = append(f.History, on)
	return nil
}

// On reports the last value set.
func (f *FakeIndicator) On() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.History) > 0 && f.History[len(f.History)-1]
}

// Sets returns the number of recorded Set calls.
func (f *FakeIndicator) Sets() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.History)
}

// Close marks the indicator as closed and off.
func (f *FakeIndicator) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	f.History = append(f.History, false)
	return nil
}
