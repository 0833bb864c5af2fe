package notify

import (
	"context"
	"sync"
	"time"
)

// Created is one recorded CreateActivity call.
type Created struct {
	EntityID  int
	Title     string
	StartedAt time.Time
	ID        int64
}

// Finished is one recorded FinishActivity call.
type Finished struct {
	ID      int64
	EndedAt time.Time
}

// FakeRecorder records calls and hands out sequential activity ids.
type FakeRecorder struct {
	mu sync.Mutex

	Created  []Created
	Finished []Finished

	// CreateError, if set, is returned by CreateActivity.
	CreateError error
	// FinishError, if set, is returned by FinishActivity. FinishErrors
	// overrides it per activity id.
	FinishError  error
	FinishErrors map[int64]error

	nextID int64
}

// NewFakeRecorder creates a FakeRecorder whose first id is 1.
func NewFakeRecorder() *FakeRecorder {
	return &FakeRecorder{FinishErrors: make(map[int64]error)}
}

// CreateActivity records the call.
func (f *FakeRecorder) CreateActivity(_ context.Context, entityID int, title string, startedAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateError != nil {
		return 0, f.CreateError
	}
	f.nextID++
	f.Created = append(f.Created, Created{EntityID: entityID, Title: title, StartedAt: startedAt, ID: f.nextID})
	return f.nextID, nil
}

// FinishActivity records the call.
func (f *FakeRecorder) FinishActivity(_ context.Context, activityID int64, endedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.FinishErrors[activityID]; err != nil {
		return err
	}
	if f.FinishError != nil {
		return f.FinishError
	}
	f.Finished = append(f.Finished, Finished{ID: activityID, EndedAt: endedAt})
	return nil
}

// SetCreateError sets CreateError under the lock.
func (f *FakeRecorder) SetCreateError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.CreateError = err
}

// SetFinishError sets FinishError under the lock.
func (f *FakeRecorder) SetFinishError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.FinishError = err
}

// Calls returns copies of the recorded calls.
func (f *FakeRecorder) Calls() ([]Created, []Finished) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Created(nil), f.Created...), append([]Finished(nil), f.Finished...)
}
