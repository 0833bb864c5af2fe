package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestOnStartIsIdempotent(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, true, nil)
	ctx := context.Background()

	require.NoError(t, n.OnStart(ctx, 7, "eating", t0))
	require.NoError(t, n.OnStart(ctx, 7, "eating", t0.Add(time.Second)))

	created, _ := rec.Calls()
	require.Len(t, created, 1)
	assert.Equal(t, 7, created[0].EntityID)
	assert.Equal(t, "eat", created[0].Title)
	assert.Equal(t, t0, created[0].StartedAt)
	assert.Equal(t, map[Key]int64{{EntityID: 7, ActivityType: "eating"}: 1}, n.Active())
}

func TestStartEndRoundTrip(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, true, nil)
	ctx := context.Background()

	require.NoError(t, n.OnStart(ctx, 1, "eating", t0))
	require.NoError(t, n.OnStart(ctx, 2, "eating", t0))
	require.NoError(t, n.OnEnd(ctx, 2, "eating", t0, t0.Add(time.Minute)))
	require.NoError(t, n.OnEnd(ctx, 1, "eating", t0, t0.Add(2*time.Minute)))

	created, finished := rec.Calls()
	require.Len(t, finished, 2)
	// Each end references the id its start received
	assert.Equal(t, created[1].ID, finished[0].ID)
	assert.Equal(t, t0.Add(time.Minute), finished[0].EndedAt)
	assert.Equal(t, created[0].ID, finished[1].ID)
	assert.Empty(t, n.Active())
}

func TestEndWithoutStart(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, true, nil)

	err := n.OnEnd(context.Background(), 3, "eating", t0, t0)
	assert.ErrorIs(t, err, ErrNoActiveActivity)

	err = n.ForceEnd(context.Background(), 3, "eating", t0)
	assert.ErrorIs(t, err, ErrNoActiveActivity)

	_, finished := rec.Calls()
	assert.Empty(t, finished)
}

func TestStartFailureKeepsNoState(t *testing.T) {
	rec := NewFakeRecorder()
	rec.SetCreateError(errors.New("service unavailable"))
	n := New(rec, true, nil)
	ctx := context.Background()

	err := n.OnStart(ctx, 4, "eating", t0)
	require.Error(t, err)
	assert.Empty(t, n.Active())

	// A later start retries
	rec.SetCreateError(nil)
	require.NoError(t, n.OnStart(ctx, 4, "eating", t0.Add(time.Second)))
	assert.Len(t, n.Active(), 1)
}

func TestEndFailureKeepsEntry(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, true, nil)
	ctx := context.Background()

	require.NoError(t, n.OnStart(ctx, 5, "eating", t0))
	rec.SetFinishError(errors.New("timeout"))

	err := n.OnEnd(ctx, 5, "eating", t0, t0.Add(time.Minute))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoActiveActivity)
	assert.Len(t, n.Active(), 1, "failed end keeps the activity for cleanup")

	rec.SetFinishError(nil)
	require.NoError(t, n.ForceEnd(ctx, 5, "eating", t0.Add(2*time.Minute)))
	assert.Empty(t, n.Active())
}

func TestCleanupAllRetriesFailuresLater(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, true, nil)
	ctx := context.Background()

	for id := 1; id <= 3; id++ {
		require.NoError(t, n.OnStart(ctx, id, "eating", t0))
	}
	// Activity 2 belongs to entity 2
	rec.FinishErrors[2] = errors.New("boom")

	closed := n.CleanupAll(ctx, t0.Add(time.Hour))
	assert.Equal(t, 2, closed)
	assert.Equal(t, map[Key]int64{{EntityID: 2, ActivityType: "eating"}: 2}, n.Active())

	delete(rec.FinishErrors, 2)
	assert.Equal(t, 1, n.CleanupAll(ctx, t0.Add(2*time.Hour)))
	assert.Empty(t, n.Active())
	assert.Equal(t, 0, n.CleanupAll(ctx, t0.Add(3*time.Hour)))
}

func TestDiscard(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, true, nil)
	ctx := context.Background()

	require.NoError(t, n.OnStart(ctx, 6, "eating", t0))
	assert.True(t, n.Discard(6, "eating"))
	assert.False(t, n.Discard(6, "eating"))
	assert.Empty(t, n.Active())

	_, finished := rec.Calls()
	assert.Empty(t, finished, "discard must not reach the service")
}

func TestDisabledNotifier(t *testing.T) {
	rec := NewFakeRecorder()
	n := New(rec, false, nil)
	ctx := context.Background()

	assert.False(t, n.Enabled())
	assert.NoError(t, n.OnStart(ctx, 1, "eating", t0))
	assert.NoError(t, n.OnEnd(ctx, 1, "eating", t0, t0))
	assert.NoError(t, n.OnEnd(ctx, 99, "eating", t0, t0), "no inconsistency when disabled")
	assert.NoError(t, n.ForceEnd(ctx, 1, "eating", t0))
	assert.Equal(t, 0, n.CleanupAll(ctx, t0))
	assert.Empty(t, n.Active())

	created, finished := rec.Calls()
	assert.Empty(t, created)
	assert.Empty(t, finished)
}

func TestNilRecorderDisables(t *testing.T) {
	n := New(nil, true, nil)
	assert.False(t, n.Enabled())
	assert.NoError(t, n.OnStart(context.Background(), 1, "eating", t0))
}

func TestTitleMapping(t *testing.T) {
	n := New(NewFakeRecorder(), true, map[string]string{"eating": "meal"})
	assert.Equal(t, "meal", n.Title("eating"))
	assert.Equal(t, "drinking", n.Title("drinking"), "unmapped types pass through")

	d := New(NewFakeRecorder(), true, nil)
	assert.Equal(t, "eat", d.Title("eating"))
	assert.Equal(t, "drink", d.Title("drinking"))
}
