package contextstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

type fakeSnapshots struct {
	mu    sync.Mutex
	calls int
	data  json.RawMessage
}

func (f *fakeSnapshots) GetByID(_ context.Context, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.data, nil
}

func newTestStore(snapshots LessonSnapshotProvider) *MemoryStore {
	return NewMemoryStore(snapshots, 2*time.Hour, 5*time.Minute, logger.NewNop())
}

func TestGetOrCreateReturnsSameContext(t *testing.T) {
	store := newTestStore(nil)

	first, err := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")
	require.NoError(t, err)

	require.NoError(t, store.MergeState(first.ID, map[string]any{"step": 1}))

	second, err := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, 1, second.State["step"])
}

func TestSnapshotLoadedOnceAtCreation(t *testing.T) {
	snapshots := &fakeSnapshots{data: json.RawMessage(`{"title":"Photosynthesis"}`)}
	store := newTestStore(snapshots)

	first, err := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "snap-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Photosynthesis"}`, string(first.ProcessedContent))

	_, err = store.GetOrCreate(context.Background(), "L1", "S1", "I1", "snap-1")
	require.NoError(t, err)
	assert.Equal(t, 1, snapshots.calls)
}

func TestAppendEventCapsAtFifty(t *testing.T) {
	store := newTestStore(nil)
	c, err := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")
	require.NoError(t, err)

	for i := 1; i <= 51; i++ {
		require.NoError(t, store.AppendEvent(c.ID, model.InteractionEvent{
			Type: fmt.Sprintf("event-%d", i),
		}))
	}

	events := store.RecentEvents(c.ID, model.MaxContextEvents)
	require.Len(t, events, 50)
	// Event #1 evicted; #2 through #51 remain, oldest first.
	assert.Equal(t, "event-2", events[0].Type)
	assert.Equal(t, "event-51", events[49].Type)
}

func TestAppendEventStampsTimestamp(t *testing.T) {
	store := newTestStore(nil)
	c, _ := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")

	require.NoError(t, store.AppendEvent(c.ID, model.InteractionEvent{Type: "opened"}))

	events := store.RecentEvents(c.ID, 1)
	require.Len(t, events, 1)
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestMergeStateLastWriteWins(t *testing.T) {
	store := newTestStore(nil)
	c, _ := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")

	require.NoError(t, store.MergeState(c.ID, map[string]any{"a": 1, "b": "x"}))
	require.NoError(t, store.MergeState(c.ID, map[string]any{"a": 2}))
	// Idempotent under repetition.
	require.NoError(t, store.MergeState(c.ID, map[string]any{"a": 2}))

	assert.Equal(t, 2, c.State["a"])
	assert.Equal(t, "x", c.State["b"])
}

func TestUnknownContextMutationsAreNonFatal(t *testing.T) {
	store := newTestStore(nil)

	assert.ErrorIs(t, store.AppendEvent("missing", model.InteractionEvent{Type: "x"}), ErrContextNotFound)
	assert.ErrorIs(t, store.MergeState("missing", map[string]any{"a": 1}), ErrContextNotFound)
	assert.Nil(t, store.RecentEvents("missing", 5))
}

func TestRecentEventsDefaultsToTen(t *testing.T) {
	store := newTestStore(nil)
	c, _ := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")

	for i := 1; i <= 15; i++ {
		require.NoError(t, store.AppendEvent(c.ID, model.InteractionEvent{
			Type: fmt.Sprintf("event-%d", i),
		}))
	}

	events := store.RecentEvents(c.ID, 0)
	require.Len(t, events, DefaultRecentEvents)
	assert.Equal(t, "event-6", events[0].Type)
	assert.Equal(t, "event-15", events[9].Type)
}

func TestConcurrentMutationsDoNotLoseUpdates(t *testing.T) {
	store := newTestStore(nil)
	c, _ := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AppendEvent(c.ID, model.InteractionEvent{Type: "tick"})
			_ = store.MergeState(c.ID, map[string]any{fmt.Sprintf("k%d", i): i})
		}(i)
	}
	wg.Wait()

	events := store.RecentEvents(c.ID, model.MaxContextEvents)
	assert.Len(t, events, 40)
	assert.Len(t, c.State, 40)
}

// Exercises the sweep running alongside mutators; the race detector flags
// any unsynchronized read of UpdatedAt.
func TestSweepConcurrentWithMutations(t *testing.T) {
	store := newTestStore(nil)
	c, _ := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = store.AppendEvent(c.ID, model.InteractionEvent{Type: "tick"})
			_ = store.MergeState(c.ID, map[string]any{"k": i})
		}(i)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			store.sweepIdle()
		}
	}()
	wg.Wait()

	// TTL is hours, so the active context survives every sweep.
	assert.NoError(t, store.AppendEvent(c.ID, model.InteractionEvent{Type: "done"}))
}

func TestJanitorEvictsIdleContexts(t *testing.T) {
	store := NewMemoryStore(nil, 10*time.Millisecond, time.Minute, logger.NewNop())
	c, _ := store.GetOrCreate(context.Background(), "L1", "S1", "I1", "")

	time.Sleep(30 * time.Millisecond)
	store.sweepIdle()

	assert.ErrorIs(t, store.AppendEvent(c.ID, model.InteractionEvent{Type: "x"}), ErrContextNotFound)
}
