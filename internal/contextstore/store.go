// Package contextstore holds per-interaction state and bounded event logs.
package contextstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/brightpath-edu/tutoring-platform/internal/model"
	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// ErrContextNotFound is returned when a mutation targets an unknown context.
// Callers on the real-time path treat it as a non-fatal warning.
var ErrContextNotFound = errors.New("interaction context not found")

// DefaultRecentEvents is the event count returned when none is requested.
const DefaultRecentEvents = 10

// LessonSnapshotProvider loads immutable processed-content snapshots.
type LessonSnapshotProvider interface {
	GetByID(ctx context.Context, id string) (json.RawMessage, error)
}

// Store is the keyed interaction-context state store.
type Store interface {
	// GetOrCreate returns the context for the composite key, creating it on
	// first access. A snapshot, when given, is loaded exactly once at
	// creation time and never reloaded.
	GetOrCreate(ctx context.Context, lessonID, substageID, interactionID, snapshotID string) (*model.InteractionContext, error)

	// AppendEvent stamps a missing timestamp, appends, and evicts the oldest
	// event past the cap.
	AppendEvent(contextID string, event model.InteractionEvent) error

	// MergeState shallow-merges partial state, last write wins per key.
	MergeState(contextID string, partial map[string]any) error

	// RecentEvents returns the last n events, oldest first.
	RecentEvents(contextID string, n int) []model.InteractionEvent
}

// MemoryStore is the in-process Store implementation. Contexts idle past the
// TTL are evicted by the janitor so the map stays bounded.
type MemoryStore struct {
	snapshots LessonSnapshotProvider
	log       *logger.Logger
	ttl       time.Duration
	sweep     time.Duration

	mu      sync.RWMutex // guards entries map; entry locks guard each context
	entries map[string]*entry
}

type entry struct {
	mu  sync.Mutex // per-context mutex, serializes concurrent mutations
	ctx *model.InteractionContext
}

// NewMemoryStore creates a new in-memory context store.
func NewMemoryStore(snapshots LessonSnapshotProvider, ttl, sweep time.Duration, log *logger.Logger) *MemoryStore {
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}
	if sweep <= 0 {
		sweep = 5 * time.Minute
	}
	s := &MemoryStore{
		snapshots: snapshots,
		log:       log,
		ttl:       ttl,
		sweep:     sweep,
		entries:   make(map[string]*entry),
	}
	return s
}

// GetOrCreate implements Store.
func (s *MemoryStore) GetOrCreate(ctx context.Context, lessonID, substageID, interactionID, snapshotID string) (*model.InteractionContext, error) {
	id := model.ContextID(lessonID, substageID, interactionID)

	s.mu.RLock()
	if e, ok := s.entries[id]; ok {
		s.mu.RUnlock()
		return e.ctx, nil
	}
	s.mu.RUnlock()

	// Snapshot lookup happens outside the map lock; concurrent creators for
	// the same key race benignly and the first insert wins.
	var snapshot json.RawMessage
	if snapshotID != "" && s.snapshots != nil {
		loaded, err := s.snapshots.GetByID(ctx, snapshotID)
		if err != nil {
			s.log.Warnw("failed to load content snapshot", "snapshot_id", snapshotID, "error", err)
		} else {
			snapshot = loaded
		}
	}

	now := time.Now()
	created := &entry{
		ctx: &model.InteractionContext{
			ID:               id,
			LessonID:         lessonID,
			SubstageID:       substageID,
			InteractionID:    interactionID,
			State:            make(map[string]any),
			ProcessedContent: snapshot,
			CreatedAt:        now,
			UpdatedAt:        now,
		},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e.ctx, nil
	}
	s.entries[id] = created
	metrics.ContextsActive.Set(float64(len(s.entries)))
	return created.ctx, nil
}

// AppendEvent implements Store.
func (s *MemoryStore) AppendEvent(contextID string, event model.InteractionEvent) error {
	e, ok := s.entry(contextID)
	if !ok {
		s.log.Warnw("append to unknown interaction context", "context_id", contextID)
		return ErrContextNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	e.ctx.Events = append(e.ctx.Events, event)
	if overflow := len(e.ctx.Events) - model.MaxContextEvents; overflow > 0 {
		e.ctx.Events = append([]model.InteractionEvent(nil), e.ctx.Events[overflow:]...)
	}
	e.ctx.UpdatedAt = time.Now()
	return nil
}

// MergeState implements Store.
func (s *MemoryStore) MergeState(contextID string, partial map[string]any) error {
	e, ok := s.entry(contextID)
	if !ok {
		s.log.Warnw("merge into unknown interaction context", "context_id", contextID)
		return ErrContextNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for key, value := range partial {
		e.ctx.State[key] = value
	}
	if len(partial) > 0 {
		e.ctx.UpdatedAt = time.Now()
	}
	return nil
}

// RecentEvents implements Store.
func (s *MemoryStore) RecentEvents(contextID string, n int) []model.InteractionEvent {
	e, ok := s.entry(contextID)
	if !ok {
		return nil
	}
	if n <= 0 {
		n = DefaultRecentEvents
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	events := e.ctx.Events
	if len(events) > n {
		events = events[len(events)-n:]
	}
	out := make([]model.InteractionEvent, len(events))
	copy(out, events)
	return out
}

// StartJanitor runs the idle-TTL sweep until ctx is cancelled.
func (s *MemoryStore) StartJanitor(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.sweep)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.sweepIdle()
			}
		}
	}()
}

func (s *MemoryStore) sweepIdle() {
	cutoff := time.Now().Add(-s.ttl)
	evicted := 0

	s.mu.Lock()
	for id, e := range s.entries {
		// UpdatedAt is written under the entry mutex, so it must be read
		// under it too.
		e.mu.Lock()
		idle := e.ctx.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if idle {
			delete(s.entries, id)
			evicted++
		}
	}
	remaining := len(s.entries)
	s.mu.Unlock()

	if evicted > 0 {
		metrics.ContextEvictionsTotal.Add(float64(evicted))
		metrics.ContextsActive.Set(float64(remaining))
		s.log.Infow("evicted idle interaction contexts", "evicted", evicted, "remaining", remaining)
	}
}

func (s *MemoryStore) entry(contextID string) (*entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[contextID]
	return e, ok
}
