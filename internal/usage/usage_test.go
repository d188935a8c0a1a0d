package usage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
)

type captureSink struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *captureSink) Write(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *captureSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func TestQueueDeliversEntries(t *testing.T) {
	sink := &captureSink{}
	q := NewQueue(sink, 8, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	q.Record(Entry{TenantID: "T1", Purpose: PurposeChat, TokensIn: 10, TokensOut: 20})
	q.Record(Entry{TenantID: "T1", Purpose: PurposeHistorySummary})

	require.Eventually(t, func() bool { return sink.count() == 2 }, time.Second, 5*time.Millisecond)

	cancel()
	q.Wait()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, PurposeChat, sink.entries[0].Purpose)
	assert.False(t, sink.entries[0].CreatedAt.IsZero())
}

func TestRecordNeverBlocksWhenFull(t *testing.T) {
	sink := &captureSink{}
	q := NewQueue(sink, 2, logger.NewNop())
	// Worker not started: the channel fills and stays full.

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			q.Record(Entry{TenantID: "T1", Purpose: PurposeChat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Record blocked on a full queue")
	}
}

func TestSinkFailureIsSwallowed(t *testing.T) {
	sink := &captureSink{err: errors.New("billing store down")}
	q := NewQueue(sink, 4, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)

	q.Record(Entry{TenantID: "T1", Purpose: PurposeChat})
	time.Sleep(20 * time.Millisecond)

	cancel()
	q.Wait()
	// Nothing to assert beyond not panicking and not blocking.
}

func TestQueueDrainsOnShutdown(t *testing.T) {
	sink := &captureSink{}
	q := NewQueue(sink, 16, logger.NewNop())

	for i := 0; i < 5; i++ {
		q.Record(Entry{TenantID: "T1", Purpose: PurposeInteraction})
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.Start(ctx)
	cancel()
	q.Wait()

	assert.Equal(t, 5, sink.count())
}
