// Package usage provides best-effort, asynchronous usage logging.
package usage

import (
	"context"
	"sync"
	"time"

	"github.com/brightpath-edu/tutoring-platform/pkg/logger"
	"github.com/brightpath-edu/tutoring-platform/pkg/metrics"
)

// Purposes tag why a gateway call was made. Summarization calls are
// meta-usage: they never appear as user-facing turns.
const (
	PurposeChat           = "chat"
	PurposeInteraction    = "interaction"
	PurposeHistorySummary = "summary:history"
	PurposePromptSummary  = "summary:prompt"
)

// Entry is one usage-log record.
type Entry struct {
	TenantID  string    `json:"tenantId"`
	UserID    string    `json:"userId"`
	LessonID  string    `json:"lessonId,omitempty"`
	Purpose   string    `json:"purpose"`
	Model     string    `json:"model,omitempty"`
	TokensIn  int       `json:"tokensIn"`
	TokensOut int       `json:"tokensOut"`
	LatencyMs int64     `json:"latencyMs,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink is the terminal destination of usage entries (billing store, export
// pipeline). External collaborator.
type Sink interface {
	Write(ctx context.Context, entry Entry) error
}

// Recorder accepts usage entries fire-and-forget. Recording never blocks and
// never fails the caller.
type Recorder interface {
	Record(entry Entry)
}

// Queue decouples usage recording from the response path: entries go onto a
// bounded channel drained by a single worker. Overflow drops the oldest
// entry; sink failures are logged and swallowed.
type Queue struct {
	ch   chan Entry
	sink Sink
	log  *logger.Logger
	wg   sync.WaitGroup
}

// NewQueue creates a usage queue with the given capacity.
func NewQueue(sink Sink, size int, log *logger.Logger) *Queue {
	if size <= 0 {
		size = 1024
	}
	return &Queue{
		ch:   make(chan Entry, size),
		sink: sink,
		log:  log,
	}
}

// Record implements Recorder.
func (q *Queue) Record(entry Entry) {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	select {
	case q.ch <- entry:
	default:
		// Queue full: drop the oldest entry to make room.
		select {
		case <-q.ch:
			metrics.UsageEntriesDropped.Inc()
		default:
		}
		select {
		case q.ch <- entry:
		default:
			metrics.UsageEntriesDropped.Inc()
		}
	}
	metrics.UsageQueueDepth.Set(float64(len(q.ch)))
}

// Start launches the worker. It drains remaining entries after ctx is
// cancelled, then returns.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for {
			select {
			case entry := <-q.ch:
				q.write(entry)
			case <-ctx.Done():
				for {
					select {
					case entry := <-q.ch:
						q.write(entry)
					default:
						return
					}
				}
			}
		}
	}()
}

// Wait blocks until the worker has exited.
func (q *Queue) Wait() {
	q.wg.Wait()
}

func (q *Queue) write(entry Entry) {
	metrics.UsageQueueDepth.Set(float64(len(q.ch)))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.sink.Write(ctx, entry); err != nil {
		q.log.Warnw("usage log write failed",
			"tenant_id", entry.TenantID,
			"purpose", entry.Purpose,
			"error", err,
		)
	}
}

// LogSink writes usage entries to the structured log. Default sink when no
// external collaborator is wired.
type LogSink struct {
	log *logger.Logger
}

// NewLogSink creates a log-backed sink.
func NewLogSink(log *logger.Logger) *LogSink {
	return &LogSink{log: log}
}

// Write implements Sink.
func (s *LogSink) Write(_ context.Context, entry Entry) error {
	s.log.Infow("usage",
		"tenant_id", entry.TenantID,
		"user_id", entry.UserID,
		"lesson_id", entry.LessonID,
		"purpose", entry.Purpose,
		"model", entry.Model,
		"tokens_in", entry.TokensIn,
		"tokens_out", entry.TokensOut,
		"latency_ms", entry.LatencyMs,
	)
	return nil
}
