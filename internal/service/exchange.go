package service

import "sync"

// exchangeTracker assigns a monotonically increasing sequence number to each
// outbound gateway call per exchange key (tenant:lesson:user). A completion
// whose sequence has been superseded by a newer call for the same exchange
// is discarded, which resolves the race between a stale in-flight call and a
// fallback resend or screenshot response.
type exchangeTracker struct {
	mu      sync.Mutex
	seqs    map[string]uint64
	pending map[string]string // original question awaiting a screenshot
}

func newExchangeTracker() *exchangeTracker {
	return &exchangeTracker{
		seqs:    make(map[string]uint64),
		pending: make(map[string]string),
	}
}

// next registers a new outbound call and returns its sequence number.
func (t *exchangeTracker) next(key string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seqs[key]++
	return t.seqs[key]
}

// superseded reports whether a newer call has been registered since seq.
func (t *exchangeTracker) superseded(key string, seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.seqs[key] > seq
}

// setPendingQuestion stores the original question of a screenshot cycle.
func (t *exchangeTracker) setPendingQuestion(key, question string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending[key] = question
}

// takePendingQuestion retrieves and clears the stored original question.
func (t *exchangeTracker) takePendingQuestion(key string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	q := t.pending[key]
	delete(t.pending, key)
	return q
}
