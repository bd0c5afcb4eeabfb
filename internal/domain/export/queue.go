package export

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Queue carries run triggers from producers to the worker. Delivery is
// at-least-once: a claimed trigger that is never acknowledged may be
// delivered again. Retry and backoff are the queue's concern.
type Queue interface {
	Submit(ctx context.Context, t Trigger) error
	// Claim returns the oldest unclaimed trigger, or nil when there is none.
	Claim(ctx context.Context) (*Trigger, error)
	Ack(ctx context.Context, runID uuid.UUID) error
	// Nack returns a claimed trigger to the queue so a later poll claims it
	// again.
	Nack(ctx context.Context, runID uuid.UUID) error
}

// MemoryQueue is an in-process FIFO queue for development and tests.
type MemoryQueue struct {
	mu       sync.Mutex
	pending  []Trigger
	inflight map[uuid.UUID]Trigger
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{inflight: make(map[uuid.UUID]Trigger)}
}

// Submit enqueues t. A trigger already queued or in flight is ignored.
func (q *MemoryQueue) Submit(_ context.Context, t Trigger) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.inflight[t.ExportRunID]; ok {
		return nil
	}
	for _, p := range q.pending {
		if p.ExportRunID == t.ExportRunID {
			return nil
		}
	}
	q.pending = append(q.pending, t)
	return nil
}

func (q *MemoryQueue) Claim(_ context.Context) (*Trigger, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	t := q.pending[0]
	q.pending = q.pending[1:]
	q.inflight[t.ExportRunID] = t
	return &t, nil
}

func (q *MemoryQueue) Ack(_ context.Context, runID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inflight, runID)
	return nil
}

// Nack puts the in-flight trigger back at the front of the queue.
func (q *MemoryQueue) Nack(_ context.Context, runID uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	t, ok := q.inflight[runID]
	if !ok {
		return nil
	}
	delete(q.inflight, runID)
	q.pending = append([]Trigger{t}, q.pending...)
	return nil
}

// Len reports queued and in-flight triggers.
func (q *MemoryQueue) Len() (pending, inflight int) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending), len(q.inflight)
}
