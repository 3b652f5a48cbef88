package channel

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aviary-sim/jobgraph/pkg/core"
)

const receivePollInterval = 10 * time.Millisecond

// MemoryQueue implements core.Queue in process memory with the same
// semantics as a managed queue: visibility timeout, redelivery, receive
// counts, and an optional dead-letter destination.
type MemoryQueue struct {
	mu         sync.Mutex
	messages   []*memoryMessage
	visibility time.Duration
	maxReceive int
	deadLetter *MemoryQueue
}

type memoryMessage struct {
	id           string
	body         []byte
	visibleAt    time.Time
	receiveCount int
	handle       string
}

// MemoryQueueOption configures a MemoryQueue.
type MemoryQueueOption func(*MemoryQueue)

// WithVisibilityTimeout sets how long a received message stays invisible
// before redelivery. Default 30s.
func WithVisibilityTimeout(d time.Duration) MemoryQueueOption {
	return func(q *MemoryQueue) { q.visibility = d }
}

// WithMaxReceiveCount sets how many times a message may be received before
// moving to the dead-letter queue. Default 5.
func WithMaxReceiveCount(n int) MemoryQueueOption {
	return func(q *MemoryQueue) { q.maxReceive = n }
}

// WithDeadLetter routes messages exceeding the receive count to dlq.
func WithDeadLetter(dlq *MemoryQueue) MemoryQueueOption {
	return func(q *MemoryQueue) { q.deadLetter = dlq }
}

// NewMemoryQueue creates an empty in-memory queue.
func NewMemoryQueue(opts ...MemoryQueueOption) *MemoryQueue {
	q := &MemoryQueue{
		visibility: 30 * time.Second,
		maxReceive: 5,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Send enqueues one message body.
func (q *MemoryQueue) Send(ctx context.Context, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	cp := make([]byte, len(body))
	copy(cp, body)
	q.messages = append(q.messages, &memoryMessage{
		id:        uuid.New().String(),
		body:      cp,
		visibleAt: time.Now(),
	})
	return nil
}

// Receive long-polls for up to max visible messages, waiting at most wait.
// An empty result after the wait elapses is not an error.
func (q *MemoryQueue) Receive(ctx context.Context, max int, wait time.Duration) ([]core.Delivery, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)

	for {
		if deliveries := q.collect(max); len(deliveries) > 0 {
			return deliveries, nil
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		// Never sleep past the caller's deadline.
		sleep := receivePollInterval
		if sleep > remaining {
			sleep = remaining
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

func (q *MemoryQueue) collect(max int) []core.Delivery {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	var deliveries []core.Delivery
	kept := q.messages[:0]

	for _, m := range q.messages {
		if len(deliveries) >= max || m.visibleAt.After(now) {
			kept = append(kept, m)
			continue
		}

		m.receiveCount++
		if q.maxReceive > 0 && m.receiveCount > q.maxReceive {
			// Exceeded the redrive policy; drop into the DLQ instead of
			// cycling forever.
			if q.deadLetter != nil {
				q.deadLetter.mu.Lock()
				q.deadLetter.messages = append(q.deadLetter.messages, &memoryMessage{
					id:        m.id,
					body:      m.body,
					visibleAt: now,
				})
				q.deadLetter.mu.Unlock()
			}
			continue
		}

		m.visibleAt = now.Add(q.visibility)
		m.handle = uuid.New().String()
		kept = append(kept, m)
		deliveries = append(deliveries, core.Delivery{
			Body:         m.body,
			Handle:       m.handle,
			ReceiveCount: m.receiveCount,
		})
	}

	q.messages = kept
	return deliveries
}

// Delete acknowledges a delivery by handle. Unknown or already-deleted
// handles are a no-op.
func (q *MemoryQueue) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	for i, m := range q.messages {
		if m.handle == handle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return nil
}

// Len reports how many messages are queued or in flight. Intended for tests.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}
