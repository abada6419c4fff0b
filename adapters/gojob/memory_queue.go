package gojob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const defaultMemoryQueueCapacity = 64

// MemoryQueue is a process-local queue for single-instance deployments and
// tests. A message whose idempotency key is already pending or in flight is
// not queued again; the caller gets the receipt of the earlier message.
type MemoryQueue struct {
	mu          sync.Mutex
	ready       chan *memoryDelivery
	pending     map[string]queue.EnqueueReceipt
	deadLetters []*job.ExecutionMessage
	now         func() time.Time
}

func NewMemoryQueue(capacity int) *MemoryQueue {
	if capacity <= 0 {
		capacity = defaultMemoryQueueCapacity
	}
	return &MemoryQueue{
		ready:   make(chan *memoryDelivery, capacity),
		pending: map[string]queue.EnqueueReceipt{},
		now:     time.Now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) (queue.EnqueueReceipt, error) {
	if q == nil {
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: memory queue is not configured")
	}
	if err := queue.ValidateRequiredMessage(msg); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	if err := ctx.Err(); err != nil {
		return queue.EnqueueReceipt{}, err
	}
	receipt := queue.EnqueueReceipt{DispatchID: uuid.NewString(), EnqueuedAt: q.now().UTC()}
	key := strings.TrimSpace(msg.IdempotencyKey)
	q.mu.Lock()
	if key != "" {
		if existing, exists := q.pending[key]; exists {
			q.mu.Unlock()
			return existing, nil
		}
		q.pending[key] = receipt
	}
	q.mu.Unlock()

	select {
	case q.ready <- &memoryDelivery{queue: q, msg: msg, attempts: 1}:
		return receipt, nil
	default:
		q.release(key)
		return queue.EnqueueReceipt{}, fmt.Errorf("gojob: memory queue is full")
	}
}

func (q *MemoryQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	if q == nil {
		return nil, fmt.Errorf("gojob: memory queue is not configured")
	}
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case delivery := <-q.ready:
		return delivery, nil
	}
}

func (q *MemoryQueue) Len() int {
	if q == nil {
		return 0
	}
	return len(q.ready)
}

func (q *MemoryQueue) DeadLetters() []*job.ExecutionMessage {
	if q == nil {
		return nil
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

func (q *MemoryQueue) release(key string) {
	if key == "" {
		return
	}
	q.mu.Lock()
	delete(q.pending, key)
	q.mu.Unlock()
}

func (q *MemoryQueue) deadLetter(msg *job.ExecutionMessage) {
	q.mu.Lock()
	q.deadLetters = append(q.deadLetters, msg)
	q.mu.Unlock()
	q.release(strings.TrimSpace(msg.IdempotencyKey))
}

func (q *MemoryQueue) requeue(next *memoryDelivery) {
	select {
	case q.ready <- next:
	default:
		q.deadLetter(next.msg)
	}
}

type memoryDelivery struct {
	queue    *MemoryQueue
	msg      *job.ExecutionMessage
	attempts int
}

func (d *memoryDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

// Attempts counts deliveries of the message, starting at 1.
func (d *memoryDelivery) Attempts() int {
	return d.attempts
}

func (d *memoryDelivery) Ack(context.Context) error {
	d.queue.release(strings.TrimSpace(d.msg.IdempotencyKey))
	return nil
}

// Nack applies the disposition: retry requeues after Delay, dead_letter keeps
// the message for inspection and failed or canceled drop it.
func (d *memoryDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	if err := queue.ValidateNackOptions(opts); err != nil {
		return fmt.Errorf("gojob: %w", err)
	}
	switch opts.Disposition {
	case queue.NackDispositionRetry:
		next := &memoryDelivery{queue: d.queue, msg: d.msg, attempts: d.attempts + 1}
		if opts.Delay > 0 {
			time.AfterFunc(opts.Delay, func() { d.queue.requeue(next) })
			return nil
		}
		d.queue.requeue(next)
	case queue.NackDispositionDeadLetter:
		d.queue.deadLetter(d.msg)
	default:
		d.queue.release(strings.TrimSpace(d.msg.IdempotencyKey))
	}
	return nil
}

var (
	_ queue.Enqueuer = (*MemoryQueue)(nil)
	_ queue.Dequeuer = (*MemoryQueue)(nil)
	_ queue.Delivery = (*memoryDelivery)(nil)
)
