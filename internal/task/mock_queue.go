package task

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PublishedMessage records one immediate dispatch through MemoryQueue.
type PublishedMessage struct {
	HandleID string
	GroupID  string
	Envelope *Envelope
}

// ScheduledMessage records one delayed dispatch through MemoryScheduler.
type ScheduledMessage struct {
	HandleID string
	At       time.Time
	GroupID  string
	Envelope *Envelope
}

// MemoryQueue is an in-memory Queue for tests. It is strictly FIFO
// (a single lane), which satisfies the per-group ordering contract for
// any test publishing to one group.
type MemoryQueue struct {
	mu        sync.Mutex
	pending   []*PublishedMessage
	Published []*PublishedMessage
	Acked     []*Envelope
	Dead      []*Envelope
	notify    chan struct{}
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1024)}
}

func (q *MemoryQueue) Publish(ctx context.Context, groupID string, env *Envelope) (string, error) {
	msg := &PublishedMessage{HandleID: uuid.New().String(), GroupID: groupID, Envelope: env}
	q.mu.Lock()
	q.pending = append(q.pending, msg)
	q.Published = append(q.Published, msg)
	q.mu.Unlock()
	q.notify <- struct{}{}
	return msg.HandleID, nil
}

func (q *MemoryQueue) Receive(ctx context.Context) (Delivery, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.notify:
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return nil, nil
	}
	msg := q.pending[0]
	q.pending = q.pending[1:]
	return &memoryDelivery{queue: q, msg: msg}, nil
}

// Pending returns the number of undelivered messages.
func (q *MemoryQueue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

type memoryDelivery struct {
	queue *MemoryQueue
	msg   *PublishedMessage
}

func (d *memoryDelivery) Envelope() *Envelope { return d.msg.Envelope }

func (d *memoryDelivery) Ack(ctx context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.Acked = append(d.queue.Acked, d.msg.Envelope)
	return nil
}

func (d *memoryDelivery) Retry(ctx context.Context) error {
	d.queue.mu.Lock()
	d.queue.pending = append(d.queue.pending, d.msg)
	d.queue.mu.Unlock()
	d.queue.notify <- struct{}{}
	return nil
}

func (d *memoryDelivery) DeadLetter(ctx context.Context) error {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	d.queue.Dead = append(d.queue.Dead, d.msg.Envelope)
	return nil
}

// MemoryScheduler is an in-memory DelayScheduler for tests; it records
// schedules without ever firing them.
type MemoryScheduler struct {
	mu        sync.Mutex
	Scheduled []*ScheduledMessage
}

// NewMemoryScheduler creates an empty MemoryScheduler.
func NewMemoryScheduler() *MemoryScheduler {
	return &MemoryScheduler{}
}

func (s *MemoryScheduler) Schedule(ctx context.Context, at time.Time, groupID string, env *Envelope) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := &ScheduledMessage{HandleID: uuid.New().String(), At: at, GroupID: groupID, Envelope: env}
	s.Scheduled = append(s.Scheduled, msg)
	return msg.HandleID, nil
}
