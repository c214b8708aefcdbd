// Package memory provides an in-process implementation of the queue contract.
// This is useful for testing and development without external dependencies.
//
// A Broker holds the messages and is shared by every session created from it,
// so producers and consumers in the same process see one channel.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"dos-queue/internal/queue"
)

type entry struct {
	id       string
	body     []byte
	owner    *Queue
	deadline time.Time
}

// Broker is the shared message store behind memory sessions.
// It is safe for concurrent use.
type Broker struct {
	mu         sync.Mutex
	ready      []*entry
	inflight   map[string]*entry
	capacity   int
	visibility time.Duration
	seq        uint64
	closed     bool

	// wake is closed and replaced whenever a message becomes available.
	wake chan struct{}
}

// NewBroker creates a broker holding at most capacity messages. Delivered
// messages that are not acknowledged within visibility become available again.
func NewBroker(capacity int, visibility time.Duration) *Broker {
	return &Broker{
		inflight:   make(map[string]*entry),
		capacity:   capacity,
		visibility: visibility,
		wake:       make(chan struct{}),
	}
}

// broadcast wakes every waiting Dequeue. Caller must hold b.mu.
func (b *Broker) broadcast() {
	close(b.wake)
	b.wake = make(chan struct{})
}

// reclaimExpired returns timed out deliveries to the front of the queue.
// Caller must hold b.mu.
func (b *Broker) reclaimExpired(now time.Time) {
	var expired []*entry
	for token, e := range b.inflight {
		if !e.deadline.After(now) {
			delete(b.inflight, token)
			expired = append(expired, e)
		}
	}
	if len(expired) > 0 {
		b.ready = append(expired, b.ready...)
	}
}

// release puts every in-flight message owned by q back in the queue.
func (b *Broker) release(q *Queue) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var returned []*entry
	for token, e := range b.inflight {
		if e.owner == q {
			delete(b.inflight, token)
			returned = append(returned, e)
		}
	}
	if len(returned) > 0 {
		b.ready = append(returned, b.ready...)
		b.broadcast()
	}
}

// Len returns the number of messages waiting for delivery.
// Useful for testing to verify queue state.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ready)
}

// Close shuts the broker down; pending messages are discarded.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.ready = nil
	b.inflight = make(map[string]*entry)
	b.broadcast()
	return nil
}

// Queue is a session on a Broker. It implements queue.Queue.
type Queue struct {
	broker       *Broker
	blockTimeout time.Duration
	open         bool
}

// NewQueue creates an unopened session on broker. Dequeue waits at most
// blockTimeout for a message.
func NewQueue(broker *Broker, blockTimeout time.Duration) *Queue {
	return &Queue{
		broker:       broker,
		blockTimeout: blockTimeout,
	}
}

// Open marks the session usable. The broker needs no setup.
func (q *Queue) Open(ctx context.Context) error {
	q.broker.mu.Lock()
	closed := q.broker.closed
	q.broker.mu.Unlock()

	if closed {
		return ErrBrokerClosed
	}
	q.open = true
	return nil
}

// Close ends the session. Messages it received but never acknowledged are
// made available again, as a crashed consumer's would be.
func (q *Queue) Close() error {
	if !q.open {
		return nil
	}
	q.open = false
	q.broker.release(q)
	return nil
}

// IsHealthy reports whether the session is open on a live broker.
func (q *Queue) IsHealthy(ctx context.Context) bool {
	if !q.open {
		return false
	}
	q.broker.mu.Lock()
	defer q.broker.mu.Unlock()
	return !q.broker.closed
}

// Enqueue appends a copy of msg to the broker.
func (q *Queue) Enqueue(ctx context.Context, msg []byte) (string, error) {
	if !q.open {
		return "", queue.ErrNotOpen
	}

	b := q.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return "", ErrBrokerClosed
	}
	if b.capacity > 0 && len(b.ready)+len(b.inflight) >= b.capacity {
		return "", ErrBrokerFull
	}

	b.seq++
	e := &entry{
		id:   strconv.FormatUint(b.seq, 10),
		body: append([]byte(nil), msg...),
	}
	b.ready = append(b.ready, e)
	b.broadcast()

	return e.id, nil
}

// Dequeue returns the oldest available message, waiting up to the block timeout.
func (q *Queue) Dequeue(ctx context.Context) (*queue.Delivery, error) {
	if !q.open {
		return nil, queue.ErrNotOpen
	}

	timer := time.NewTimer(q.blockTimeout)
	defer timer.Stop()

	b := q.broker
	for {
		b.mu.Lock()
		if b.closed {
			b.mu.Unlock()
			return nil, ErrBrokerClosed
		}

		now := time.Now()
		b.reclaimExpired(now)

		if len(b.ready) > 0 {
			e := b.ready[0]
			b.ready = b.ready[1:]
			e.owner = q
			e.deadline = now.Add(b.visibility)
			token := uuid.NewString()
			b.inflight[token] = e
			b.mu.Unlock()

			return &queue.Delivery{
				ID:       e.id,
				Body:     append([]byte(nil), e.body...),
				AckToken: token,
			}, nil
		}

		wake := b.wake
		b.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return nil, nil
		case <-wake:
		}
	}
}

// Acknowledge removes the delivery identified by token. Unknown tokens are ignored.
func (q *Queue) Acknowledge(ctx context.Context, token string) error {
	if !q.open {
		return queue.ErrNotOpen
	}

	b := q.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.inflight, token)
	return nil
}

// Stats reports waiting and in-flight message counts.
func (q *Queue) Stats(ctx context.Context) (queue.Stats, error) {
	b := q.broker
	b.mu.Lock()
	defer b.mu.Unlock()

	return queue.Stats{
		Backlog:  int64(len(b.ready)),
		InFlight: int64(len(b.inflight)),
	}, nil
}
