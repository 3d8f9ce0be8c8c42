package msgqueue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/pool"
	"github.com/x64dbg/bridge/wire"
)

// ErrClosed is returned by operations on a closed queue.
var ErrClosed = errors.Closed(errors.PhaseQueue, "queue")

// Queue is a thread-safe message queue. The zero value is not usable; create
// queues with New.
type Queue struct {
	mu         sync.Mutex
	entries    *pool.Pool[Message]
	pending    []pool.Handle
	head       int
	capacity   int
	discipline Discipline
	closed     bool

	// notify holds at most one wake-up token; done is closed by Close.
	notify chan struct{}
	done   chan struct{}

	logger *zap.Logger
	drain  func(Message)
}

// Option configures a Queue.
type Option func(*config)

type config struct {
	capacity   int
	discipline Discipline
	poolOpts   []pool.Option
	logger     *zap.Logger
	drain      func(Message)
}

// WithCapacity bounds the queue to n pending messages. 0 means unbounded.
func WithCapacity(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.capacity = n
		}
	}
}

// WithDiscipline sets the receive order.
func WithDiscipline(d Discipline) Option {
	return func(c *config) {
		c.discipline = d
	}
}

// WithBatchSize sets how many entries each pool slab holds.
func WithBatchSize(n int) Option {
	return func(c *config) {
		c.poolOpts = append(c.poolOpts, pool.WithBatchSize(n))
	}
}

// WithMaxSlabs caps entry pool growth. Send reports an allocation error
// once the cap is reached.
func WithMaxSlabs(n int) Option {
	return func(c *config) {
		c.poolOpts = append(c.poolOpts, pool.WithMaxSlabs(n))
	}
}

// WithLogger sets the queue logger. Defaults to the package logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) {
		c.logger = l
	}
}

// WithDrainHandler receives every message still pending when the queue is
// closed, in receive order. Without one they are discarded.
func WithDrainHandler(fn func(Message)) Option {
	return func(c *config) {
		c.drain = fn
	}
}

// New creates an empty queue.
func New(opts ...Option) *Queue {
	c := config{discipline: FIFO}
	for _, opt := range opts {
		opt(&c)
	}
	if c.logger == nil {
		c.logger = Logger()
	}
	return &Queue{
		entries:    pool.New[Message](c.poolOpts...),
		capacity:   c.capacity,
		discipline: c.discipline,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
		logger:     c.logger,
		drain:      c.drain,
	}
}

func (q *Queue) size() int {
	return len(q.pending) - q.head
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Send enqueues a message. It never blocks. A full bounded queue yields
// false with a nil error and is left unchanged. A closed queue yields
// ErrClosed; failure to allocate an entry yields the pool's allocation
// error.
func (q *Queue) Send(kind int32, param1, param2 uint64) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false, ErrClosed
	}
	if q.capacity > 0 && q.size() >= q.capacity {
		q.logger.Debug("queue full, message rejected",
			zap.Int32("kind", kind),
			zap.Int("capacity", q.capacity))
		return false, nil
	}

	h, err := q.entries.Allocate()
	if err != nil {
		q.logger.Error("queue entry allocation failed", zap.Error(err))
		return false, err
	}
	*q.entries.Get(h) = Message{Kind: kind, Param1: param1, Param2: param2}
	q.pending = append(q.pending, h)
	q.signal()
	return true, nil
}

// pop removes the next message per discipline. Caller holds mu and has
// checked size() > 0.
func (q *Queue) pop() Message {
	var h pool.Handle
	if q.discipline == LIFO {
		last := len(q.pending) - 1
		h = q.pending[last]
		q.pending = q.pending[:last]
	} else {
		h = q.pending[q.head]
		q.pending[q.head] = 0
		q.head++
	}
	if q.head == len(q.pending) {
		q.pending = q.pending[:0]
		q.head = 0
	} else if q.head > 64 && q.head*2 > len(q.pending) {
		n := copy(q.pending, q.pending[q.head:])
		q.pending = q.pending[:n]
		q.head = 0
	}
	m := *q.entries.Get(h)
	q.entries.Deallocate(h)
	return m
}

// TryReceive removes and returns the next message, or false when the queue
// is empty or closed.
func (q *Queue) TryReceive() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.size() == 0 {
		return Message{}, false
	}
	m := q.pop()
	if q.size() > 0 {
		// Pass the token on so another waiter sees the rest.
		q.signal()
	}
	return m, true
}

// WaitReceive blocks until a message is available, ctx is done, or the queue
// is closed. It returns ctx.Err() or ErrClosed in the latter cases.
func (q *Queue) WaitReceive(ctx context.Context) (Message, error) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return Message{}, ErrClosed
		}
		if q.size() > 0 {
			m := q.pop()
			if q.size() > 0 {
				q.signal()
			}
			q.mu.Unlock()
			return m, nil
		}
		q.mu.Unlock()

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

// DrainToWire moves up to limit pending messages (all when limit <= 0) into a
// wire list allocated through b, in receive order. The caller owns the
// returned handle. On allocation failure the messages stay queued.
func (q *Queue) DrainToWire(b *wire.Boundary, limit int) (wire.ListHandle, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return wire.ListHandle{}, ErrClosed
	}
	n := q.size()
	if limit > 0 && n > limit {
		n = limit
	}
	msgs := make([]Message, n)
	for i := range msgs {
		msgs[i] = *q.entries.Get(q.peek(i))
	}
	h, err := wire.CopyData(b, Codec, msgs)
	if err != nil {
		return wire.ListHandle{}, err
	}
	for range msgs {
		q.pop()
	}
	return h, nil
}

// peek returns the handle i positions from the receive end.
func (q *Queue) peek(i int) pool.Handle {
	if q.discipline == LIFO {
		return q.pending[len(q.pending)-1-i]
	}
	return q.pending[q.head+i]
}

// Close marks the queue closed, wakes every waiter and drains pending
// messages into the drain handler. Entries are released. Close is
// idempotent.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	var leftover []Message
	for q.size() > 0 {
		leftover = append(leftover, q.pop())
	}
	q.entries.Close()
	drain := q.drain
	q.mu.Unlock()

	q.logger.Debug("queue closed", zap.Int("drained", len(leftover)))
	if drain != nil {
		for _, m := range leftover {
			drain(m)
		}
	}
}

// Closed reports whether Close has been called.
func (q *Queue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size()
}

// Cap returns the capacity, 0 when unbounded.
func (q *Queue) Cap() int {
	return q.capacity
}

// Discipline returns the receive order.
func (q *Queue) Discipline() Discipline {
	return q.discipline
}
