// Package command carries debugger command lines from any goroutine to a
// single command loop.
//
// Exec copies the command into a pooled slot and queues the slot handle;
// the loop (Next or Run) takes the slot, frees it and hands the string to a
// handler. Commands are delivered in submission order.
package command

import (
	"context"
	stderrors "errors"
	"sync"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/x64dbg/bridge/errors"
	"github.com/x64dbg/bridge/msgqueue"
	"github.com/x64dbg/bridge/pool"
)

// MaxCommandLength is the size of the command buffer, terminator included.
// Longer commands are truncated to MaxCommandLength-1 bytes.
const MaxCommandLength = 1024

// KindCommand tags queue messages that carry a command slot.
const KindCommand int32 = 1

// ErrClosed is returned once the channel has been closed.
var ErrClosed = errors.Closed(errors.PhaseCommand, "command channel")

// Handler executes one command line.
type Handler func(ctx context.Context, cmd string) error

// Channel is safe for concurrent Exec; Next and Run are meant for one loop.
type Channel struct {
	mu     sync.Mutex
	slots  *pool.Pool[string]
	queue  *msgqueue.Queue
	logger *zap.Logger
}

// Option configures a Channel.
type Option func(*options)

type options struct {
	capacity  int
	logger    *zap.Logger
	queueOpts []msgqueue.Option
	slotOpts  []pool.Option
}

// WithCapacity bounds the number of queued commands. 0 means unbounded.
func WithCapacity(n int) Option {
	return func(o *options) {
		o.capacity = n
	}
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithQueueOptions configures the underlying queue, such as its discipline
// or entry pool limits. Capacity, logger and drain handler are set by the
// channel and override anything given here.
func WithQueueOptions(opts ...msgqueue.Option) Option {
	return func(o *options) {
		o.queueOpts = append(o.queueOpts, opts...)
	}
}

// WithSlotOptions configures the pool holding queued command strings.
func WithSlotOptions(opts ...pool.Option) Option {
	return func(o *options) {
		o.slotOpts = append(o.slotOpts, opts...)
	}
}

// New creates an open channel.
func New(opts ...Option) *Channel {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	c := &Channel{
		slots:  pool.New[string](append([]pool.Option{pool.WithBatchSize(64)}, o.slotOpts...)...),
		logger: o.logger,
	}
	c.queue = msgqueue.New(append(o.queueOpts,
		msgqueue.WithCapacity(o.capacity),
		msgqueue.WithLogger(o.logger),
		msgqueue.WithDrainHandler(c.discard),
	)...)
	return c
}

// Exec queues cmd for the command loop. It returns false with a nil error
// when the channel is full.
func (c *Channel) Exec(cmd string) (bool, error) {
	c.mu.Lock()
	h, err := c.slots.Allocate()
	if err != nil {
		c.mu.Unlock()
		return false, err
	}
	*c.slots.Get(h) = cmd
	c.mu.Unlock()

	ok, err := c.queue.Send(KindCommand, uint64(h), 0)
	if !ok || err != nil {
		c.release(h)
		if stderrors.Is(err, msgqueue.ErrClosed) {
			return false, ErrClosed
		}
		return false, err
	}
	return true, nil
}

func (c *Channel) take(h pool.Handle) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	cmd := *c.slots.Get(h)
	c.slots.Deallocate(h)
	return cmd
}

func (c *Channel) release(h pool.Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.slots.Valid(h) {
		c.slots.Deallocate(h)
	}
}

func (c *Channel) discard(m msgqueue.Message) {
	if m.Kind != KindCommand {
		return
	}
	cmd := c.take(pool.Handle(m.Param1))
	c.logger.Debug("dropped pending command", zap.String("cmd", cmd))
}

// Next waits for the next command. It returns ctx.Err() when ctx is done and
// ErrClosed once the channel is closed.
func (c *Channel) Next(ctx context.Context) (string, error) {
	for {
		m, err := c.queue.WaitReceive(ctx)
		if err != nil {
			if stderrors.Is(err, msgqueue.ErrClosed) {
				return "", ErrClosed
			}
			return "", err
		}
		if m.Kind != KindCommand {
			c.logger.Warn("ignoring non-command message", zap.Stringer("msg", m))
			continue
		}
		cmd := c.take(pool.Handle(m.Param1))
		if len(cmd) > MaxCommandLength-1 {
			c.logger.Warn("command truncated",
				zap.Int("length", len(cmd)),
				zap.Int("max", MaxCommandLength-1))
			cmd = truncate(cmd, MaxCommandLength-1)
		}
		return cmd, nil
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Run executes commands with handler until ctx is done or the channel is
// closed. Handler errors are logged and do not stop the loop. Run returns
// nil after Close and ctx.Err() on cancellation.
func (c *Channel) Run(ctx context.Context, handler Handler) error {
	for {
		cmd, err := c.Next(ctx)
		if err != nil {
			if stderrors.Is(err, ErrClosed) {
				return nil
			}
			return err
		}
		if err := handler(ctx, cmd); err != nil {
			c.logger.Warn("command failed", zap.String("cmd", cmd), zap.Error(err))
		}
	}
}

// Pending returns the number of queued commands.
func (c *Channel) Pending() int {
	return c.queue.Len()
}

// Close stops the channel and frees every pending command.
func (c *Channel) Close() {
	c.queue.Close()
}
