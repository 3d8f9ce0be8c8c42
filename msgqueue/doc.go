// Package msgqueue is a thread-safe queue of small fixed-size messages
// between a producer goroutine, typically the debug event loop, and one or
// more consumers.
//
// A queue is bounded (WithCapacity) or unbounded. A bounded queue at
// capacity rejects Send without blocking: Send returns false and a nil
// error, and the queue is left unchanged. This is backpressure, not a
// failure; the caller decides whether to retry or drop.
//
// Ordering is chosen at construction: FIFO (the default) delivers messages
// in send order, LIFO delivers the most recent first.
//
// Only WaitReceive blocks. It returns when a message arrives, when its
// context is done, or when the queue is closed, so shutdown never strands a
// consumer. It must not be called from the producing goroutine.
//
// # Memory
//
// Entries are slots of a pool.Pool[Message] guarded by the queue mutex. They
// are taken on Send and returned on receive or Close.
package msgqueue
