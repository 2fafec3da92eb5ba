// Package queue is the dispatch queue between connection handlers and the
// dispatch worker: unbounded, FIFO, many senders, one receiver.
package queue

import (
	"context"
	"sync"

	"github.com/mattjoyce/knock/internal/protocol"
)

// Queue holds pending messages. Only one goroutine may call Recv.
type Queue struct {
	mu         sync.Mutex
	items      []protocol.Message
	senders    int
	recvClosed bool

	// notify wakes the receiver. Capacity 1: a pending wake-up is enough.
	notify chan struct{}
}

// Sender is a producer handle. Clone it for each producer; the queue reports
// ErrNoSenders to the receiver after the last handle is closed.
type Sender struct {
	q    *Queue
	once sync.Once

	mu     sync.Mutex
	closed bool
}

// New creates an empty queue and its first Sender.
func New() (*Queue, *Sender) {
	q := &Queue{notify: make(chan struct{}, 1)}
	q.senders = 1
	return q, &Sender{q: q}
}

// Clone returns a new handle on the same queue.
func (s *Sender) Clone() *Sender {
	s.q.mu.Lock()
	s.q.senders++
	s.q.mu.Unlock()
	return &Sender{q: s.q}
}

// Send appends msg. It never blocks.
func (s *Sender) Send(msg protocol.Message) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSenderClosed
	}

	q := s.q
	q.mu.Lock()
	if q.recvClosed {
		q.mu.Unlock()
		return ErrReceiverGone
	}
	q.items = append(q.items, msg)
	q.mu.Unlock()

	q.wake()
	return nil
}

// Close releases the handle. It is safe to call more than once.
func (s *Sender) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		s.q.mu.Lock()
		s.q.senders--
		last := s.q.senders == 0
		s.q.mu.Unlock()

		if last {
			s.q.wake()
		}
	})
}

// Recv blocks until a message is available, every sender is gone
// (ErrNoSenders), or ctx is done.
func (q *Queue) Recv(ctx context.Context) (protocol.Message, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = protocol.Message{}
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, nil
		}
		noSenders := q.senders == 0
		q.mu.Unlock()

		if noSenders {
			return protocol.Message{}, ErrNoSenders
		}

		select {
		case <-ctx.Done():
			return protocol.Message{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Close marks the receiving side gone. Pending messages are dropped and
// later sends fail with ErrReceiverGone.
func (q *Queue) Close() {
	q.mu.Lock()
	q.recvClosed = true
	q.items = nil
	q.mu.Unlock()
}

// Len returns the number of pending messages.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
