package realtime

import "sync"

// Subscriber is one websocket connection with a bounded send queue.
// Send is never closed so concurrent emitters cannot panic.
type Subscriber struct {
	ID   string
	Send chan Envelope

	done      chan struct{}
	closeOnce sync.Once
}

// NewSubscriber creates a subscriber buffering up to queueSize frames
func NewSubscriber(id string, queueSize int) *Subscriber {
	if queueSize <= 0 {
		queueSize = 16
	}
	return &Subscriber{
		ID:   id,
		Send: make(chan Envelope, queueSize),
		done: make(chan struct{}),
	}
}

// Done is closed once the subscriber shuts down
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Close signals shutdown, idempotent
func (s *Subscriber) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// deliver queues env without blocking, reporting whether it was queued
func (s *Subscriber) deliver(env Envelope) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.Send <- env:
		return true
	default:
		return false
	}
}
