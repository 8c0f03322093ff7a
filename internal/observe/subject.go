// Package observe provides a small current-value subject: a holder that
// always has a value, fans every change out to its subscribers in order, and
// can be completed. It is the building block for request state and for the
// page state holders.
package observe

import (
	"context"
	"errors"
	"sync"
)

// ErrCompleted is returned by First when the subject completes before a
// matching value was observed.
var ErrCompleted = errors.New("subject completed")

// Subject holds a current value and broadcasts changes. The zero value is not
// usable; use NewSubject.
type Subject[T any] struct {
	mu        sync.Mutex
	value     T
	completed bool
	subs      map[int]*subscriber[T]
	nextID    int
}

// NewSubject returns a subject whose current value is initial.
func NewSubject[T any](initial T) *Subject[T] {
	return &Subject[T]{
		value: initial,
		subs:  make(map[int]*subscriber[T]),
	}
}

// Value returns the current value.
func (s *Subject[T]) Value() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Next replaces the current value and queues it for every subscriber.
// Calls after Complete are ignored and report false.
func (s *Subject[T]) Next(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	s.value = v
	for _, sub := range s.subs {
		sub.push(v)
	}
	return true
}

// Update applies fn to the current value under the subject lock and publishes
// the result. fn returning false leaves the subject untouched.
func (s *Subject[T]) Update(fn func(cur T) (T, bool)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return false
	}
	next, ok := fn(s.value)
	if !ok {
		return false
	}
	s.value = next
	for _, sub := range s.subs {
		sub.push(next)
	}
	return true
}

// Complete stops the subject. Subscribers receive whatever is still queued
// and then see their channel closed.
func (s *Subject[T]) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completed {
		return
	}
	s.completed = true
	for id, sub := range s.subs {
		sub.finish()
		delete(s.subs, id)
	}
}

// Completed reports whether Complete was called.
func (s *Subject[T]) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completed
}

// Subscribers returns the number of live subscriptions.
func (s *Subject[T]) Subscribers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Subscribe returns a channel that first yields the current value and then
// every subsequent value, in order and without drops. The channel is closed
// when ctx is done or the subject completes. Cancel ctx to unsubscribe.
func (s *Subject[T]) Subscribe(ctx context.Context) <-chan T {
	sub := &subscriber[T]{
		signal: make(chan struct{}, 1),
		out:    make(chan T),
	}

	s.mu.Lock()
	sub.push(s.value)
	if s.completed {
		sub.finish()
		s.mu.Unlock()
		go sub.pump(ctx, func() {})
		return sub.out
	}
	id := s.nextID
	s.nextID++
	s.subs[id] = sub
	s.mu.Unlock()

	go sub.pump(ctx, func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	})
	return sub.out
}

// First blocks until the subject holds a value satisfying pred and returns
// it. The internal subscription is released before returning.
func First[T any](ctx context.Context, s *Subject[T], pred func(T) bool) (T, error) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var zero T
	for v := range s.Subscribe(subCtx) {
		if pred(v) {
			return v, nil
		}
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, ErrCompleted
}

type subscriber[T any] struct {
	mu     sync.Mutex
	queue  []T
	done   bool
	signal chan struct{}
	out    chan T
}

func (sub *subscriber[T]) push(v T) {
	sub.mu.Lock()
	sub.queue = append(sub.queue, v)
	sub.mu.Unlock()
	sub.wake()
}

func (sub *subscriber[T]) finish() {
	sub.mu.Lock()
	sub.done = true
	sub.mu.Unlock()
	sub.wake()
}

func (sub *subscriber[T]) wake() {
	select {
	case sub.signal <- struct{}{}:
	default:
	}
}

// pump moves queued values to out until the subscriber is finished and
// drained, or ctx is done.
func (sub *subscriber[T]) pump(ctx context.Context, detach func()) {
	defer close(sub.out)
	defer detach()

	for {
		sub.mu.Lock()
		pending := sub.queue
		sub.queue = nil
		done := sub.done
		sub.mu.Unlock()

		for _, v := range pending {
			select {
			case sub.out <- v:
			case <-ctx.Done():
				return
			}
		}
		if len(pending) > 0 {
			continue
		}
		if done {
			return
		}

		select {
		case <-sub.signal:
		case <-ctx.Done():
			return
		}
	}
}
