package remotedata

import (
	"context"
	"errors"
	"fmt"

	"github.com/dspace-go/dsfront/internal/observe"
	"github.com/dspace-go/dsfront/internal/request"
)

// ErrNoValue is returned when a stream completes without ever reaching a
// terminal state, e.g. because the service shut down.
var ErrNoValue = errors.New("remote data stream completed without a terminal value")

// Stream is a live view of one RemoteData value. All consumers of the same
// stream observe the same transitions.
type Stream[T any] struct {
	subject *observe.Subject[RemoteData[T]]
}

// NewStream wraps a subject.
func NewStream[T any](s *observe.Subject[RemoteData[T]]) *Stream[T] {
	return &Stream[T]{subject: s}
}

// Of returns an already completed stream holding rd.
func Of[T any](rd RemoteData[T]) *Stream[T] {
	s := observe.NewSubject(rd)
	s.Complete()
	return &Stream[T]{subject: s}
}

// Current returns the latest value.
func (s *Stream[T]) Current() RemoteData[T] {
	return s.subject.Value()
}

// Subscribe yields the current value and every later one. The channel closes
// after the terminal value or when ctx is done.
func (s *Stream[T]) Subscribe(ctx context.Context) <-chan RemoteData[T] {
	return s.subject.Subscribe(ctx)
}

// Subject exposes the underlying subject.
func (s *Stream[T]) Subject() *observe.Subject[RemoteData[T]] {
	return s.subject
}

// FirstCompleted waits for the first value that has succeeded or failed.
// It yields exactly one value; the internal subscription ends with it.
func FirstCompleted[T any](ctx context.Context, s *Stream[T]) (RemoteData[T], error) {
	rd, err := observe.First(ctx, s.subject, func(rd RemoteData[T]) bool {
		return rd.HasCompleted()
	})
	if errors.Is(err, observe.ErrCompleted) {
		return rd, ErrNoValue
	}
	return rd, err
}

// FirstSucceeded waits for completion and returns the value only when it
// succeeded. A failure is returned as a *FailedError.
func FirstSucceeded[T any](ctx context.Context, s *Stream[T]) (RemoteData[T], error) {
	rd, err := FirstCompleted(ctx, s)
	if err != nil {
		return rd, err
	}
	if rd.HasFailed() {
		return rd, rd.Err()
	}
	return rd, nil
}

// FirstSucceededPayload unwraps the payload of the first successful value.
func FirstSucceededPayload[T any](ctx context.Context, s *Stream[T]) (T, error) {
	rd, err := FirstSucceeded(ctx, s)
	if err != nil {
		var zero T
		return zero, err
	}
	return rd.Payload, nil
}

// FirstSucceededListPayload unwraps the page of the first successful list.
func FirstSucceededListPayload[T any](ctx context.Context, s *Stream[PaginatedList[T]]) ([]T, error) {
	list, err := FirstSucceededPayload(ctx, s)
	if err != nil {
		return nil, err
	}
	return list.Page, nil
}

// OnFirstCompleted runs fn once, in its own goroutine, with the first
// completed value. It returns immediately; cancel ctx to drop the callback.
// The returned channel is closed after fn returned or was dropped.
func OnFirstCompleted[T any](ctx context.Context, s *Stream[T], fn func(RemoteData[T])) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if rd, err := FirstCompleted(ctx, s); err == nil {
			fn(rd)
		}
	}()
	return done
}

// Map derives a stream whose payload is transformed by fn once the source
// succeeds. fn errors turn the derived value into a failure.
func Map[T, U any](ctx context.Context, src *Stream[T], fn func(T) (U, error)) *Stream[U] {
	cur := src.Current()
	out := observe.NewSubject(convert(cur, fn))
	go func() {
		defer out.Complete()
		for rd := range src.Subscribe(ctx) {
			out.Next(convert(rd, fn))
		}
	}()
	return &Stream[U]{subject: out}
}

func convert[T, U any](rd RemoteData[T], fn func(T) (U, error)) RemoteData[U] {
	out := RemoteData[U]{
		RequestID:     rd.RequestID,
		State:         rd.State,
		StatusCode:    rd.StatusCode,
		ErrorMessage:  rd.ErrorMessage,
		TimeCompleted: rd.TimeCompleted,
		MsToLive:      rd.MsToLive,
	}
	if rd.HasSucceeded() {
		p, err := fn(rd.Payload)
		if err != nil {
			out.State = request.StateError
			out.ErrorMessage = fmt.Sprintf("map payload: %v", err)
			return out
		}
		out.Payload = p
	}
	return out
}
