package observe

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func collect[T any](ch <-chan T, n int, timeout time.Duration) []T {
	var out []T
	deadline := time.After(timeout)
	for len(out) < n {
		select {
		case v, ok := <-ch:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-deadline:
			return out
		}
	}
	return out
}

func TestSubject_ReplaysCurrentValue(t *testing.T) {
	s := NewSubject("initial")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	assert.Equal(t, []string{"initial"}, collect(ch, 1, time.Second))
}

func TestSubject_DeliversInOrderWithoutDrops(t *testing.T) {
	s := NewSubject(0)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch := s.Subscribe(ctx)
	for i := 1; i <= 100; i++ {
		s.Next(i)
	}

	got := collect(ch, 101, 2*time.Second)
	require.Len(t, got, 101)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSubject_CompleteClosesAfterDrain(t *testing.T) {
	s := NewSubject(1)
	ch := s.Subscribe(context.Background())
	s.Next(2)
	s.Complete()

	got := collect(ch, 10, time.Second)
	assert.Equal(t, []int{1, 2}, got)

	_, ok := <-ch
	assert.False(t, ok)
	assert.False(t, s.Next(3), "Next after Complete must be ignored")
	assert.Equal(t, 2, s.Value())
}

func TestSubject_SubscribeAfterComplete(t *testing.T) {
	s := NewSubject("last")
	s.Complete()

	got := collect(s.Subscribe(context.Background()), 5, time.Second)
	assert.Equal(t, []string{"last"}, got)
}

func TestSubject_CancelUnsubscribes(t *testing.T) {
	s := NewSubject(0)
	ctx, cancel := context.WithCancel(context.Background())
	ch := s.Subscribe(ctx)
	<-ch
	require.Equal(t, 1, s.Subscribers())

	cancel()
	for range ch {
	}
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSubject_Update(t *testing.T) {
	s := NewSubject(1)
	assert.True(t, s.Update(func(cur int) (int, bool) { return cur + 1, true }))
	assert.False(t, s.Update(func(cur int) (int, bool) { return cur, false }))
	assert.Equal(t, 2, s.Value())
}

func TestFirst_WaitsForPredicate(t *testing.T) {
	s := NewSubject(0)
	go func() {
		for i := 1; i <= 5; i++ {
			s.Next(i)
		}
	}()

	v, err := First(context.Background(), s, func(v int) bool { return v >= 3 })
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Eventually(t, func() bool { return s.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestFirst_Completed(t *testing.T) {
	s := NewSubject(0)
	s.Complete()

	_, err := First(context.Background(), s, func(v int) bool { return v > 0 })
	assert.True(t, errors.Is(err, ErrCompleted))
}

func TestFirst_ContextCanceled(t *testing.T) {
	s := NewSubject(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := First(ctx, s, func(v int) bool { return v > 0 })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
