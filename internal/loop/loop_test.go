package loop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startLoop(t *testing.T) *Loop {
	t.Helper()
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = l.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return l
}

func TestLoop_RunsEventsInFIFOOrder(t *testing.T) {
	l := startLoop(t)

	var got []int
	finished := make(chan struct{})
	for i := 1; i <= 5; i++ {
		i := i
		require.True(t, l.Post("step", func() { got = append(got, i) }))
	}
	l.Post("done", func() { close(finished) })

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("loop did not process events")
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5}, got)
}

func TestLoop_ContinuationsNeverOverlap(t *testing.T) {
	l := startLoop(t)

	var (
		mu      sync.Mutex
		active  int
		overlap bool
		wg      sync.WaitGroup
	)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				done := make(chan struct{})
				l.Post("work", func() {
					mu.Lock()
					active++
					if active > 1 {
						overlap = true
					}
					mu.Unlock()
					time.Sleep(10 * time.Microsecond)
					mu.Lock()
					active--
					mu.Unlock()
					close(done)
				})
				<-done
			}
		}()
	}
	wg.Wait()
	assert.False(t, overlap, "two continuations ran at the same time")
}

func TestLoop_PostFromInsideContinuation(t *testing.T) {
	l := startLoop(t)

	finished := make(chan string, 1)
	l.Post("outer", func() {
		l.Post("inner", func() { finished <- "inner" })
	})

	select {
	case v := <-finished:
		assert.Equal(t, "inner", v)
	case <-time.After(time.Second):
		t.Fatal("nested post deadlocked")
	}
}

func TestLoop_SurvivesPanickingContinuation(t *testing.T) {
	l := startLoop(t)

	finished := make(chan struct{})
	l.Post("bad", func() { panic("boom") })
	l.Post("good", func() { close(finished) })

	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("loop stopped after panic")
	}
}

func TestLoop_StopDrainsQueuedEvents(t *testing.T) {
	l := New()
	var ran []string
	l.Post("a", func() { ran = append(ran, "a") })
	l.Post("b", func() { ran = append(ran, "b") })
	l.Stop()

	assert.False(t, l.Post("late", func() { ran = append(ran, "late") }))

	err := l.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ran)
}

func TestLoop_ContextCancel(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, l.Run(ctx), context.Canceled)
	assert.False(t, l.Post("after", func() {}))
}

func TestLoop_SeqIsMonotonic(t *testing.T) {
	l := New()
	l.Post("a", func() {})
	l.Post("b", func() {})
	assert.Equal(t, int64(2), l.Seq())
	assert.Equal(t, 2, l.Pending())
}

func TestClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, int64(0), c.Current())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(2), c.Next())
	assert.Equal(t, int64(2), c.Current())
}
