package auth

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLoop(t *testing.T) *loop {
	t.Helper()
	l := newLoop(slog.New(slog.DiscardHandler))
	t.Cleanup(l.close)
	return l
}

func flushLoop(t *testing.T, l *loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.flush(ctx))
}

func TestLoopRunsInOrder(t *testing.T) {
	l := newTestLoop(t)
	var got []int
	for i := 0; i < 100; i++ {
		require.True(t, l.submit(func() { got = append(got, i) }))
	}
	flushLoop(t, l)
	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestLoopFlushWaitsForNestedTasks(t *testing.T) {
	l := newTestLoop(t)
	var got []string
	l.submit(func() {
		got = append(got, "outer")
		l.submit(func() {
			got = append(got, "inner")
			l.submit(func() { got = append(got, "innermost") })
		})
	})
	flushLoop(t, l)
	assert.Equal(t, []string{"outer", "inner", "innermost"}, got)
}

func TestLoopRecoversPanics(t *testing.T) {
	l := newTestLoop(t)
	ran := false
	l.submit(func() { panic("boom") })
	l.submit(func() { ran = true })
	flushLoop(t, l)
	assert.True(t, ran)
}

func TestLoopConcurrentSubmitters(t *testing.T) {
	l := newTestLoop(t)
	var (
		wg sync.WaitGroup
		n  int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				l.submit(func() { n++ })
			}
		}()
	}
	wg.Wait()
	flushLoop(t, l)
	assert.Equal(t, 400, n)
}

func TestLoopCloseDrainsThenRejects(t *testing.T) {
	l := newLoop(slog.New(slog.DiscardHandler))
	var n int
	for i := 0; i < 10; i++ {
		l.submit(func() { n++ })
	}
	l.close()
	assert.Equal(t, 10, n)
	assert.False(t, l.submit(func() { n++ }))
	assert.ErrorIs(t, l.flush(context.Background()), ErrClosed)
}
