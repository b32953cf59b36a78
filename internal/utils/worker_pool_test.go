package utils

import (
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestWorkerPool_RunsJobs(t *testing.T) {
	pool := NewWorkerPool(2, 4, zerolog.Nop())

	var count atomic.Int32
	for i := 0; i < 10; i++ {
		assert.NoError(t, pool.Submit("count", func() { count.Add(1) }))
	}
	pool.Shutdown()

	assert.Equal(t, int32(10), count.Load())
}

func TestWorkerPool_SurvivesPanics(t *testing.T) {
	pool := NewWorkerPool(1, 1, zerolog.Nop())

	var ran atomic.Bool
	assert.NoError(t, pool.Submit("boom", func() { panic("boom") }))
	assert.NoError(t, pool.Submit("after", func() { ran.Store(true) }))
	pool.Shutdown()

	assert.True(t, ran.Load())
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	pool := NewWorkerPool(1, 1, zerolog.Nop())
	pool.Shutdown()
	pool.Shutdown()

	assert.ErrorIs(t, pool.Submit("late", func() {}), ErrPoolClosed)
}

func TestPreview(t *testing.T) {
	assert.Equal(t, "hello", Preview([]byte("hello"), 10))
	assert.Equal(t, "he... (truncated)", Preview([]byte("hello"), 2))
	assert.Equal(t, "hello", Preview([]byte("hello"), 0))
	assert.Len(t, SliceToSet([]string{"a", "b", "a"}), 2)
}
