package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConstantBackoff(t *testing.T) {
	b := ConstantBackoff{Delay: 2500 * time.Millisecond}
	for attempt := 1; attempt <= 11; attempt++ {
		assert.Equal(t, 2500*time.Millisecond, b.Next(attempt))
	}
}

func TestExponentialBackoff(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: 10 * time.Second}

	assert.Equal(t, time.Second, b.Next(0))
	assert.Equal(t, time.Second, b.Next(1))
	assert.Equal(t, 2*time.Second, b.Next(2))
	assert.Equal(t, 8*time.Second, b.Next(4))
	assert.Equal(t, 10*time.Second, b.Next(5))
	assert.Equal(t, 10*time.Second, b.Next(100))
}

func TestExponentialBackoff_Jitter(t *testing.T) {
	b := ExponentialBackoff{Base: time.Second, Max: time.Minute, Jitter: true}
	for i := 0; i < 50; i++ {
		d := b.Next(3)
		assert.GreaterOrEqual(t, d, 3*time.Second)
		assert.Less(t, d, 5*time.Second)
	}
}

func TestNewBackoff(t *testing.T) {
	assert.Equal(t, ConstantBackoff{Delay: time.Second}, NewBackoff(BackoffConstant, time.Second))
	assert.IsType(t, ExponentialBackoff{}, NewBackoff(BackoffExponential, time.Second))
	assert.Equal(t, ConstantBackoff{Delay: time.Second}, NewBackoff("", time.Second))
}
