package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIterationBound_WithinLimit(t *testing.T) {
	b := NewIterationBound(3)

	assert.True(t, b.Next())
	assert.True(t, b.Next())
	assert.True(t, b.Next())
	assert.Equal(t, 3, b.Current())

	assert.False(t, b.Next(), "fourth round exceeds a bound of 3")
	assert.Equal(t, 4, b.Current())
	assert.Equal(t, 3, b.Max())
}

func TestIterationBound_Default(t *testing.T) {
	for _, max := range []int{0, -1} {
		b := NewIterationBound(max)
		assert.Equal(t, DefaultMaxIterations, b.Max(), "max=%d", max)
	}
}

func TestNewBus_DefaultBound(t *testing.T) {
	b := NewBus(nil, 0)
	assert.Equal(t, DefaultMaxIterations, b.maxIterations)
}
