package ws

import (
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestBackoff_Next(t *testing.T) {
	b := NewBackoff(time.Second, 30*time.Second, 0)

	want := []time.Duration{1, 2, 4, 8, 16, 30, 30}
	for i, w := range want {
		assert.Equal(t, w*time.Second, b.Next(), "attempt %d", i)
	}
	assert.Equal(t, len(want), b.Attempt())

	b.Reset()
	assert.Equal(t, time.Second, b.Next())
}

func TestBackoff_Jitter(t *testing.T) {
	b := NewBackoff(10*time.Second, 10*time.Second, 0.2)
	for i := 0; i < 100; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 8*time.Second)
		assert.LessOrEqual(t, d, 12*time.Second)
	}
}

func TestBackoff_ManyAttemptsStayCapped(t *testing.T) {
	b := NewBackoff(time.Second, time.Minute, 0)
	for i := 0; i < 100; i++ {
		b.Next()
	}
	assert.Equal(t, time.Minute, b.Next())
}

func TestBackoff_LargeBaseNeverWraps(t *testing.T) {
	b := NewBackoff(20*time.Second, 30*time.Second, 0)
	for i := 0; i < 100; i++ {
		d := b.Next()
		assert.GreaterOrEqual(t, d, 20*time.Second, "attempt %d", i)
		assert.LessOrEqual(t, d, 30*time.Second, "attempt %d", i)
	}
}

func TestBackoff_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("delay stays within max plus jitter", prop.ForAll(
		func(baseMs, maxMs, attempts int, jitter float64) bool {
			base := time.Duration(baseMs) * time.Millisecond
			max := time.Duration(maxMs) * time.Millisecond
			b := NewBackoff(base, max, jitter)
			if max < base {
				max = base
			}
			upper := time.Duration(float64(max)*(1+jitter)) + time.Nanosecond
			lower := time.Duration(float64(base)*(1-jitter)) - time.Nanosecond
			for i := 0; i < attempts; i++ {
				d := b.Next()
				if d > upper || d < lower {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 1000),
		gen.IntRange(1, 60000),
		gen.IntRange(1, 64),
		gen.Float64Range(0, 0.5),
	))

	properties.Property("without jitter delays never decrease", prop.ForAll(
		func(baseMs, attempts int) bool {
			b := NewBackoff(time.Duration(baseMs)*time.Millisecond, 30*time.Second, 0)
			prev := time.Duration(0)
			for i := 0; i < attempts; i++ {
				d := b.Next()
				if d < prev {
					return false
				}
				prev = d
			}
			return true
		},
		gen.IntRange(1, 5000),
		gen.IntRange(1, 100),
	))

	properties.TestingRun(t)
}
