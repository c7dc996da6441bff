package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentile(t *testing.T) {
	samples := make([]time.Duration, 100)
	for i := range samples {
		samples[i] = time.Duration(i+1) * time.Millisecond
	}

	assert.Equal(t, time.Millisecond, percentile(samples, 0))
	assert.Equal(t, 50*time.Millisecond, percentile(samples, 50))
	assert.Equal(t, 99*time.Millisecond, percentile(samples, 99))
	assert.Equal(t, 100*time.Millisecond, percentile(samples, 100))
	assert.Equal(t, time.Duration(0), percentile(nil, 50))
}

func TestComputeStatsSortsSamples(t *testing.T) {
	s := computeStats(time.Second, []time.Duration{3 * time.Millisecond, time.Millisecond, 2 * time.Millisecond}, 1)

	assert.Equal(t, 3, s.ops)
	assert.Equal(t, int64(1), s.failures)
	assert.Equal(t, 2*time.Millisecond, s.p50)
	assert.InDelta(t, 3.0, s.opsPerS, 0.001)

	empty := computeStats(time.Second, nil, 2)
	assert.Equal(t, 0, empty.ops)
	assert.Equal(t, int64(2), empty.failures)
}

func TestCheckInvariants(t *testing.T) {
	res := &phaseResult{}
	res.violate("account %s has %d valid tokens", "a", 2)
	assert.Equal(t, []string{"account a has 2 valid tokens"}, res.violations)
}
