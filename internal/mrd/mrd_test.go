package mrd

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func constRand(v float64) func() float64 {
	return func() float64 { return v }
}

func TestNext_StartupBurstCoversInitialCountMinusOne(t *testing.T) {
	s := New()
	_, startup1 := s.Next(constRand(0))
	_, startup2 := s.Next(constRand(0))
	_, startup3 := s.Next(constRand(0))
	assert.True(t, startup1)
	assert.True(t, startup2)
	assert.False(t, startup3, "InitialCount-1 startup advertisements, then steady state")
}

func TestNext_StartupDelayIsBoundedByInitialInterval(t *testing.T) {
	s := New()
	delay, startup := s.Next(constRand(0.5))
	assert.True(t, startup)
	assert.Equal(t, InitialIntervalMs/2, delay)
}

func TestNext_SteadyStateIsCenteredOnSteadyInterval(t *testing.T) {
	s := New()
	s.Next(constRand(0))
	s.Next(constRand(0))

	delayLow, startup := s.Next(constRand(0))
	assert.False(t, startup)
	assert.Equal(t, SteadyIntervalMs-SteadyJitterMs, delayLow)

	delayHigh, _ := s.Next(constRand(0.999999))
	assert.InDelta(t, SteadyIntervalMs+SteadyJitterMs, delayHigh, 2)
}
