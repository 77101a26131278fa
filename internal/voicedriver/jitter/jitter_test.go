package jitter_test

import (
	"testing"

	"github.com/Raikerian/voxd/internal/voicedriver/jitter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBufferWarmsUpBeforePlayout(t *testing.T) {
	b := jitter.New(3, 2)
	b.Insert(jitter.Packet{Sequence: 1})

	step := b.Step()
	assert.Equal(t, jitter.StepEmpty, step.Kind, "must not play until bufferLength packets have arrived")
}

func TestBufferPlaysInSequenceOrderDespiteArrivalOrder(t *testing.T) {
	b := jitter.New(2, 2)
	b.Insert(jitter.Packet{Sequence: 2, Payload: []byte("two")})
	b.Insert(jitter.Packet{Sequence: 1, Payload: []byte("one")})

	step := b.Step()
	require.Equal(t, jitter.StepPacket, step.Kind)
	assert.Equal(t, uint16(1), step.PerSeq)
	assert.Equal(t, []byte("one"), step.Packet.Payload)

	step = b.Step()
	require.Equal(t, jitter.StepPacket, step.Kind)
	assert.Equal(t, uint16(2), step.PerSeq)
}

func TestBufferEmitsMissingAfterSpikeToleranceElapses(t *testing.T) {
	b := jitter.New(1, 2)
	b.Insert(jitter.Packet{Sequence: 5})
	require.Equal(t, jitter.StepPacket, b.Step().Kind) // prime nextSeq to 6

	b.Insert(jitter.Packet{Sequence: 7}) // 6 never arrives
	assert.Equal(t, jitter.StepEmpty, b.Step().Kind, "tick 1 of tolerance")
	assert.Equal(t, jitter.StepEmpty, b.Step().Kind, "tick 2 of tolerance")

	step := b.Step()
	require.Equal(t, jitter.StepMissing, step.Kind)
	assert.Equal(t, uint16(6), step.PerSeq)

	step = b.Step()
	require.Equal(t, jitter.StepPacket, step.Kind)
	assert.Equal(t, uint16(7), step.PerSeq)
}

func TestBufferDropsAlreadyPlayedSequence(t *testing.T) {
	b := jitter.New(1, 1)
	b.Insert(jitter.Packet{Sequence: 1})
	require.Equal(t, jitter.StepPacket, b.Step().Kind)

	b.Insert(jitter.Packet{Sequence: 1}) // stale retransmit/duplicate
	step := b.Step()
	assert.NotEqual(t, jitter.StepPacket, step.Kind)
}

func TestIdleReportsAfterSustainedSilence(t *testing.T) {
	b := jitter.New(1, 1)
	b.Insert(jitter.Packet{Sequence: 1})
	require.Equal(t, jitter.StepPacket, b.Step().Kind)

	for i := 0; i < 5; i++ {
		b.Step()
	}
	assert.True(t, b.Idle(5))
	assert.False(t, b.Idle(50))
}

func TestSequenceWraparoundIsHandled(t *testing.T) {
	b := jitter.New(1, 1)
	b.Insert(jitter.Packet{Sequence: 65535})
	require.Equal(t, jitter.StepPacket, b.Step().Kind)

	b.Insert(jitter.Packet{Sequence: 0})
	step := b.Step()
	require.Equal(t, jitter.StepPacket, step.Kind)
	assert.Equal(t, uint16(0), step.PerSeq)
}
