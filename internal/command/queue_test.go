package command

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue()
	s1, s2, s3 := NewChanSink(), NewChanSink(), NewChanSink()
	q.Push(Command{Kind: Start, Sink: s1})
	q.Push(Command{Kind: Enable, Sink: s2})
	q.Push(Command{Kind: Disable, Sink: s3})

	c, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, Start, c.Kind)

	c, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, Enable, c.Kind)

	c, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, Disable, c.Kind)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueDrainAcksResidual(t *testing.T) {
	q := NewQueue()
	s1, s2 := NewChanSink(), NewChanSink()
	q.Push(Command{Kind: Start, Sink: s1})
	q.Push(Command{Kind: Enable, Sink: s2})

	residual := q.Drain()
	assert.Len(t, residual, 2)
	for _, c := range residual {
		c.Sink.AckFailed(ExecutionBlocked, "execution aborted")
	}
	assert.Equal(t, AckFailed, s1.Last().State)
	assert.Equal(t, AckFailed, s2.Last().State)

	// pushes after Drain are rejected immediately.
	s3 := NewChanSink()
	q.Push(Command{Kind: Standby, Sink: s3})
	assert.Equal(t, AckFailed, s3.Last().State)
}

func TestChanSinkRecordsSequence(t *testing.T) {
	s := NewChanSink()
	s.AckInProgress()
	s.AckComplete()
	<-s.Done()
	acks := s.Acks()
	require.Len(t, acks, 2)
	assert.Equal(t, AckInProgress, acks[0].State)
	assert.Equal(t, AckComplete, acks[1].State)
}
