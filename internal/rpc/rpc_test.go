package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skytelescope/mirrortherm/internal/command"
)

func TestTranslateAckCodes(t *testing.T) {
	code, _, has := TranslateAck(command.Ack{State: command.AckInProgress})
	assert.Equal(t, InProgress, code)
	assert.False(t, has)

	code, _, has = TranslateAck(command.Ack{State: command.AckComplete})
	assert.Equal(t, Complete, code)
	assert.False(t, has)

	code, sub, has := TranslateAck(command.Ack{State: command.AckNotPermitted, Kind: command.InvalidState})
	assert.Equal(t, NotPermitted, code)
	require.True(t, has)
	assert.Equal(t, -320, sub)

	code, sub, has = TranslateAck(command.Ack{State: command.AckFailed, Kind: command.AlreadyInState})
	assert.Equal(t, Failed, code)
	require.True(t, has)
	assert.Equal(t, -324, sub)
}

func TestResolveKindAliases(t *testing.T) {
	kind, ok := ResolveKind("enterControl")
	require.True(t, ok)
	assert.Equal(t, command.Start, kind)

	kind, ok = ResolveKind("setVFD")
	require.True(t, ok)
	assert.Equal(t, command.CoolantPumpFrequency, kind)

	_, ok = ResolveKind("notACommand")
	assert.False(t, ok)
}

type fakeSurface struct {
	requests  []Request
	responses map[string]Code
	polled    bool
}

func (f *fakeSurface) PollOnce() ([]Request, error) {
	if f.polled {
		return nil, nil
	}
	f.polled = true
	return f.requests, nil
}

func (f *fakeSurface) Respond(id string, code Code, subcode int, hasSubcode bool) {
	if f.responses == nil {
		f.responses = map[string]Code{}
	}
	f.responses[id] = code
}

func TestAdapterDispatchesAndRejectsUnknown(t *testing.T) {
	surface := &fakeSurface{requests: []Request{
		{ID: "1", Name: "start"},
		{ID: "2", Name: "bogus"},
	}}
	queue := command.NewQueue()
	adapter := NewAdapter(surface, queue, time.Millisecond)

	go func() {
		adapter.Run()
	}()
	time.Sleep(20 * time.Millisecond)
	adapter.Stop()

	assert.Equal(t, Failed, surface.responses["2"])
	cmd, ok := queue.Pop()
	require.True(t, ok)
	assert.Equal(t, command.Start, cmd.Kind)
}
