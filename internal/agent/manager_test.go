// ABOUTME: Tests for the container link manager
// ABOUTME: Covers registration, duplicates, offline sends, and input forwarding

package agent

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	frames  [][]byte
	sendErr error
}

func (f *fakeTransport) Send(data []byte) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.frames = append(f.frames, data)
	return nil
}

func TestManager_RegisterAndUnregister(t *testing.T) {
	m := NewManager(nil)

	require.NoError(t, m.Register(NewLink("a1", &fakeTransport{})))
	assert.True(t, m.IsOnline("a1"))
	assert.Equal(t, 1, m.Len())

	assert.ErrorIs(t, m.Register(NewLink("a1", &fakeTransport{})), ErrAgentAlreadyLinked)

	m.Unregister("a1")
	assert.False(t, m.IsOnline("a1"))

	// Unregistering again is a no-op
	m.Unregister("a1")
	assert.Equal(t, 0, m.Len())
}

func TestManager_SendMessage(t *testing.T) {
	m := NewManager(nil)
	ft := &fakeTransport{}
	require.NoError(t, m.Register(NewLink("a1", ft)))

	require.NoError(t, m.SendMessage("a1", "u1", "hello computer"))
	require.Len(t, ft.frames, 1)

	var msg ContainerMessage
	require.NoError(t, json.Unmarshal(ft.frames[0], &msg))
	assert.Equal(t, "agent:message", msg.Type)
	assert.Equal(t, "u1", msg.UserID)
	assert.Equal(t, "hello computer", msg.Content)
}

func TestManager_SendMessageOffline(t *testing.T) {
	m := NewManager(nil)
	assert.ErrorIs(t, m.SendMessage("ghost", "u1", "hi"), ErrAgentOffline)
}

func TestManager_SendInput(t *testing.T) {
	m := NewManager(nil)
	ft := &fakeTransport{}
	require.NoError(t, m.Register(NewLink("a1", ft)))

	require.NoError(t, m.SendInput("a1", "u1", InputFrame{
		Type:      "browser:input",
		EventType: "mouse",
		Payload:   json.RawMessage(`{"x":3,"y":4}`),
	}))
	require.Len(t, ft.frames, 1)

	var msg ContainerMessage
	require.NoError(t, json.Unmarshal(ft.frames[0], &msg))
	assert.Equal(t, "browser:input", msg.Type)
	assert.Equal(t, "mouse", msg.EventType)
	assert.JSONEq(t, `{"x":3,"y":4}`, string(msg.Payload))
}

func TestManager_SendWrapsTransportError(t *testing.T) {
	m := NewManager(nil)
	boom := errors.New("socket closed")
	require.NoError(t, m.Register(NewLink("a1", &fakeTransport{sendErr: boom})))

	err := m.SendMessage("a1", "u1", "hi")
	assert.ErrorIs(t, err, boom)
}
