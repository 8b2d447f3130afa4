package relay

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/driftline/chat-relay/internal/registry"
	"github.com/driftline/chat-relay/pkg/protocol"
)

// captureConn records every frame written to it. Setting failWrites makes
// it behave like a connection whose transport is no longer writable.
type captureConn struct {
	mu         sync.Mutex
	frames     []protocol.Frame
	failWrites bool
}

func (c *captureConn) WriteFrame(f *protocol.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failWrites {
		return errors.New("broken pipe")
	}
	c.frames = append(c.frames, *f)
	return nil
}

func (c *captureConn) Close() error { return nil }

func (c *captureConn) received() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]protocol.Frame(nil), c.frames...)
}

func newTestHandler(t *testing.T) (*Handler, *registry.Registry) {
	t.Helper()
	reg := registry.CreateRegistry()
	h := CreateHandler(reg, nil, zap.NewNop())
	h.GetNowTimestamp = func() int64 { return 5555 }
	return h, reg
}

func TestAuthBindsConnection(t *testing.T) {
	h, reg := newTestHandler(t)
	conn := &captureConn{}

	err := h.HandleFrame(conn, []byte(`{"type":"auth","userId":"alice"}`))
	require.NoError(t, err)

	bound, has := reg.Lookup("alice")
	require.True(t, has)
	assert.Same(t, conn, bound.(*captureConn))
	assert.Empty(t, conn.received(), "auth must not produce an acknowledgment frame")
}

func TestMessageForwardedToRecipient(t *testing.T) {
	h, _ := newTestHandler(t)
	connA := &captureConn{}
	connB := &captureConn{}

	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"auth","userId":"A"}`)))
	require.NoError(t, h.HandleFrame(connB, []byte(`{"type":"auth","userId":"B"}`)))

	err := h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"hi","timestamp":1000}`))
	require.NoError(t, err)

	frames := connB.received()
	require.Len(t, frames, 1, "exactly one frame must be delivered")
	assert.Equal(t, protocol.FrameMessage, frames[0].Type)
	assert.Equal(t, "A", frames[0].SenderID)
	assert.Equal(t, "B", frames[0].RecipientID)
	assert.Equal(t, "hi", frames[0].Text)
	assert.Equal(t, int64(5555), frames[0].Timestamp, "timestamp must be relay-stamped")
	assert.Empty(t, connA.received(), "nothing is echoed to the sender")
}

func TestForwardingDoesNotRequireSenderAuth(t *testing.T) {
	h, _ := newTestHandler(t)
	connB := &captureConn{}
	unbound := &captureConn{}

	require.NoError(t, h.HandleFrame(connB, []byte(`{"type":"auth","userId":"B"}`)))

	err := h.HandleFrame(unbound, []byte(`{"type":"typing","senderId":"A","recipientId":"B","timestamp":1}`))
	require.NoError(t, err)

	require.Len(t, connB.received(), 1)
	assert.Equal(t, protocol.FrameTyping, connB.received()[0].Type)
}

func TestUnknownRecipientDropsSilently(t *testing.T) {
	h, _ := newTestHandler(t)
	connA := &captureConn{}

	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"auth","userId":"A"}`)))

	err := h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"nobody","text":"hi"}`))

	assert.NoError(t, err, "dropping is not an error surfaced to the sender")
	assert.Empty(t, connA.received())
}

func TestUnwritableRecipientDropsSilently(t *testing.T) {
	h, _ := newTestHandler(t)
	connA := &captureConn{}
	connB := &captureConn{failWrites: true}

	require.NoError(t, h.HandleFrame(connB, []byte(`{"type":"auth","userId":"B"}`)))

	err := h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"hi"}`))

	assert.NoError(t, err)
	assert.Empty(t, connB.received())
}

func TestMalformedFrameIsLocalFailure(t *testing.T) {
	h, reg := newTestHandler(t)
	connA := &captureConn{}
	connB := &captureConn{}

	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"auth","userId":"A"}`)))
	require.NoError(t, h.HandleFrame(connB, []byte(`{"type":"auth","userId":"B"}`)))

	err := h.HandleFrame(connA, []byte(`not a frame at all`))
	assert.Error(t, err)

	// The failure is local: both bindings survive and forwarding still works.
	_, hasA := reg.Lookup("A")
	_, hasB := reg.Lookup("B")
	assert.True(t, hasA)
	assert.True(t, hasB)

	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"still works"}`)))
	require.Len(t, connB.received(), 1)
}

func TestStatusFrameDiscarded(t *testing.T) {
	h, _ := newTestHandler(t)
	connA := &captureConn{}
	connB := &captureConn{}

	require.NoError(t, h.HandleFrame(connB, []byte(`{"type":"auth","userId":"B"}`)))

	err := h.HandleFrame(connA, []byte(`{"type":"status","senderId":"A","recipientId":"B"}`))
	require.NoError(t, err)
	assert.Empty(t, connB.received(), "status frames are reserved and never forwarded")
}

func TestReauthReplacesBinding(t *testing.T) {
	h, _ := newTestHandler(t)
	old := &captureConn{}
	fresh := &captureConn{}
	sender := &captureConn{}

	require.NoError(t, h.HandleFrame(old, []byte(`{"type":"auth","userId":"B"}`)))
	require.NoError(t, h.HandleFrame(fresh, []byte(`{"type":"auth","userId":"B"}`)))

	require.NoError(t, h.HandleFrame(sender, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"hi"}`)))

	assert.Empty(t, old.received(), "superseded connection must receive nothing")
	require.Len(t, fresh.received(), 1)
}

func TestFramesForwardedInOrder(t *testing.T) {
	h, _ := newTestHandler(t)
	connA := &captureConn{}
	connB := &captureConn{}

	require.NoError(t, h.HandleFrame(connB, []byte(`{"type":"auth","userId":"B"}`)))

	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"one"}`)))
	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"two"}`)))
	require.NoError(t, h.HandleFrame(connA, []byte(`{"type":"message","senderId":"A","recipientId":"B","text":"three"}`)))

	frames := connB.received()
	require.Len(t, frames, 3)
	assert.Equal(t, "one", frames[0].Text)
	assert.Equal(t, "two", frames[1].Text)
	assert.Equal(t, "three", frames[2].Text)
}
