package relay

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/driftline/chat-relay/pkg/protocol"
)

// safeConn wraps a gorilla websocket connection with write synchronization.
// The handler goroutine of one connection may forward into another
// connection concurrently with that connection's own handler, and gorilla
// conns support only one concurrent writer.
type safeConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func newSafeConn(c *websocket.Conn) *safeConn {
	return &safeConn{c: c}
}

func (sc *safeConn) WriteFrame(f *protocol.Frame) error {
	data, err := f.Encode()
	if err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.c.WriteMessage(websocket.TextMessage, data)
}

func (sc *safeConn) Close() error {
	return sc.c.Close()
}
