// Package client owns the single outbound relay connection for the active
// user session: the auth handshake, typed fire-and-forget sends, and
// reconnection across transient network loss.
package client

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/driftline/chat-relay/pkg/protocol"
)

// Status is the client-observed connection state.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// DefaultReconnectDelay is the fixed backoff between reconnect attempts
// while a user session is still present.
const DefaultReconnectDelay = 5 * time.Second

const dialTimeout = 10 * time.Second

// Dialer opens the websocket transport. Overridable for tests.
type Dialer func(ctx context.Context, url string) (*websocket.Conn, error)

// Handlers receives typed inbound frames and state transitions. Nil
// callbacks are skipped. Callbacks run on the manager's read goroutine and
// must not block.
type Handlers struct {
	OnMessage      func(protocol.Frame)
	OnTyping       func(protocol.Frame)
	OnRead         func(protocol.Frame)
	OnStatusChange func(Status)
}

type ManagerParams struct {
	URL            string
	ReconnectDelay time.Duration
	Dialer         Dialer
	Handlers       Handlers
	Logger         *zap.Logger
}

type Manager struct {
	url            string
	reconnectDelay time.Duration
	dial           Dialer
	handlers       Handlers

	mu             sync.Mutex
	userId         string // empty means no active session
	conn           *websocket.Conn
	status         Status
	reconnectTimer *time.Timer

	// gen invalidates goroutines and timers belonging to a superseded
	// session: every SetSession/ClearSession bumps it, and stale callbacks
	// compare before acting.
	gen uint64

	writeMu sync.Mutex

	log *zap.Logger
}

func CreateManager(params ManagerParams) *Manager {
	logger := params.Logger
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	delay := params.ReconnectDelay
	if delay <= 0 {
		delay = DefaultReconnectDelay
	}

	dial := params.Dialer
	if dial == nil {
		dial = func(ctx context.Context, url string) (*websocket.Conn, error) {
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			return conn, err
		}
	}

	return &Manager{
		url:            params.URL,
		reconnectDelay: delay,
		dial:           dial,
		handlers:       params.Handlers,
		status:         StatusDisconnected,
		log:            logger.With(zap.String("component", "client")),
	}
}

// Status reports the current connection state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// SetSession begins maintaining a connection for the given user. Any
// previous session's connection and pending reconnect are abandoned.
func (m *Manager) SetSession(userId string) {
	m.mu.Lock()
	m.userId = userId
	m.gen++
	gen := m.gen
	m.cancelReconnectLocked()
	conn := m.conn
	m.conn = nil
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	go m.connect(gen)
}

// ClearSession tears the session down: the connection is closed if open and
// any pending reconnect is cancelled. No further attempts are made until
// the next SetSession.
func (m *Manager) ClearSession() {
	m.mu.Lock()
	m.userId = ""
	m.gen++
	m.cancelReconnectLocked()
	conn := m.conn
	m.conn = nil
	changed := m.status != StatusDisconnected
	m.status = StatusDisconnected
	m.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if changed {
		m.notifyStatus(StatusDisconnected)
	}
}

// SendMessage sends a chat message. Fire-and-forget: dropped, not queued,
// unless currently connected.
func (m *Manager) SendMessage(recipientId, text string) {
	m.send(protocol.FrameMessage, func(f *protocol.Frame) {
		f.RecipientID = recipientId
		f.Text = text
	})
}

// SendTyping signals typing activity. The wire format carries no boolean
// flag; receipt of the frame itself is the indicator, so the frame is sent
// for both edges of isTyping.
func (m *Manager) SendTyping(recipientId string, isTyping bool) {
	m.send(protocol.FrameTyping, func(f *protocol.Frame) {
		f.RecipientID = recipientId
	})
}

// MarkRead reports a read receipt for the given message.
func (m *Manager) MarkRead(recipientId, messageId string) {
	m.send(protocol.FrameRead, func(f *protocol.Frame) {
		f.RecipientID = recipientId
		f.MessageID = messageId
	})
}

func (m *Manager) send(frameType protocol.FrameType, fill func(*protocol.Frame)) {
	m.mu.Lock()
	conn := m.conn
	status := m.status
	userId := m.userId
	m.mu.Unlock()

	if status != StatusConnected || conn == nil || userId == "" {
		m.log.Debug("Not connected, dropping outbound frame", zap.String("type", string(frameType)))
		return
	}

	frame := &protocol.Frame{
		Type:      frameType,
		SenderID:  userId,
		Timestamp: time.Now().UnixMilli(),
	}
	fill(frame)

	data, err := frame.Encode()
	if err != nil {
		m.log.Debug("Failed to encode outbound frame", zap.Error(err))
		return
	}

	m.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		// Best-effort: the read loop will observe the failure and schedule
		// the reconnect; the frame is simply lost.
		m.log.Debug("Write failed, dropping outbound frame",
			zap.String("type", string(frameType)), zap.Error(err))
	}
}

func (m *Manager) connect(gen uint64) {
	m.mu.Lock()
	if gen != m.gen || m.userId == "" {
		m.mu.Unlock()
		return
	}
	m.status = StatusConnecting
	m.mu.Unlock()
	m.notifyStatus(StatusConnecting)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()

	conn, err := m.dial(ctx, m.url)
	if err != nil {
		m.log.Info("Dial failed", zap.String("url", m.url), zap.Error(err))
		m.onConnectionLost(gen, nil)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.conn = conn
	userId := m.userId
	m.mu.Unlock()

	auth := &protocol.Frame{Type: protocol.FrameAuth, UserID: userId}
	data, _ := auth.Encode()

	m.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	m.writeMu.Unlock()
	if err != nil {
		m.log.Info("Auth send failed", zap.Error(err))
		m.onConnectionLost(gen, conn)
		return
	}

	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		conn.Close()
		return
	}
	m.status = StatusConnected
	m.mu.Unlock()
	m.notifyStatus(StatusConnected)
	m.log.Info("Connected to relay", zap.String("userId", userId))

	go m.readLoop(gen, conn)
}

// readLoop dispatches inbound frames until the transport fails, then hands
// off to the reconnect path.
func (m *Manager) readLoop(gen uint64, conn *websocket.Conn) {
	for {
		msgType, payload, err := conn.ReadMessage()
		if err != nil {
			m.onConnectionLost(gen, conn)
			return
		}

		if msgType != websocket.TextMessage {
			continue
		}

		frame, perr := protocol.ParseFrame(payload)
		if perr != nil {
			m.log.Debug("Dropping undecodable inbound frame", zap.Error(perr))
			continue
		}

		switch frame.Type {
		case protocol.FrameMessage:
			if h := m.handlers.OnMessage; h != nil {
				h(*frame)
			}
		case protocol.FrameTyping:
			if h := m.handlers.OnTyping; h != nil {
				h(*frame)
			}
		case protocol.FrameRead:
			if h := m.handlers.OnRead; h != nil {
				h(*frame)
			}
		default:
			m.log.Debug("Ignoring inbound frame", zap.String("type", string(frame.Type)))
		}
	}
}

// onConnectionLost moves to disconnected and, while a session is still
// present, schedules exactly one reconnect attempt after the fixed backoff.
// Transport error and close are not distinguished.
func (m *Manager) onConnectionLost(gen uint64, conn *websocket.Conn) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}

	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	changed := m.status != StatusDisconnected
	m.status = StatusDisconnected

	if m.userId != "" && m.reconnectTimer == nil {
		m.reconnectTimer = time.AfterFunc(m.reconnectDelay, func() {
			m.mu.Lock()
			m.reconnectTimer = nil
			if gen != m.gen || m.userId == "" {
				m.mu.Unlock()
				return
			}
			m.mu.Unlock()

			m.log.Info("Attempting to reconnect")
			m.connect(gen)
		})
	}
	m.mu.Unlock()

	if changed {
		m.notifyStatus(StatusDisconnected)
	}
}

func (m *Manager) cancelReconnectLocked() {
	if m.reconnectTimer != nil {
		m.reconnectTimer.Stop()
		m.reconnectTimer = nil
	}
}

func (m *Manager) notifyStatus(status Status) {
	if h := m.handlers.OnStatusChange; h != nil {
		h(status)
	}
}
