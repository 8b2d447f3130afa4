package relay

import (
	"time"

	"go.uber.org/zap"

	"github.com/driftline/chat-relay/internal/registry"
	"github.com/driftline/chat-relay/pkg/protocol"
)

// Handler decodes inbound frames and applies per-type handling. It is
// stateless between frames; all connection state lives in the registry, so
// one Handler is shared by every connection.
type Handler struct {
	registry *registry.Registry
	metrics  *Metrics

	// GetNowTimestamp supplies the relay-assigned delivery timestamp in
	// milliseconds since epoch. Overridable for tests.
	GetNowTimestamp func() int64

	log *zap.Logger
}

func CreateHandler(reg *registry.Registry, metrics *Metrics, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.Must(zap.NewDevelopment())
	}

	return &Handler{
		registry: reg,
		metrics:  metrics,
		GetNowTimestamp: func() int64 {
			return time.Now().UnixMilli()
		},
		log: logger.With(zap.String("component", "handler")),
	}
}

// HandleFrame processes a single inbound payload from conn. Failures are
// local to the frame: the returned error is for the caller's logging only
// and must never close the connection.
func (h *Handler) HandleFrame(conn registry.Conn, data []byte) error {
	frame, err := protocol.ParseFrame(data)
	if err != nil {
		h.metrics.RecordDecodeError()
		return err
	}

	h.metrics.RecordFrameReceived(string(frame.Type))

	switch frame.Type {
	case protocol.FrameAuth:
		// The transport-level open event is the client's success signal;
		// no acknowledgment frame is sent back.
		h.registry.Bind(frame.UserID, conn)
		h.metrics.SetBoundConnections(h.registry.Len())
		h.log.Info("User bound to connection", zap.String("userId", frame.UserID))

	case protocol.FrameMessage, protocol.FrameTyping, protocol.FrameRead:
		h.forward(frame)

	case protocol.FrameStatus:
		// Reserved frame type, nothing consumes it yet.
		h.log.Debug("Discarding status frame", zap.String("senderId", frame.SenderID))
	}

	return nil
}

// forward delivers the frame to the recipient's connection if one is bound
// and writable. Delivery is best-effort, at-most-once: an offline recipient
// or a failed write drops the frame silently, with no error surfaced to the
// sender and no queuing.
func (h *Handler) forward(frame *protocol.Frame) {
	target, has := h.registry.Lookup(frame.RecipientID)
	if !has {
		h.metrics.RecordFrameDropped(string(frame.Type), "recipient_offline")
		h.log.Debug("Recipient not connected, dropping frame",
			zap.String("type", string(frame.Type)),
			zap.String("recipientId", frame.RecipientID))
		return
	}

	if err := target.WriteFrame(frame.Stamped(h.GetNowTimestamp())); err != nil {
		h.metrics.RecordFrameDropped(string(frame.Type), "write_failed")
		h.log.Debug("Failed to write frame to recipient, dropping",
			zap.String("type", string(frame.Type)),
			zap.String("recipientId", frame.RecipientID),
			zap.Error(err))
		return
	}

	h.metrics.RecordFrameForwarded(string(frame.Type))
}
