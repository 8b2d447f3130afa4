// Package protocol defines the relay wire format: flat JSON objects with a
// mandatory "type" tag, exchanged as text messages over a websocket.
package protocol

import (
	"encoding/json"

	"github.com/driftline/chat-relay/pkg/errors"
)

type FrameType string

const (
	FrameAuth    FrameType = "auth"
	FrameMessage FrameType = "message"
	FrameTyping  FrameType = "typing"
	FrameRead    FrameType = "read"

	// FrameStatus is reserved for status-update fanout. The relay accepts
	// and discards it; no client currently sends one.
	FrameStatus FrameType = "status"
)

// Frame is the tagged union carried on the wire. Which fields are meaningful
// depends on Type:
//
//	auth:    UserID
//	message: SenderID, RecipientID, Text, Timestamp
//	typing:  SenderID, RecipientID, Timestamp
//	read:    SenderID, RecipientID, MessageID, Timestamp
//
// Timestamp is milliseconds since epoch. On forwarded frames it is stamped
// by the relay and may differ from the sender-supplied value.
type Frame struct {
	Type        FrameType `json:"type"`
	UserID      string    `json:"userId,omitempty"`
	SenderID    string    `json:"senderId,omitempty"`
	RecipientID string    `json:"recipientId,omitempty"`
	Text        string    `json:"text,omitempty"`
	MessageID   string    `json:"messageId,omitempty"`
	Timestamp   int64     `json:"timestamp,omitempty"`
}

// ParseFrame decodes and validates a single inbound frame. Frames that fail
// here are dropped by the caller; the connection stays open.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, &errors.MalformedFrame{Cause: err}
	}

	switch f.Type {
	case FrameAuth:
		if f.UserID == "" {
			return nil, &errors.MissingFieldError{FrameType: string(f.Type), FieldName: "userId"}
		}
	case FrameMessage, FrameTyping, FrameRead:
		if f.RecipientID == "" {
			return nil, &errors.MissingFieldError{FrameType: string(f.Type), FieldName: "recipientId"}
		}
	case FrameStatus:
		// Reserved; carries no required fields yet.
	default:
		return nil, &errors.UnknownFrameType{FrameType: string(f.Type)}
	}

	return &f, nil
}

// Encode serializes the frame for the wire.
func (f *Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Stamped returns a copy of the frame carrying the given delivery timestamp.
// The original frame is never mutated once constructed.
func (f *Frame) Stamped(ts int64) *Frame {
	c := *f
	c.Timestamp = ts
	return &c
}
