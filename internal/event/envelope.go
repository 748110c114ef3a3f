package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrMalformed marks envelopes that cannot be decoded or fail validation.
// Consumers log and drop; it must never take down a receive loop.
var ErrMalformed = errors.New("malformed envelope")

// Event types carried over the bus. The set is open: upstream publishers may
// set free-form types (typing indicators etc.), so EventType stays a string.
const (
	TypeMessage  = "message"
	TypePresence = "presence"
	TypeSystem   = "system"
)

// Sender types.
const (
	SenderUser   = "user"
	SenderBot    = "bot"
	SenderSystem = "system"
)

// Event name pushed to clients for chat messages.
const PushNewMessage = "new_message"

// Envelope is the wire record exchanged over the bus and pushed to clients.
// It is constructed at the point of publication and never mutated.
type Envelope struct {
	EventID    string          `json:"event_id"`
	RoomID     string          `json:"room_id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	SenderID   string          `json:"sender_id,omitempty"`
	SenderType string          `json:"sender_type,omitempty"`
	Timestamp  int64           `json:"timestamp"`
}

// MessagePayload is the envelope payload for chat messages.
type MessagePayload struct {
	MessageID   string `json:"message_id"`
	RoomID      string `json:"room_id"`
	SenderID    string `json:"sender_id"`
	SenderType  string `json:"sender_type"`
	Content     string `json:"content"`
	ContentType string `json:"content_type"`
	Sequence    int64  `json:"sequence_number"`
}

// NewMessage builds a message envelope from a chat message payload.
func NewMessage(p MessagePayload) (*Envelope, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:    uuid.New().String(),
		RoomID:     p.RoomID,
		EventType:  TypeMessage,
		Payload:    data,
		SenderID:   p.SenderID,
		SenderType: p.SenderType,
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// NewPush builds an envelope for a lifecycle/derived event on the push
// channel. The payload may be any JSON-serializable value.
func NewPush(roomID, eventType string, payload interface{}) (*Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		EventID:    uuid.New().String(),
		RoomID:     roomID,
		EventType:  eventType,
		Payload:    data,
		SenderType: SenderSystem,
		Timestamp:  time.Now().UnixMilli(),
	}, nil
}

// Validate checks the envelope invariants: room id and event type are always
// present and non-empty.
func (e *Envelope) Validate() error {
	if e.RoomID == "" {
		return fmt.Errorf("%w: missing room_id", ErrMalformed)
	}
	if e.EventType == "" {
		return fmt.Errorf("%w: missing event_type", ErrMalformed)
	}
	return nil
}

// Marshal serializes the envelope to its canonical JSON form.
func Marshal(e *Envelope) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Unmarshal is the exact inverse of Marshal for all valid envelopes.
// Undecodable or invalid input yields ErrMalformed.
func Unmarshal(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return &e, nil
}

// UnmarshalPayload decodes the envelope payload into v.
func (e *Envelope) UnmarshalPayload(v interface{}) error {
	return json.Unmarshal(e.Payload, v)
}
