package store

import (
	"context"
	"time"
)

// MessageRecord is the durable form of a chat message, returned by the
// persistence collaborator.
type MessageRecord struct {
	ID          string
	RoomID      string
	SenderID    string
	SenderType  string
	Content     string
	ContentType string
	Sequence    int64
	CreatedAt   time.Time
}

// Store is the synchronous contract of the external persistence and
// authorization collaborators. The delivery core calls it but does not own
// the schema beyond what these operations need.
type Store interface {
	// SaveMessage persists a message and assigns its per-room sequence.
	SaveMessage(ctx context.Context, roomID, senderID, senderType, content, contentType string) (*MessageRecord, error)

	// HasAccess reports whether the user is a member of the room. Checked
	// once at connection establishment.
	HasAccess(ctx context.Context, userID, roomID string) (bool, error)

	// RecentMessages returns up to limit messages for a room, newest first.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]MessageRecord, error)

	Close() error
}
