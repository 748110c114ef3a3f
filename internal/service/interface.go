package service

import (
	"context"

	"github.com/Hangulling/dorandoran-chat/internal/store"
)

// ChatService is the ingestion-side orchestration: persist, publish, and
// hand off to the derived-response pipeline.
type ChatService interface {
	// SendUserMessage persists an accepted user message and triggers its
	// fan-out publication. The caller has already verified the sender
	// identity against the connection.
	SendUserMessage(ctx context.Context, roomID, senderID, content string) error

	// PublishPush publishes a lifecycle/derived event on the push channel.
	PublishPush(ctx context.Context, roomID, eventType string, payload interface{})

	// HasAccess reports room membership; checked once at attach time.
	HasAccess(ctx context.Context, userID, roomID string) (bool, error)

	// RecentMessages serves the room history endpoint.
	RecentMessages(ctx context.Context, roomID string, limit int) ([]store.MessageRecord, error)
}

// Responder is the AI/derived-response collaborator. It is fire-and-forget
// relative to the delivery core: whatever it produces comes back through the
// same publish contract as any other event.
type Responder interface {
	Respond(ctx context.Context, msg *store.MessageRecord)
}

// NopResponder is wired when no derived-response pipeline is configured.
type NopResponder struct{}

func (NopResponder) Respond(context.Context, *store.MessageRecord) {}
