package service

import (
	"context"
	"fmt"

	"github.com/Hangulling/dorandoran-chat/internal/event"
	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/pubsub"
	"github.com/Hangulling/dorandoran-chat/internal/store"
)

// Options control delivery policy.
type Options struct {
	// PublishOnSaveFailure keeps live delivery running when the persistence
	// collaborator fails. The message is then visible to attached clients
	// but has no durable record.
	PublishOnSaveFailure bool
}

type chatService struct {
	store     store.Store
	publisher *pubsub.Publisher
	responder Responder
	opts      Options
}

func NewChatService(st store.Store, pub *pubsub.Publisher, responder Responder, opts Options) ChatService {
	if responder == nil {
		responder = NopResponder{}
	}
	return &chatService{
		store:     st,
		publisher: pub,
		responder: responder,
		opts:      opts,
	}
}

func (s *chatService) SendUserMessage(ctx context.Context, roomID, senderID, content string) error {
	l := log.Ctx(ctx)

	record, err := s.store.SaveMessage(ctx, roomID, senderID, event.SenderUser, content, "text")
	if err != nil {
		l.Error().Err(err).
			Str(log.FieldRoomID, roomID).
			Str(log.FieldSenderID, senderID).
			Msg("failed to persist message")
		if !s.opts.PublishOnSaveFailure {
			return fmt.Errorf("persist message: %w", err)
		}
		// Build a transient record so live delivery can proceed.
		record = &store.MessageRecord{
			RoomID:      roomID,
			SenderID:    senderID,
			SenderType:  event.SenderUser,
			Content:     content,
			ContentType: "text",
		}
	}

	env, err := event.NewMessage(event.MessagePayload{
		MessageID:   record.ID,
		RoomID:      record.RoomID,
		SenderID:    record.SenderID,
		SenderType:  record.SenderType,
		Content:     record.Content,
		ContentType: record.ContentType,
		Sequence:    record.Sequence,
	})
	if err != nil {
		return fmt.Errorf("build message envelope: %w", err)
	}

	s.publisher.PublishMessage(ctx, env)

	// Derived responses run off the send path; the responder publishes its
	// own events through the same bus contract.
	go s.responder.Respond(context.WithoutCancel(ctx), record)

	return nil
}

func (s *chatService) PublishPush(ctx context.Context, roomID, eventType string, payload interface{}) {
	s.publisher.PublishPush(ctx, roomID, eventType, payload)
}

func (s *chatService) HasAccess(ctx context.Context, userID, roomID string) (bool, error) {
	return s.store.HasAccess(ctx, userID, roomID)
}

func (s *chatService) RecentMessages(ctx context.Context, roomID string, limit int) ([]store.MessageRecord, error) {
	return s.store.RecentMessages(ctx, roomID, limit)
}
