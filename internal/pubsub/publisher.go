package pubsub

import (
	"context"

	"github.com/Hangulling/dorandoran-chat/internal/event"
	"github.com/Hangulling/dorandoran-chat/internal/log"
)

// Publisher serializes envelopes and publishes them to the topic derived
// from the room id. Publication is fire-and-forget: the persisted message is
// the durable record, live delivery is best-effort, so a bus failure is
// logged and swallowed and never blocks the sender's write path.
type Publisher struct {
	bus Bus
}

func NewPublisher(bus Bus) *Publisher {
	return &Publisher{bus: bus}
}

// PublishMessage publishes a chat message envelope to the room namespace.
func (p *Publisher) PublishMessage(ctx context.Context, env *event.Envelope) {
	p.publish(ctx, RoomTopic(env.RoomID), env)
}

// PublishPush wraps payload into an envelope and publishes it to the push
// namespace. eventType may be free-form (typing indicators etc.).
func (p *Publisher) PublishPush(ctx context.Context, roomID, eventType string, payload interface{}) {
	env, err := event.NewPush(roomID, eventType, payload)
	if err != nil {
		l := log.Ctx(ctx)
		l.Error().Err(err).
			Str(log.FieldRoomID, roomID).
			Str(log.FieldEventType, eventType).
			Msg("failed to build push envelope")
		return
	}
	p.publish(ctx, PushTopic(roomID), env)
}

func (p *Publisher) publish(ctx context.Context, topic Topic, env *event.Envelope) {
	l := log.Ctx(ctx)

	data, err := event.Marshal(env)
	if err != nil {
		l.Error().Err(err).Str(log.FieldTopic, topic.String()).Msg("failed to serialize envelope")
		return
	}

	if err := p.bus.Publish(ctx, topic.String(), data); err != nil {
		l.Error().Err(err).
			Str(log.FieldTopic, topic.String()).
			Str(log.FieldEventID, env.EventID).
			Msg("bus publish failed")
		return
	}

	l.Debug().
		Str(log.FieldTopic, topic.String()).
		Str(log.FieldEventID, env.EventID).
		Str(log.FieldEventType, env.EventType).
		Msg("envelope published")
}
