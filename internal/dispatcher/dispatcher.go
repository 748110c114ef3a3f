package dispatcher

import (
	"context"
	"time"

	"github.com/Hangulling/dorandoran-chat/internal/event"
	"github.com/Hangulling/dorandoran-chat/internal/log"
	"github.com/Hangulling/dorandoran-chat/internal/pubsub"
	"github.com/Hangulling/dorandoran-chat/internal/registry"
)

const resubscribeDelay = 2 * time.Second

// Dispatcher runs the single per-process receive loop. Every event reaching
// locally attached clients flows through here, including events this
// instance published itself: delivery is derived solely from what comes back
// off the bus, so local and remote events share one code path.
type Dispatcher struct {
	bus      pubsub.Bus
	registry *registry.Registry
	doneCh   chan struct{}
}

func New(bus pubsub.Bus, reg *registry.Registry) *Dispatcher {
	return &Dispatcher{
		bus:      bus,
		registry: reg,
		doneCh:   make(chan struct{}),
	}
}

// Done is closed when Run exits.
func (d *Dispatcher) Done() <-chan struct{} { return d.doneCh }

// Run subscribes to both topic namespaces and forwards events until ctx is
// done. Subscription failures trigger a resubscribe after a short delay; a
// malformed message never stops the loop.
func (d *Dispatcher) Run(ctx context.Context) {
	defer close(d.doneCh)
	l := log.L()

	for {
		if err := d.runSubscription(ctx); err != nil && ctx.Err() == nil {
			l.Warn().Err(err).Msg("bus subscription error, resubscribing")
		}
		if ctx.Err() != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

func (d *Dispatcher) runSubscription(ctx context.Context) error {
	roomCh, err := d.bus.SubscribePattern(ctx, pubsub.PatternRoom)
	if err != nil {
		return err
	}
	pushCh, err := d.bus.SubscribePattern(ctx, pubsub.PatternPush)
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-roomCh:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
		case msg, ok := <-pushCh:
			if !ok {
				return nil
			}
			d.handle(ctx, msg)
		}
	}
}

// handle processes one bus message in isolation: a malformed topic or
// payload is logged and dropped, and the next message is unaffected.
func (d *Dispatcher) handle(ctx context.Context, msg *pubsub.Message) {
	l := log.Ctx(ctx)

	topic, err := pubsub.ParseTopic(msg.Topic)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldTopic, msg.Topic).Msg("dropping message with malformed topic")
		return
	}

	env, err := event.Unmarshal(msg.Data)
	if err != nil {
		l.Warn().Err(err).Str(log.FieldTopic, msg.Topic).Msg("dropping malformed envelope")
		return
	}

	// Room-kind traffic is pushed to clients as the full envelope under the
	// fixed new_message event name; push-kind traffic keeps the publisher's
	// own event type and carries the payload alone.
	pushType := env.EventType
	data := []byte(env.Payload)
	if topic.Kind == pubsub.KindRoom {
		pushType = event.PushNewMessage
		data = msg.Data
	}

	delivered := d.registry.Send(topic.RoomID, pushType, data)

	l.Debug().
		Str(log.FieldTopic, msg.Topic).
		Str(log.FieldEventID, env.EventID).
		Str(log.FieldEventType, pushType).
		Int("delivered", delivered).
		Msg("event dispatched")
}
