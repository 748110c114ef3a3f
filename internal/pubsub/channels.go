package pubsub

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two topic namespaces on the bus. It is derived once
// at topic-parse time; downstream code switches on the tag, never on string
// prefixes.
type Kind int

const (
	// KindRoom carries raw chat message propagation: "room:{roomID}".
	KindRoom Kind = iota
	// KindPush carries all other push-channel events (presence, system,
	// derived AI events): "push:{roomID}".
	KindPush
)

const (
	kindRoomPrefix = "room"
	kindPushPrefix = "push"
)

func (k Kind) String() string {
	switch k {
	case KindRoom:
		return kindRoomPrefix
	case KindPush:
		return kindPushPrefix
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Topic is a routing label derived from (kind, room id). It has no
// persistent identity.
type Topic struct {
	Kind   Kind
	RoomID string
}

func (t Topic) String() string {
	return t.Kind.String() + ":" + t.RoomID
}

// RoomTopic returns the topic for raw chat messages of a room.
func RoomTopic(roomID string) Topic {
	return Topic{Kind: KindRoom, RoomID: roomID}
}

// PushTopic returns the topic for push-channel events of a room.
func PushTopic(roomID string) Topic {
	return Topic{Kind: KindPush, RoomID: roomID}
}

// Subscription patterns covering each namespace.
const (
	PatternRoom = kindRoomPrefix + ":*"
	PatternPush = kindPushPrefix + ":*"
)

// ParseTopic parses "{kind}:{roomID}". Malformed topics (too few segments,
// unknown kind, empty room id) are an error; callers log and drop.
func ParseTopic(s string) (Topic, error) {
	kind, roomID, ok := strings.Cut(s, ":")
	if !ok || roomID == "" {
		return Topic{}, fmt.Errorf("malformed topic %q", s)
	}
	switch kind {
	case kindRoomPrefix:
		return Topic{Kind: KindRoom, RoomID: roomID}, nil
	case kindPushPrefix:
		return Topic{Kind: KindPush, RoomID: roomID}, nil
	default:
		return Topic{}, fmt.Errorf("unknown topic kind %q", kind)
	}
}
