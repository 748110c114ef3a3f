package event

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestMarshalUnmarshalRoundTrip(t *testing.T) {
	envelopes := []*Envelope{
		{
			EventID:    "e1",
			RoomID:     "r1",
			EventType:  TypeMessage,
			Payload:    json.RawMessage(`{"content":"hello"}`),
			SenderID:   "u1",
			SenderType: SenderUser,
			Timestamp:  1700000000000,
		},
		{
			EventID:   "e2",
			RoomID:    "r2",
			EventType: TypePresence,
			Payload:   json.RawMessage(`{"online":3}`),
			Timestamp: 1,
		},
		{
			// Free-form event type must survive the codec unchanged.
			EventID:   "e3",
			RoomID:    "r3",
			EventType: "typing_indicator",
			Payload:   json.RawMessage(`"u9"`),
			Timestamp: 0,
		},
	}

	for _, in := range envelopes {
		data, err := Marshal(in)
		if err != nil {
			t.Fatalf("Marshal(%s): %v", in.EventID, err)
		}
		out, err := Unmarshal(data)
		if err != nil {
			t.Fatalf("Unmarshal(%s): %v", in.EventID, err)
		}
		if !reflect.DeepEqual(in, out) {
			t.Errorf("round-trip mismatch for %s:\n in:  %+v\n out: %+v", in.EventID, in, out)
		}
	}
}

func TestNewMessageSetsInvariants(t *testing.T) {
	env, err := NewMessage(MessagePayload{
		MessageID:   "m1",
		RoomID:      "r1",
		SenderID:    "u1",
		SenderType:  SenderUser,
		Content:     "hi",
		ContentType: "text",
	})
	if err != nil {
		t.Fatalf("NewMessage: %v", err)
	}
	if env.EventID == "" {
		t.Error("event id not assigned")
	}
	if env.RoomID != "r1" || env.EventType != TypeMessage {
		t.Errorf("unexpected routing fields: room=%q type=%q", env.RoomID, env.EventType)
	}
	if env.Timestamp == 0 {
		t.Error("timestamp not set")
	}

	var p MessagePayload
	if err := env.UnmarshalPayload(&p); err != nil {
		t.Fatalf("UnmarshalPayload: %v", err)
	}
	if p.Content != "hi" || p.SenderID != "u1" {
		t.Errorf("payload mismatch: %+v", p)
	}
}

func TestUnmarshalMalformed(t *testing.T) {
	cases := map[string]string{
		"not json":          `{`,
		"wrong shape":       `[1,2,3]`,
		"missing room":      `{"event_id":"e","event_type":"message","timestamp":1}`,
		"missing type":      `{"event_id":"e","room_id":"r1","timestamp":1}`,
		"wrong field types": `{"room_id":5,"event_type":"message"}`,
	}
	for name, raw := range cases {
		if _, err := Unmarshal([]byte(raw)); !errors.Is(err, ErrMalformed) {
			t.Errorf("%s: expected ErrMalformed, got %v", name, err)
		}
	}
}

func TestMarshalRejectsInvalid(t *testing.T) {
	if _, err := Marshal(&Envelope{EventType: TypeMessage}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing room id, got %v", err)
	}
	if _, err := Marshal(&Envelope{RoomID: "r1"}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for missing event type, got %v", err)
	}
}
