package pubsub

import "testing"

func TestTopicRendering(t *testing.T) {
	if got := RoomTopic("r1").String(); got != "room:r1" {
		t.Errorf("RoomTopic = %q", got)
	}
	if got := PushTopic("r1").String(); got != "push:r1" {
		t.Errorf("PushTopic = %q", got)
	}
}

func TestParseTopicInverse(t *testing.T) {
	for _, in := range []Topic{RoomTopic("r1"), PushTopic("550e8400-e29b-41d4-a716-446655440000")} {
		out, err := ParseTopic(in.String())
		if err != nil {
			t.Fatalf("ParseTopic(%q): %v", in.String(), err)
		}
		if out != in {
			t.Errorf("ParseTopic(%q) = %+v, want %+v", in.String(), out, in)
		}
	}
}

func TestParseTopicPreservesColonsInRoomID(t *testing.T) {
	// Splitting stops at the first separator; anything after it is the id.
	out, err := ParseTopic("room:a:b")
	if err != nil {
		t.Fatalf("ParseTopic: %v", err)
	}
	if out.RoomID != "a:b" {
		t.Errorf("RoomID = %q, want %q", out.RoomID, "a:b")
	}
}

func TestParseTopicMalformed(t *testing.T) {
	for _, in := range []string{"", "room", "room:", "sse:r1", "ROOM:r1", ":r1"} {
		if _, err := ParseTopic(in); err == nil {
			t.Errorf("ParseTopic(%q): expected error", in)
		}
	}
}

func TestKafkaTopicMapping(t *testing.T) {
	topic, key, err := busTopicToKafka("room:r1")
	if err != nil {
		t.Fatalf("busTopicToKafka: %v", err)
	}
	if topic != kafkaTopicRoom || key != "r1" {
		t.Errorf("got (%q, %q)", topic, key)
	}

	topic, key, err = busTopicToKafka("push:r2")
	if err != nil {
		t.Fatalf("busTopicToKafka: %v", err)
	}
	if topic != kafkaTopicPush || key != "r2" {
		t.Errorf("got (%q, %q)", topic, key)
	}

	if _, _, err := busTopicToKafka("bogus"); err == nil {
		t.Error("expected error for malformed bus topic")
	}

	if got := busTopicFromKafka(kafkaTopicPush, "r2"); got != "push:r2" {
		t.Errorf("busTopicFromKafka = %q", got)
	}
}
