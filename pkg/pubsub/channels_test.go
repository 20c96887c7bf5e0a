package pubsub

import "testing"

func TestRoomEventsChannel(t *testing.T) {
	if got := RoomEventsChannel("ROOM123"); got != "relay:room:ROOM123:events" {
		t.Errorf("channel = %q", got)
	}
}

func TestChannelToTopicAndKey(t *testing.T) {
	topic, key, err := channelToTopicAndKey("relay:room:ROOM123:events")
	if err != nil {
		t.Fatalf("valid channel rejected: %v", err)
	}
	if topic != roomEventsTopic || key != "ROOM123" {
		t.Errorf("mapped to (%q, %q)", topic, key)
	}

	for _, bad := range []string{"", "relay:room:events", "chat:room:ROOM123:events"} {
		if _, _, err := channelToTopicAndKey(bad); err == nil {
			t.Errorf("channel %q accepted", bad)
		}
	}
}

func TestEventPayloadRoundTrip(t *testing.T) {
	event, err := NewEvent(EventStreamPublished, "r1", StreamPayload{
		RoomID:   "r1",
		UserID:   "alice",
		StreamID: "cam1",
		HasVideo: true,
	})
	if err != nil {
		t.Fatalf("new event: %v", err)
	}

	var p StreamPayload
	if err := event.UnmarshalPayload(&p); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if p.StreamID != "cam1" || p.UserID != "alice" || !p.HasVideo {
		t.Errorf("payload = %+v", p)
	}
}
