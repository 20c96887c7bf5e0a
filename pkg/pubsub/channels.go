package pubsub

// Event types emitted by the relay core. Consumers (signaling, presence,
// chat) subscribe per room or to the room pattern.
const (
	EventRoomCreated       = "room.created"
	EventRoomDestroyed     = "room.destroyed"
	EventUserJoined        = "user.joined"
	EventUserLeft          = "user.left"
	EventStreamPublished   = "stream.published"
	EventStreamUnpublished = "stream.unpublished"
)

// RoomEventsPattern matches the per-room lifecycle channels.
const RoomEventsPattern = "relay:room:*:events"

// RoomEventsChannel builds the lifecycle channel name for a room.
func RoomEventsChannel(roomID string) string {
	return "relay:room:" + roomID + ":events"
}

// UserPayload describes a user joining or leaving a room.
type UserPayload struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
	Name   string `json:"name,omitempty"`
}

// StreamPayload describes a stream being published or removed.
type StreamPayload struct {
	RoomID      string   `json:"room_id"`
	UserID      string   `json:"user_id"`
	StreamID    string   `json:"stream_id"`
	Name        string   `json:"name,omitempty"`
	Type        string   `json:"type,omitempty"`
	HasAudio    bool     `json:"has_audio,omitempty"`
	HasVideo    bool     `json:"has_video,omitempty"`
	Subscribers []string `json:"subscribers,omitempty"`
}

// RoomPayload describes a room lifecycle change.
type RoomPayload struct {
	RoomID string `json:"room_id"`
}
