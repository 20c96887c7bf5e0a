// Package room tracks live rooms, their members and their published streams
// for the UDP/WebRTC media path, and orchestrates publish/subscribe
// relationships between them.
package room

import "time"

// StreamType classifies the media source of a published stream.
type StreamType string

const (
	StreamTypeCamera StreamType = "camera"
	StreamTypeScreen StreamType = "screen"
	StreamTypeOther  StreamType = "other"
)

// Conn is the opaque transport handle attached to a live user. API-originated
// publishers may have none.
type Conn interface {
	ID() string
}

// LiveUser is a room member. Intra-room references are identifier lookups
// into the owning room's maps, never pointers, so membership and stream
// state cannot form ownership cycles.
type LiveUser struct {
	UserID string
	RoomID string
	Name   string
	Conn   Conn

	published  map[string]struct{} // stream ids this user publishes
	subscribed map[string]struct{} // stream ids this user receives
}

func newLiveUser(roomID, userID, name string, conn Conn) *LiveUser {
	return &LiveUser{
		UserID:     userID,
		RoomID:     roomID,
		Name:       name,
		Conn:       conn,
		published:  make(map[string]struct{}),
		subscribed: make(map[string]struct{}),
	}
}

// SubscribedStreams returns the ids of streams the user receives.
func (u *LiveUser) SubscribedStreams() []string {
	return keys(u.subscribed)
}

// PublishedStreams returns the ids of streams the user publishes.
func (u *LiveUser) PublishedStreams() []string {
	return keys(u.published)
}

// LiveStream is a published stream and its subscriber set.
type LiveStream struct {
	StreamID    string
	RoomID      string
	PublisherID string
	Name        string
	Type        StreamType
	HasAudio    bool
	HasVideo    bool

	subscribers map[string]struct{} // user ids
}

func newLiveStream(roomID, publisherID, streamID, name string, typ StreamType, hasAudio, hasVideo bool) *LiveStream {
	return &LiveStream{
		StreamID:    streamID,
		RoomID:      roomID,
		PublisherID: publisherID,
		Name:        name,
		Type:        typ,
		HasAudio:    hasAudio,
		HasVideo:    hasVideo,
		subscribers: make(map[string]struct{}),
	}
}

// Subscribers returns the user ids subscribed to the stream.
func (s *LiveStream) Subscribers() []string {
	return keys(s.subscribers)
}

// Room owns its members and streams. All access goes through the Manager's
// lock.
type Room struct {
	ID      string
	users   map[string]*LiveUser
	streams map[string]*LiveStream

	createdAt  time.Time
	emptySince time.Time
}

func newRoom(id string, now time.Time) *Room {
	return &Room{
		ID:         id,
		users:      make(map[string]*LiveUser),
		streams:    make(map[string]*LiveStream),
		createdAt:  now,
		emptySince: now,
	}
}

// UserCount returns the number of members.
func (r *Room) UserCount() int { return len(r.users) }

// StreamCount returns the number of published streams.
func (r *Room) StreamCount() int { return len(r.streams) }

// Info is a point-in-time snapshot of a room for the admin API.
type Info struct {
	ID          string       `json:"id"`
	UserCount   int          `json:"user_count"`
	StreamCount int          `json:"stream_count"`
	CreatedAt   time.Time    `json:"created_at"`
	Users       []UserInfo   `json:"users,omitempty"`
	Streams     []StreamInfo `json:"streams,omitempty"`
}

// UserInfo is a snapshot of a room member.
type UserInfo struct {
	UserID     string   `json:"user_id"`
	RoomID     string   `json:"room_id"`
	Name       string   `json:"name,omitempty"`
	Published  []string `json:"published,omitempty"`
	Subscribed []string `json:"subscribed,omitempty"`
}

// StreamInfo is a snapshot of a published stream.
type StreamInfo struct {
	StreamID    string     `json:"stream_id"`
	RoomID      string     `json:"room_id"`
	PublisherID string     `json:"publisher_id"`
	Name        string     `json:"name,omitempty"`
	Type        StreamType `json:"type"`
	HasAudio    bool       `json:"has_audio"`
	HasVideo    bool       `json:"has_video"`
	Subscribers []string   `json:"subscribers,omitempty"`
}

func (u *LiveUser) toInfo() UserInfo {
	return UserInfo{
		UserID:     u.UserID,
		RoomID:     u.RoomID,
		Name:       u.Name,
		Published:  keys(u.published),
		Subscribed: keys(u.subscribed),
	}
}

func (s *LiveStream) toInfo() StreamInfo {
	return StreamInfo{
		StreamID:    s.StreamID,
		RoomID:      s.RoomID,
		PublisherID: s.PublisherID,
		Name:        s.Name,
		Type:        s.Type,
		HasAudio:    s.HasAudio,
		HasVideo:    s.HasVideo,
		Subscribers: keys(s.subscribers),
	}
}

func (r *Room) toInfo(detailed bool) Info {
	info := Info{
		ID:          r.ID,
		UserCount:   len(r.users),
		StreamCount: len(r.streams),
		CreatedAt:   r.createdAt,
	}
	if detailed {
		for _, u := range r.users {
			info.Users = append(info.Users, u.toInfo())
		}
		for _, s := range r.streams {
			info.Streams = append(info.Streams, s.toInfo())
		}
	}
	return info
}

func keys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
