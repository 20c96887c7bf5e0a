package room

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/voclink/relay-service/pkg/log"
	"github.com/voclink/relay-service/pkg/pubsub"
)

// Config bounds room membership and idle reclamation.
type Config struct {
	MaxUsersPerRoom      int
	MaxPublishersPerRoom int
	IdleTimeout          time.Duration
	SweepInterval        time.Duration
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxUsersPerRoom:      50,
		MaxPublishersPerRoom: 10,
		IdleTimeout:          5 * time.Minute,
		SweepInterval:        60 * time.Second,
	}
}

type location struct {
	roomID string
	userID string
}

// eventQueueSize bounds the lifecycle-event backlog; events past it are
// dropped, matching the drop-when-slow policy of the pubsub consumers.
const eventQueueSize = 256

type emission struct {
	channel string
	event   *pubsub.Event
}

// Manager owns the room graph and the connection reverse index. All
// mutations are individually atomic under one lock; fan-out of media to
// resolved destinations happens outside it and is deliberately not
// transactional with membership changes.
type Manager struct {
	cfg    Config
	logger zerolog.Logger
	events pubsub.Publisher // optional, control path only

	mu        sync.RWMutex
	rooms     map[string]*Room
	connIndex map[string]location // conn id → (room, user)

	eventCh chan emission
}

// NewManager creates a room manager. events may be nil to disable lifecycle
// event emission.
func NewManager(cfg Config, events pubsub.Publisher) *Manager {
	if cfg.MaxUsersPerRoom <= 0 {
		cfg.MaxUsersPerRoom = DefaultConfig().MaxUsersPerRoom
	}
	if cfg.MaxPublishersPerRoom <= 0 {
		cfg.MaxPublishersPerRoom = DefaultConfig().MaxPublishersPerRoom
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultConfig().IdleTimeout
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultConfig().SweepInterval
	}
	m := &Manager{
		cfg:       cfg,
		logger:    log.L().With().Str("component", "room-manager").Logger(),
		events:    events,
		rooms:     make(map[string]*Room),
		connIndex: make(map[string]location),
	}
	if events != nil {
		m.eventCh = make(chan emission, eventQueueSize)
		go m.emitLoop()
	}
	return m
}

// GetOrCreateRoom creates the room if absent and returns its snapshot.
// Idempotent.
func (m *Manager) GetOrCreateRoom(roomID string) Info {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, _ := m.getOrCreateLocked(roomID)
	return r.toInfo(false)
}

// JoinRoom adds a user to a room, creating the room on first reference.
// conn may be nil for members without a live transport.
func (m *Manager) JoinRoom(roomID, userID string, conn Conn, name string) (UserInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, _ := m.getOrCreateLocked(roomID)

	if len(r.users) >= m.cfg.MaxUsersPerRoom {
		return UserInfo{}, ErrRoomFull
	}
	if _, ok := r.users[userID]; ok {
		return UserInfo{}, ErrAlreadyJoined
	}

	u := newLiveUser(roomID, userID, name, conn)
	r.users[userID] = u
	if conn != nil {
		m.connIndex[conn.ID()] = location{roomID: roomID, userID: userID}
	}

	m.logger.Info().
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUserID, userID).
		Msg("user joined room")
	m.emit(pubsub.EventUserJoined, roomID, pubsub.UserPayload{RoomID: roomID, UserID: userID, Name: name})

	return u.toInfo(), nil
}

// LeaveRoom removes a user, cascading to every stream they published and
// every subscription they held.
func (m *Manager) LeaveRoom(roomID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(roomID, userID)
}

func (m *Manager) leaveLocked(roomID, userID string) error {
	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	for streamID := range u.published {
		if st, ok := r.streams[streamID]; ok {
			m.removeStreamLocked(r, st)
		}
	}
	for streamID := range u.subscribed {
		if st, ok := r.streams[streamID]; ok {
			delete(st.subscribers, userID)
		}
	}

	if u.Conn != nil {
		delete(m.connIndex, u.Conn.ID())
	}
	delete(r.users, userID)
	if len(r.users) == 0 {
		r.emptySince = time.Now()
	}

	m.logger.Info().
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUserID, userID).
		Msg("user left room")
	m.emit(pubsub.EventUserLeft, roomID, pubsub.UserPayload{RoomID: roomID, UserID: userID})

	return nil
}

// HandleDisconnect resolves the departing connection to its room membership
// and removes it. Unknown connections are ignored.
func (m *Manager) HandleDisconnect(conn Conn) {
	if conn == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	loc, ok := m.connIndex[conn.ID()]
	if !ok {
		return
	}
	delete(m.connIndex, conn.ID())
	if err := m.leaveLocked(loc.roomID, loc.userID); err != nil {
		m.logger.Debug().Err(err).
			Str(log.FieldConnID, conn.ID()).
			Msg("disconnect cleanup skipped")
	}
}

// Publish registers a stream, auto-creating the room and, for publishers
// with no prior membership (API-originated), the user.
func (m *Manager) Publish(roomID, userID, streamID, name string, typ StreamType, hasAudio, hasVideo bool) (StreamInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, _ := m.getOrCreateLocked(roomID)

	u, ok := r.users[userID]
	if !ok {
		if len(r.users) >= m.cfg.MaxUsersPerRoom {
			return StreamInfo{}, ErrRoomFull
		}
		u = newLiveUser(roomID, userID, "", nil)
		r.users[userID] = u
	}

	if len(r.streams) >= m.cfg.MaxPublishersPerRoom {
		return StreamInfo{}, ErrStreamLimitExceeded
	}
	if _, ok := r.streams[streamID]; ok {
		return StreamInfo{}, ErrStreamExists
	}

	st := newLiveStream(roomID, userID, streamID, name, typ, hasAudio, hasVideo)
	r.streams[streamID] = st
	u.published[streamID] = struct{}{}

	m.logger.Info().
		Str(log.FieldRoomID, roomID).
		Str(log.FieldUserID, userID).
		Str(log.FieldStreamID, streamID).
		Msg("stream published")
	m.emit(pubsub.EventStreamPublished, roomID, pubsub.StreamPayload{
		RoomID:   roomID,
		UserID:   userID,
		StreamID: streamID,
		Name:     name,
		Type:     string(typ),
		HasAudio: hasAudio,
		HasVideo: hasVideo,
	})

	return st.toInfo(), nil
}

// Unpublish removes a stream and clears it from every subscriber. The
// returned slice holds the user ids that were subscribed at removal time so
// the caller can notify them.
func (m *Manager) Unpublish(roomID, userID, streamID string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return nil, ErrRoomNotFound
	}
	st, ok := r.streams[streamID]
	if !ok {
		return nil, ErrStreamNotFound
	}
	if st.PublisherID != userID {
		return nil, ErrNotPublisher
	}

	affected := st.Subscribers()
	m.removeStreamLocked(r, st)

	m.logger.Info().
		Str(log.FieldRoomID, roomID).
		Str(log.FieldStreamID, streamID).
		Int("subscribers", len(affected)).
		Msg("stream unpublished")
	m.emit(pubsub.EventStreamUnpublished, roomID, pubsub.StreamPayload{
		RoomID:      roomID,
		UserID:      userID,
		StreamID:    streamID,
		Subscribers: affected,
	})

	return affected, nil
}

// Subscribe adds the bidirectional subscriber relationship. Subscribing to
// one's own stream is rejected.
func (m *Manager) Subscribe(roomID, userID, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}
	st, ok := r.streams[streamID]
	if !ok {
		return ErrStreamNotFound
	}
	if st.PublisherID == userID {
		return ErrSelfSubscribe
	}

	st.subscribers[userID] = struct{}{}
	u.subscribed[streamID] = struct{}{}
	return nil
}

// Unsubscribe removes the relationship. A stream that has already been
// removed still clears the user's local bookkeeping and reports success.
func (m *Manager) Unsubscribe(roomID, userID, streamID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return ErrRoomNotFound
	}
	u, ok := r.users[userID]
	if !ok {
		return ErrUserNotFound
	}

	delete(u.subscribed, streamID)
	if st, ok := r.streams[streamID]; ok {
		delete(st.subscribers, userID)
	}
	return nil
}

// Rooms returns shallow snapshots of every room.
func (m *Manager) Rooms() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.rooms))
	for _, r := range m.rooms {
		out = append(out, r.toInfo(false))
	}
	return out
}

// Room returns a detailed snapshot of one room.
func (m *Manager) Room(roomID string) (Info, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rooms[roomID]
	if !ok {
		return Info{}, ErrRoomNotFound
	}
	return r.toInfo(true), nil
}

// Sweep destroys rooms that have been empty longer than the idle timeout
// and purges residual reverse-index entries for them. It returns the number
// of rooms destroyed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	destroyed := 0
	for id, r := range m.rooms {
		if len(r.users) > 0 || now.Sub(r.emptySince) <= m.cfg.IdleTimeout {
			continue
		}
		delete(m.rooms, id)
		for connID, loc := range m.connIndex {
			if loc.roomID == id {
				delete(m.connIndex, connID)
			}
		}
		destroyed++

		m.logger.Info().Str(log.FieldRoomID, id).Msg("idle room destroyed")
		m.emit(pubsub.EventRoomDestroyed, id, pubsub.RoomPayload{RoomID: id})
	}
	return destroyed
}

// RunSweeper runs the idle-room sweep on its own low-frequency ticker until
// ctx is cancelled. It never touches the I/O path.
func (m *Manager) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			m.Sweep(now)
		}
	}
}

func (m *Manager) getOrCreateLocked(roomID string) (*Room, bool) {
	if r, ok := m.rooms[roomID]; ok {
		return r, false
	}
	r := newRoom(roomID, time.Now())
	m.rooms[roomID] = r

	m.logger.Info().Str(log.FieldRoomID, roomID).Msg("room created")
	m.emit(pubsub.EventRoomCreated, roomID, pubsub.RoomPayload{RoomID: roomID})
	return r, true
}

func (m *Manager) removeStreamLocked(r *Room, st *LiveStream) {
	for userID := range st.subscribers {
		if u, ok := r.users[userID]; ok {
			delete(u.subscribed, st.StreamID)
		}
	}
	if owner, ok := r.users[st.PublisherID]; ok {
		delete(owner.published, st.StreamID)
	}
	delete(r.streams, st.StreamID)
}

// emit queues a lifecycle event without blocking the caller. Delivery is
// best effort: a full queue drops the event.
func (m *Manager) emit(eventType, roomID string, payload interface{}) {
	if m.events == nil {
		return
	}
	event, err := pubsub.NewEvent(eventType, roomID, payload)
	if err != nil {
		return
	}

	select {
	case m.eventCh <- emission{channel: pubsub.RoomEventsChannel(roomID), event: event}:
	default:
		m.logger.Debug().Str("event", eventType).Msg("event queue full, dropped")
	}
}

// emitLoop is the single goroutine draining the event queue into the
// publisher.
func (m *Manager) emitLoop() {
	for e := range m.eventCh {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		err := m.events.Publish(ctx, e.channel, e.event)
		cancel()
		if err != nil {
			m.logger.Debug().Err(err).Str("event", e.event.Type).Msg("event publish failed")
		}
	}
}
