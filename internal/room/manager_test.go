package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/voclink/relay-service/pkg/pubsub"
)

type fakeConn struct {
	id string
}

func (c *fakeConn) ID() string { return c.id }

func newTestManager() *Manager {
	return NewManager(Config{
		MaxUsersPerRoom:      3,
		MaxPublishersPerRoom: 2,
		IdleTimeout:          time.Minute,
		SweepInterval:        time.Second,
	}, nil)
}

func TestJoinRoomCreatesRoom(t *testing.T) {
	m := newTestManager()

	u, err := m.JoinRoom("r1", "alice", nil, "Alice")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if u.UserID != "alice" || u.RoomID != "r1" || u.Name != "Alice" {
		t.Errorf("user info = %+v", u)
	}

	info, err := m.Room("r1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	if info.UserCount != 1 || info.StreamCount != 0 {
		t.Errorf("room = %d users %d streams, want 1/0", info.UserCount, info.StreamCount)
	}
}

func TestJoinRoomTwiceFails(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("r1", "alice", nil, "")

	if _, err := m.JoinRoom("r1", "alice", nil, ""); !errors.Is(err, ErrAlreadyJoined) {
		t.Errorf("second join err = %v, want ErrAlreadyJoined", err)
	}
}

func TestJoinRoomFull(t *testing.T) {
	m := newTestManager()
	for _, id := range []string{"a", "b", "c"} {
		if _, err := m.JoinRoom("r1", id, nil, ""); err != nil {
			t.Fatalf("join %s: %v", id, err)
		}
	}
	if _, err := m.JoinRoom("r1", "d", nil, ""); !errors.Is(err, ErrRoomFull) {
		t.Errorf("join over cap err = %v, want ErrRoomFull", err)
	}
}

func TestPublishAutoCreatesUser(t *testing.T) {
	m := newTestManager()

	st, err := m.Publish("r1", "alice", "cam1", "front camera", StreamTypeCamera, true, true)
	if err != nil {
		t.Fatalf("publish: %v", err)
	}
	if st.PublisherID != "alice" || st.Type != StreamTypeCamera || !st.HasAudio || !st.HasVideo {
		t.Errorf("stream info = %+v", st)
	}

	info, err := m.Room("r1")
	if err != nil {
		t.Fatalf("room: %v", err)
	}
	if info.UserCount != 1 || info.StreamCount != 1 {
		t.Errorf("room = %d users %d streams, want 1/1", info.UserCount, info.StreamCount)
	}
}

func TestPublishDuplicateStreamID(t *testing.T) {
	m := newTestManager()
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)

	if _, err := m.Publish("r1", "bob", "cam1", "", StreamTypeCamera, true, true); !errors.Is(err, ErrStreamExists) {
		t.Errorf("duplicate publish err = %v, want ErrStreamExists", err)
	}
}

func TestPublishStreamLimit(t *testing.T) {
	m := newTestManager()
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)
	m.Publish("r1", "alice", "screen1", "", StreamTypeScreen, false, true)

	if _, err := m.Publish("r1", "alice", "cam2", "", StreamTypeCamera, true, true); !errors.Is(err, ErrStreamLimitExceeded) {
		t.Errorf("publish over cap err = %v, want ErrStreamLimitExceeded", err)
	}
}

func TestSubscribeAndUnpublish(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("r1", "alice", nil, "")
	m.JoinRoom("r1", "bob", nil, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)

	if err := m.Subscribe("r1", "bob", "cam1"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	affected, err := m.Unpublish("r1", "alice", "cam1")
	if err != nil {
		t.Fatalf("unpublish: %v", err)
	}
	if len(affected) != 1 || affected[0] != "bob" {
		t.Errorf("affected = %v, want [bob]", affected)
	}

	info, _ := m.Room("r1")
	if info.StreamCount != 0 {
		t.Errorf("stream count after unpublish = %d, want 0", info.StreamCount)
	}
	for _, u := range info.Users {
		if u.UserID == "bob" && len(u.Subscribed) != 0 {
			t.Errorf("bob still subscribed to %v", u.Subscribed)
		}
	}
}

func TestSubscribeOwnStreamFails(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("r1", "alice", nil, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)

	if err := m.Subscribe("r1", "alice", "cam1"); !errors.Is(err, ErrSelfSubscribe) {
		t.Errorf("self subscribe err = %v, want ErrSelfSubscribe", err)
	}
}

func TestUnpublishByNonOwnerFails(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("r1", "alice", nil, "")
	m.JoinRoom("r1", "bob", nil, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)

	if _, err := m.Unpublish("r1", "bob", "cam1"); !errors.Is(err, ErrNotPublisher) {
		t.Errorf("foreign unpublish err = %v, want ErrNotPublisher", err)
	}
}

func TestUnsubscribeIdempotent(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("r1", "alice", nil, "")
	m.JoinRoom("r1", "bob", nil, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)
	m.Subscribe("r1", "bob", "cam1")

	// Stream removed out from under the subscriber; unsubscribe still
	// succeeds and clears the user's bookkeeping.
	m.Unpublish("r1", "alice", "cam1")
	if err := m.Unsubscribe("r1", "bob", "cam1"); err != nil {
		t.Errorf("unsubscribe after unpublish: %v", err)
	}
	if err := m.Unsubscribe("r1", "bob", "cam1"); err != nil {
		t.Errorf("repeated unsubscribe: %v", err)
	}
}

func TestLeaveRoomCascades(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("r1", "alice", nil, "")
	m.JoinRoom("r1", "bob", nil, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)
	m.Subscribe("r1", "bob", "cam1")

	if err := m.LeaveRoom("r1", "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}

	info, _ := m.Room("r1")
	if info.UserCount != 1 || info.StreamCount != 0 {
		t.Errorf("room after leave = %d users %d streams, want 1/0", info.UserCount, info.StreamCount)
	}
	for _, u := range info.Users {
		if len(u.Subscribed) != 0 {
			t.Errorf("%s still subscribed to %v", u.UserID, u.Subscribed)
		}
	}
}

func TestLeaveRoomErrors(t *testing.T) {
	m := newTestManager()
	if err := m.LeaveRoom("missing", "alice"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("leave missing room err = %v, want ErrRoomNotFound", err)
	}
	m.JoinRoom("r1", "alice", nil, "")
	if err := m.LeaveRoom("r1", "bob"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("leave missing user err = %v, want ErrUserNotFound", err)
	}
}

func TestHandleDisconnect(t *testing.T) {
	m := newTestManager()
	conn := &fakeConn{id: "conn-1"}
	m.JoinRoom("r1", "alice", conn, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)

	m.HandleDisconnect(conn)

	info, _ := m.Room("r1")
	if info.UserCount != 0 || info.StreamCount != 0 {
		t.Errorf("room after disconnect = %d users %d streams, want 0/0", info.UserCount, info.StreamCount)
	}

	// Unknown connections are a no-op.
	m.HandleDisconnect(&fakeConn{id: "stranger"})
	m.HandleDisconnect(nil)
}

func TestSweepDestroysIdleRooms(t *testing.T) {
	m := newTestManager()
	m.JoinRoom("idle", "alice", nil, "")
	m.LeaveRoom("idle", "alice")
	m.JoinRoom("busy", "bob", nil, "")
	m.GetOrCreateRoom("fresh")

	// Only the room empty for longer than the idle timeout goes away.
	if n := m.Sweep(time.Now().Add(30 * time.Second)); n != 0 {
		t.Errorf("early sweep destroyed %d rooms, want 0", n)
	}
	if n := m.Sweep(time.Now().Add(2 * time.Minute)); n != 2 {
		t.Errorf("sweep destroyed %d rooms, want 2", n)
	}

	if _, err := m.Room("idle"); !errors.Is(err, ErrRoomNotFound) {
		t.Errorf("idle room still present: %v", err)
	}
	if _, err := m.Room("busy"); err != nil {
		t.Errorf("occupied room swept: %v", err)
	}
}

// recordingPublisher captures published events for inspection.
type recordingPublisher struct {
	mu     sync.Mutex
	events []*pubsub.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event *pubsub.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.Type
	}
	return out
}

// blockingPublisher never returns until released.
type blockingPublisher struct {
	release chan struct{}
}

func (p *blockingPublisher) Publish(_ context.Context, _ string, _ *pubsub.Event) error {
	<-p.release
	return nil
}

func TestLifecycleEventsDelivered(t *testing.T) {
	rec := &recordingPublisher{}
	m := NewManager(Config{}, rec)

	m.JoinRoom("r1", "alice", nil, "")
	m.Publish("r1", "alice", "cam1", "", StreamTypeCamera, true, true)
	m.Unpublish("r1", "alice", "cam1")
	m.LeaveRoom("r1", "alice")

	want := map[string]bool{
		pubsub.EventRoomCreated:       false,
		pubsub.EventUserJoined:        false,
		pubsub.EventStreamPublished:   false,
		pubsub.EventStreamUnpublished: false,
		pubsub.EventUserLeft:          false,
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		for _, typ := range rec.types() {
			if _, ok := want[typ]; ok {
				want[typ] = true
			}
		}
		all := true
		for _, seen := range want {
			all = all && seen
		}
		if all {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("missing lifecycle events, saw %v", rec.types())
}

func TestEmitNeverBlocksMutations(t *testing.T) {
	blocker := &blockingPublisher{release: make(chan struct{})}
	defer close(blocker.release)
	m := NewManager(Config{}, blocker)

	// Far more events than the queue holds; every mutation must still
	// return promptly while the publisher is stuck.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.JoinRoom("r1", "alice", nil, "")
			m.LeaveRoom("r1", "alice")
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("room mutations blocked on event emission")
	}
}

func TestGetOrCreateRoomIdempotent(t *testing.T) {
	m := newTestManager()
	first := m.GetOrCreateRoom("r1")
	m.JoinRoom("r1", "alice", nil, "")
	second := m.GetOrCreateRoom("r1")

	if first.ID != second.ID {
		t.Errorf("ids differ: %q vs %q", first.ID, second.ID)
	}
	if second.UserCount != 1 {
		t.Errorf("second snapshot user count = %d, want 1", second.UserCount)
	}
	if len(m.Rooms()) != 1 {
		t.Errorf("room count = %d, want 1", len(m.Rooms()))
	}
}
