package rtmp

import "testing"

func testConn(id string) *Conn {
	return &Conn{id: id}
}

func TestRegistryPublishOverwrites(t *testing.T) {
	r := NewRegistry()
	first := testConn("first")
	second := testConn("second")

	r.Publish("live", "cam1", first)
	r.Publish("live", "cam1", second)

	if got := r.Publisher("live", "cam1"); got != second {
		t.Error("later publisher did not replace earlier one")
	}
	if pubs, _ := r.Counts(); pubs != 1 {
		t.Errorf("publisher count = %d, want 1", pubs)
	}
}

func TestRegistryPlayBeforePublish(t *testing.T) {
	r := NewRegistry()
	viewer := testConn("viewer")

	// Subscriber group exists independently of any publisher.
	r.Play("live", "cam1", viewer)

	if r.Publisher("live", "cam1") != nil {
		t.Error("unexpected publisher")
	}
	subs := r.Subscribers("live", "cam1")
	if len(subs) != 1 || subs[0] != viewer {
		t.Errorf("subscribers = %v, want the one viewer", subs)
	}
}

func TestRegistryKeysAreAppScoped(t *testing.T) {
	r := NewRegistry()
	r.Publish("live", "cam1", testConn("a"))

	if r.Publisher("vod", "cam1") != nil {
		t.Error("publisher leaked across apps")
	}
}

func TestRegistrySubscribersSnapshot(t *testing.T) {
	r := NewRegistry()
	a := testConn("a")
	b := testConn("b")
	r.Play("live", "cam1", a)
	r.Play("live", "cam1", b)

	subs := r.Subscribers("live", "cam1")
	if len(subs) != 2 {
		t.Fatalf("got %d subscribers, want 2", len(subs))
	}
	if r.Subscribers("live", "cam2") != nil {
		t.Error("unexpected subscribers for unknown stream")
	}
}

func TestRegistryRemoveConn(t *testing.T) {
	r := NewRegistry()
	pub := testConn("pub")
	sub := testConn("sub")

	r.Publish("live", "cam1", pub)
	r.Play("live", "cam1", sub)
	r.Play("live", "cam2", sub)

	r.RemoveConn(sub)
	if got := r.Subscribers("live", "cam1"); got != nil {
		t.Errorf("subscribers after removal = %v, want none", got)
	}
	if r.Publisher("live", "cam1") != pub {
		t.Error("publisher disturbed by subscriber removal")
	}

	r.RemoveConn(pub)
	if r.Publisher("live", "cam1") != nil {
		t.Error("publisher still registered after removal")
	}

	pubs, subs := r.Counts()
	if pubs != 0 || subs != 0 {
		t.Errorf("counts = (%d, %d), want (0, 0)", pubs, subs)
	}
}
