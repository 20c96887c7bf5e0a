package rtmp

import "sync"

// Registry is the (app, stream) directory shared by all RTMP connections.
// Publishers and subscriber groups are tracked independently: a stream may
// have zero or one publisher and any number of subscribers, and either side
// may register first.
type Registry struct {
	mu          sync.RWMutex
	publishers  map[string]*Conn
	subscribers map[string]map[string]*Conn // key → conn id → conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		publishers:  make(map[string]*Conn),
		subscribers: make(map[string]map[string]*Conn),
	}
}

func streamKey(app, stream string) string {
	return app + "/" + stream
}

// Publish registers c as the publisher for (app, stream). An existing
// publisher is overwritten; last writer wins.
func (r *Registry) Publish(app, stream string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publishers[streamKey(app, stream)] = c
}

// Play adds c to the subscriber group for (app, stream), creating the group
// if needed. The connection receives all subsequent writes to the key until
// it is removed.
func (r *Registry) Play(app, stream string, c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := streamKey(app, stream)
	group, ok := r.subscribers[key]
	if !ok {
		group = make(map[string]*Conn)
		r.subscribers[key] = group
	}
	group[c.ID()] = c
}

// Publisher returns the current publisher for (app, stream), or nil.
func (r *Registry) Publisher(app, stream string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.publishers[streamKey(app, stream)]
}

// Subscribers returns a snapshot of the subscriber group for (app, stream).
func (r *Registry) Subscribers(app, stream string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	group := r.subscribers[streamKey(app, stream)]
	if len(group) == 0 {
		return nil
	}
	conns := make([]*Conn, 0, len(group))
	for _, c := range group {
		conns = append(conns, c)
	}
	return conns
}

// RemoveConn purges a departing connection from every publisher entry and
// subscriber group it occupies. Called from the connection close hook.
func (r *Registry) RemoveConn(c *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, pub := range r.publishers {
		if pub == c {
			delete(r.publishers, key)
		}
	}
	for key, group := range r.subscribers {
		delete(group, c.ID())
		if len(group) == 0 {
			delete(r.subscribers, key)
		}
	}
}

// Counts returns the number of publisher entries and total subscribers,
// for diagnostics.
func (r *Registry) Counts() (publishers, subscribers int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, group := range r.subscribers {
		subscribers += len(group)
	}
	return len(r.publishers), subscribers
}
