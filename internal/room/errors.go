package room

import "errors"

// Capacity and ownership violations surface as typed errors so callers can
// translate them into control-plane failure results. They never tear down
// a connection.
var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrRoomFull            = errors.New("room is full")
	ErrAlreadyJoined       = errors.New("user already joined this room")
	ErrUserNotFound        = errors.New("user not found in room")
	ErrStreamNotFound      = errors.New("stream not found in room")
	ErrStreamExists        = errors.New("stream id already exists in room")
	ErrStreamLimitExceeded = errors.New("room publisher limit exceeded")
	ErrNotPublisher        = errors.New("user is not the publisher of this stream")
	ErrSelfSubscribe       = errors.New("cannot subscribe to own stream")
)
