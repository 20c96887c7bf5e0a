package rtmp

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/voclink/relay-service/internal/amf0"
	"github.com/voclink/relay-service/pkg/log"
)

const defaultApp = "live"

// Conn is one RTMP connection's pipeline: handshake, chunk assembly and
// command/media handling. All state except writes is owned by the read
// goroutine; writes take a mutex because publishers fan out into subscriber
// connections from their own goroutines.
type Conn struct {
	id       string
	nc       net.Conn
	registry *Registry
	logger   zerolog.Logger

	hs  *Handshake
	asm *Assembler

	// Session attributes set by connect/publish/play.
	app          string
	streamName   string
	nextStreamID float64

	wmu sync.Mutex
}

func newConn(nc net.Conn, registry *Registry, chunkSize int) *Conn {
	id := uuid.New().String()
	return &Conn{
		id:       id,
		nc:       nc,
		registry: registry,
		logger: log.L().With().
			Str(log.FieldConnID, id).
			Str(log.FieldRemoteAddr, nc.RemoteAddr().String()).
			Logger(),
		hs:  &Handshake{},
		asm: NewAssembler(chunkSize),
		app: defaultApp,
	}
}

// ID returns the connection's opaque identity.
func (c *Conn) ID() string {
	return c.id
}

// serve runs the read loop until the peer disconnects, then cleans the
// connection out of the registry.
func (c *Conn) serve() {
	defer func() {
		c.registry.RemoveConn(c)
		c.nc.Close()
		c.logger.Info().Msg("rtmp connection closed")
	}()

	buf := make([]byte, 4096)
	for {
		n, err := c.nc.Read(buf)
		if n > 0 {
			c.feed(buf[:n])
		}
		if err != nil {
			return
		}
	}
}

func (c *Conn) feed(p []byte) {
	if !c.hs.Done() {
		reply := c.hs.Feed(p)
		if len(reply) > 0 {
			c.write(reply)
		}
		if !c.hs.Done() {
			return
		}
		c.logger.Debug().Msg("rtmp handshake complete")
		p = c.hs.Rest()
		if len(p) == 0 {
			return
		}
	}

	for _, msg := range c.asm.Feed(p) {
		c.handleMessage(msg)
	}
}

func (c *Conn) handleMessage(m *Message) {
	switch m.TypeID {
	case TypeAudio, TypeVideo:
		c.forwardMedia(m)
	case TypeCommand:
		c.dispatchCommand(m)
	default:
		c.logger.Debug().Uint8("type_id", m.TypeID).Msg("ignoring rtmp message")
	}
}

// forwardMedia relays an audio/video message to every current subscriber of
// this connection's (app, stream). A failed write to one subscriber never
// affects the others.
func (c *Conn) forwardMedia(m *Message) {
	if c.streamName == "" {
		return
	}

	subs := c.registry.Subscribers(c.app, c.streamName)
	if len(subs) == 0 {
		return
	}

	frame := EncodeMessage(commandChunkStreamID, m)
	for _, sub := range subs {
		if err := sub.write(frame); err != nil {
			sub.logger.Debug().Err(err).Msg("subscriber write failed")
		}
	}
}

func (c *Conn) dispatchCommand(m *Message) {
	dec := amf0.NewDecoder(m.Payload)

	nameV, err := dec.Decode()
	if err != nil {
		c.logger.Debug().Err(err).Msg("unreadable command message")
		return
	}
	name, ok := nameV.(string)
	if !ok {
		return
	}

	txnV, err := dec.Decode()
	if err != nil {
		return
	}
	txn, _ := txnV.(float64)

	// Third value: command object for connect, usually null otherwise.
	third, _ := dec.Decode()

	switch name {
	case "connect":
		c.handleConnect(txn, third)
	case "createStream":
		c.nextStreamID++
		c.writeResult(txn, &c.nextStreamID)
	case "publish":
		if streamName, ok := c.readStreamName(dec); ok {
			c.streamName = streamName
			c.registry.Publish(c.app, streamName, c)
			c.logger.Info().
				Str(log.FieldApp, c.app).
				Str(log.FieldStream, streamName).
				Msg("rtmp publish")
		}
	case "play":
		if streamName, ok := c.readStreamName(dec); ok {
			c.streamName = streamName
			c.registry.Play(c.app, streamName, c)
			c.logger.Info().
				Str(log.FieldApp, c.app).
				Str(log.FieldStream, streamName).
				Msg("rtmp play")
		}
	default:
		c.logger.Debug().Str("command", name).Msg("ignoring rtmp command")
	}
}

func (c *Conn) handleConnect(txn float64, commandObject interface{}) {
	app := defaultApp
	if obj, ok := commandObject.(map[string]interface{}); ok {
		if s, ok := obj["app"].(string); ok && s != "" {
			app = s
		}
	}
	c.app = app
	c.logger.Info().Str(log.FieldApp, app).Msg("rtmp connect")
	c.writeResult(txn, nil)
}

// readStreamName reads the stream-name argument that follows the command's
// third value in publish/play.
func (c *Conn) readStreamName(dec *amf0.Decoder) (string, bool) {
	v, err := dec.Decode()
	if err != nil {
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// writeResult sends _result(txn) or, with streamID set, _result(txn, id).
func (c *Conn) writeResult(txn float64, streamID *float64) {
	payload := amf0.AppendString(nil, "_result")
	payload = amf0.AppendNumber(payload, txn)
	if streamID != nil {
		payload = amf0.AppendNumber(payload, *streamID)
	}

	frame := EncodeMessage(commandChunkStreamID, &Message{
		TypeID:  TypeCommand,
		Payload: payload,
	})
	if err := c.write(frame); err != nil {
		c.logger.Debug().Err(err).Msg("reply write failed")
	}
}

func (c *Conn) write(p []byte) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_, err := c.nc.Write(p)
	return err
}
