package rtmp

import "crypto/rand"

const (
	rtmpVersion   = 3
	handshakeSize = 1536
)

type handshakeState int

const (
	awaitC0 handshakeState = iota
	awaitC1
	awaitC2
	handshakeDone
)

// Handshake is the server side of the RTMP handshake, driven by whatever
// bytes the transport has buffered. The C0 version byte and the C2 echo are
// intentionally not validated.
type Handshake struct {
	state handshakeState
	buf   []byte
}

// Feed consumes handshake bytes from p and returns the reply to write, if
// any. Once the handshake is complete, bytes beyond it are available via
// Rest.
func (h *Handshake) Feed(p []byte) []byte {
	if h.state == handshakeDone {
		h.buf = append(h.buf, p...)
		return nil
	}

	h.buf = append(h.buf, p...)

	var reply []byte
	for {
		switch h.state {
		case awaitC0:
			if len(h.buf) < 1 {
				return reply
			}
			// Version byte is ignored.
			h.buf = h.buf[1:]
			h.state = awaitC1

		case awaitC1:
			if len(h.buf) < handshakeSize {
				return reply
			}
			c1 := h.buf[:handshakeSize]

			// S0 ‖ S1 ‖ S2 written as a single message; S2 echoes C1.
			out := make([]byte, 1+2*handshakeSize)
			out[0] = rtmpVersion
			rand.Read(out[1 : 1+handshakeSize])
			copy(out[1+handshakeSize:], c1)
			reply = append(reply, out...)

			h.buf = h.buf[handshakeSize:]
			h.state = awaitC2

		case awaitC2:
			if len(h.buf) < handshakeSize {
				return reply
			}
			h.buf = h.buf[handshakeSize:]
			h.state = handshakeDone
			return reply

		default:
			return reply
		}
	}
}

// Done reports whether the handshake has completed.
func (h *Handshake) Done() bool {
	return h.state == handshakeDone
}

// Rest returns buffered bytes received past the end of the handshake and
// releases them.
func (h *Handshake) Rest() []byte {
	rest := h.buf
	h.buf = nil
	return rest
}
