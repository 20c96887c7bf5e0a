package udpmux

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/pion/stun/v3"
	"github.com/rs/zerolog"

	"github.com/voclink/relay-service/internal/rtp"
	"github.com/voclink/relay-service/pkg/log"
)

// PacketHandler is the external collaborator that owns STUN/DTLS/ICE/SRTP
// state. It receives every datagram whole and performs the authoritative
// routing; it must not retain data past the call.
type PacketHandler interface {
	HandlePacket(ctx context.Context, src *net.UDPAddr, data []byte)
}

// HandlerFunc adapts a function to the PacketHandler interface.
type HandlerFunc func(ctx context.Context, src *net.UDPAddr, data []byte)

func (f HandlerFunc) HandlePacket(ctx context.Context, src *net.UDPAddr, data []byte) {
	f(ctx, src, data)
}

// Discard drops every datagram. Used until an SFU engine attaches.
var Discard PacketHandler = HandlerFunc(func(context.Context, *net.UDPAddr, []byte) {})

// Stats are cumulative per-protocol datagram counters.
type Stats struct {
	STUN    uint64 `json:"stun"`
	DTLS    uint64 `json:"dtls"`
	RTP     uint64 `json:"rtp"`
	RTCP    uint64 `json:"rtcp"`
	Unknown uint64 `json:"unknown"`
}

// Server reads datagrams from the media socket, classifies them for
// diagnostics and forwards each one to the packet handler. A malformed
// datagram never stops the read loop.
type Server struct {
	addr    string
	handler PacketHandler
	logger  zerolog.Logger

	pc *net.UDPConn

	stun    atomic.Uint64
	dtls    atomic.Uint64
	rtp     atomic.Uint64
	rtcp    atomic.Uint64
	unknown atomic.Uint64
}

// NewServer creates a UDP media server delivering datagrams to handler.
func NewServer(addr string, handler PacketHandler) *Server {
	if handler == nil {
		handler = Discard
	}
	return &Server{
		addr:    addr,
		handler: handler,
		logger:  log.L().With().Str(log.FieldProtocol, "udp").Logger(),
	}
}

// Listen binds the UDP socket. Kept separate from Serve so one listener
// failing to bind does not stop the others from starting.
func (s *Server) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("udp resolve %s: %w", s.addr, err)
	}
	pc, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("udp listen %s: %w", s.addr, err)
	}
	s.pc = pc
	s.logger.Info().Str("addr", s.addr).Msg("udp server listening")
	return nil
}

// Serve runs the datagram read loop until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	if s.pc == nil {
		return errors.New("udp server not listening")
	}

	go func() {
		<-ctx.Done()
		s.pc.Close()
	}()

	buf := make([]byte, 65536)
	for {
		n, src, err := s.pc.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			s.logger.Warn().Err(err).Msg("udp read failed")
			continue
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		s.observe(src, data)
		s.handler.HandlePacket(ctx, src, data)
	}
}

// observe updates the advisory counters and trace diagnostics. Decode
// failures here are expected and only counted.
func (s *Server) observe(src *net.UDPAddr, data []byte) {
	proto := Classify(data)
	switch proto {
	case ProtocolSTUN:
		s.stun.Add(1)
		if e := s.logger.Trace(); e.Enabled() {
			e.Str(log.FieldRemoteAddr, src.String()).
				Bool("stun_magic", stun.IsMessage(data)).
				Msg("stun datagram")
		}
	case ProtocolDTLS:
		s.dtls.Add(1)
	case ProtocolRTP:
		s.rtp.Add(1)
		if e := s.logger.Trace(); e.Enabled() {
			if p := rtp.Decode(data); p != nil {
				e.Str(log.FieldRemoteAddr, src.String()).
					Uint8("payload_type", p.PayloadType).
					Uint16("seq", p.SequenceNumber).
					Bool("video", p.IsVideo()).
					Msg("rtp datagram")
			}
		}
	case ProtocolRTCP:
		s.rtcp.Add(1)
	default:
		s.unknown.Add(1)
	}
}

// Stats returns a snapshot of the traffic counters.
func (s *Server) Stats() Stats {
	return Stats{
		STUN:    s.stun.Load(),
		DTLS:    s.dtls.Load(),
		RTP:     s.rtp.Load(),
		RTCP:    s.rtcp.Load(),
		Unknown: s.unknown.Load(),
	}
}
