// Package rtmp implements the TCP ingest path: a minimal RTMP server that
// accepts publishers, answers the session bootstrap commands and relays
// audio/video messages to subscribers through a shared stream registry.
package rtmp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"

	"github.com/rs/zerolog"

	"github.com/voclink/relay-service/pkg/log"
)

// Server accepts RTMP connections and runs one pipeline goroutine each.
type Server struct {
	addr      string
	chunkSize int
	registry  *Registry
	logger    zerolog.Logger

	ln net.Listener
	wg sync.WaitGroup

	mu    sync.Mutex
	conns map[*Conn]struct{}
}

// NewServer creates an RTMP server bound to registry.
func NewServer(addr string, chunkSize int, registry *Registry) *Server {
	return &Server{
		addr:      addr,
		chunkSize: chunkSize,
		registry:  registry,
		logger:    log.L().With().Str(log.FieldProtocol, "rtmp").Logger(),
		conns:     make(map[*Conn]struct{}),
	}
}

// Listen binds the TCP socket. Kept separate from Serve so one listener
// failing to bind does not stop the others from starting.
func (s *Server) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("rtmp listen %s: %w", s.addr, err)
	}
	s.ln = ln
	s.logger.Info().Str("addr", s.addr).Msg("rtmp server listening")
	return nil
}

// Serve accepts connections until ctx is cancelled or the listener closes.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return errors.New("rtmp server not listening")
	}

	go func() {
		<-ctx.Done()
		s.ln.Close()

		s.mu.Lock()
		for conn := range s.conns {
			conn.nc.Close()
		}
		s.mu.Unlock()
	}()

	for {
		nc, err := s.ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn().Err(err).Msg("accept failed")
			continue
		}

		conn := newConn(nc, s.registry, s.chunkSize)
		conn.logger.Info().Msg("rtmp connection accepted")

		s.mu.Lock()
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			conn.serve()

			s.mu.Lock()
			delete(s.conns, conn)
			s.mu.Unlock()
		}()
	}

	s.wg.Wait()
	return nil
}
