package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/voclink/relay-service/internal/api"
	"github.com/voclink/relay-service/internal/config"
	"github.com/voclink/relay-service/internal/room"
	"github.com/voclink/relay-service/internal/rtmp"
	"github.com/voclink/relay-service/internal/udpmux"
	"github.com/voclink/relay-service/pkg/log"
	"github.com/voclink/relay-service/pkg/pubsub"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := log.L()
		l.Fatal().Err(err).Msg("failed to load configuration")
	}

	log.Init(cfg.Log)
	logger := log.L()
	logger.Info().
		Str("rtmp_addr", cfg.RTMP.Addr()).
		Str("udp_addr", cfg.UDP.Addr()).
		Str("http_addr", cfg.Server.Addr()).
		Msg("starting relay service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Lifecycle events are optional; the relay runs standalone without a
	// broker.
	var events pubsub.Publisher
	if cfg.Room.EventsEnabled {
		ps, err := pubsub.NewPubSub(cfg.PubSub)
		if err != nil {
			logger.Warn().Err(err).Msg("pubsub unavailable, lifecycle events disabled")
		} else {
			defer ps.Close()
			events = ps
		}
	}

	rooms := room.NewManager(room.Config{
		MaxUsersPerRoom:      cfg.Room.MaxUsers,
		MaxPublishersPerRoom: cfg.Room.MaxPublishers,
		IdleTimeout:          cfg.Room.IdleTimeout,
		SweepInterval:        cfg.Room.SweepInterval,
	}, events)

	registry := rtmp.NewRegistry()
	rtmpServer := rtmp.NewServer(cfg.RTMP.Addr(), cfg.RTMP.ChunkSize, registry)

	// The SFU engine (DTLS/SRTP/ICE termination) attaches its packet
	// handler here; until then datagrams are classified and dropped.
	udpServer := udpmux.NewServer(cfg.UDP.Addr(), udpmux.Discard)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      api.NewHandler(rooms, registry, udpServer).Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	// A bind failure on one listener must not prevent the others from
	// starting.
	if err := rtmpServer.Listen(); err != nil {
		logger.Error().Err(err).Msg("rtmp listener disabled")
	} else {
		g.Go(func() error { return rtmpServer.Serve(gctx) })
	}

	if err := udpServer.Listen(); err != nil {
		logger.Error().Err(err).Msg("udp listener disabled")
	} else {
		g.Go(func() error { return udpServer.Serve(gctx) })
	}

	g.Go(func() error {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		rooms.RunSweeper(gctx)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("relay service stopped with error")
		return
	}
	logger.Info().Msg("relay service stopped")
}
