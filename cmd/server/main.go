package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Presence/internal/adapters/http"
	"github.com/dkeye/Presence/internal/app"
	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/config"
	"github.com/dkeye/Presence/internal/ice"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/dkeye/Presence/internal/proto"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	zerolog.SetGlobalLevel(cfg.Level())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	relayMetrics := metrics.NewRelay(reg)
	policy := app.PolicyByName(cfg.Relay.Policy)
	orch.MailboxSize = cfg.Relay.MailboxSize

	newOrch := func(channel string) *orch.Orchestrator {
		return &orch.Orchestrator{
			Registry: app.NewRegistry(),
			Rooms:    app.NewRoomManager(cfg.Relay.DefaultParticipants, cfg.Relay.MaxParticipants),
			Policy:   policy,
			Metrics:  relayMetrics,
			Channel:  channel,
		}
	}
	pollOrch := newOrch("poll")
	relayOrch := newOrch("ws")

	r := router.SetupRouter(ctx, cfg, router.Deps{
		Poll:       pollOrch,
		Relay:      relayOrch,
		Metrics:    relayMetrics,
		Gatherer:   reg,
		ICEServers: iceServers(cfg),
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Presence relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return pollOrch.RunJanitor(gctx, cfg.Relay.JanitorInterval, cfg.Relay.SessionTTL)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func iceServers(cfg *config.Config) []proto.ICEServer {
	if len(cfg.ICEServers) == 0 {
		return ice.ToProto(ice.DefaultServers())
	}
	out := make([]proto.ICEServer, 0, len(cfg.ICEServers))
	for _, s := range cfg.ICEServers {
		out = append(out, proto.ICEServer{URLs: proto.URLList(s.URLs), Username: s.Username, Credential: s.Credential})
	}
	return out
}
