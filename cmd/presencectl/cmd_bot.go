package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dkeye/Presence/internal/config"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/ice"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/dkeye/Presence/internal/presence"
	"github.com/dkeye/Presence/internal/session"
	"github.com/dkeye/Presence/internal/transport"
	"github.com/dkeye/Presence/internal/transport/memory"
	"github.com/dkeye/Presence/internal/transport/mesh"
	"github.com/dkeye/Presence/internal/transport/wsrelay"
)

type botFlags struct {
	fragment  string
	host      string
	slug      string
	name      string
	transport string
	count     int
	fps       int
	report    time.Duration
	duration  time.Duration
}

var bot botFlags

func init() {
	rootCmd.AddCommand(botCmd)
	f := botCmd.Flags()
	f.StringVar(&bot.fragment, "room", "", "location fragment to join, e.g. #example-org-xr-publisher-gallery")
	f.StringVar(&bot.host, "host", "localhost", "page host used when --room is empty")
	f.StringVar(&bot.slug, "slug", "lobby", "page slug used when --room is empty")
	f.StringVar(&bot.name, "name", "bot", "display name prefix")
	f.StringVar(&bot.transport, "transport", "", "mesh, ws or memory (default from config)")
	f.IntVar(&bot.count, "count", 1, "number of bots")
	f.IntVar(&bot.fps, "fps", 60, "frames per second fed to the scheduler")
	f.DurationVar(&bot.report, "report", 2*time.Second, "how often to log visible peers")
	f.DurationVar(&bot.duration, "duration", 0, "stop after this long (0 runs until interrupted)")
}

var botCmd = &cobra.Command{
	Use:   "bot",
	Short: "Join a room as headless participants that walk, jump and log the peers they see",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if bot.transport != "" {
			cfg.Client.Transport = bot.transport
		}
		factory, err := transportFactory(cfg.Client)
		if err != nil {
			return err
		}
		if bot.fps <= 0 {
			return fmt.Errorf("fps must be positive, got %d", bot.fps)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer cancel()
		if bot.duration > 0 {
			ctx, cancel = context.WithTimeout(ctx, bot.duration)
			defer cancel()
		}

		reg := prometheus.NewRegistry()
		clientMetrics := metrics.NewClient(reg)
		g, gctx := errgroup.WithContext(ctx)
		for i := range bot.count {
			name := bot.name
			if bot.count > 1 {
				name = fmt.Sprintf("%s-%d", bot.name, i+1)
			}
			g.Go(func() error { return runBot(gctx, cfg.Client, factory, clientMetrics, name) })
		}
		err = g.Wait()
		if families, gerr := reg.Gather(); gerr == nil {
			for _, mf := range families {
				for _, m := range mf.GetMetric() {
					log.Info().Str("module", "presencectl").Str("metric", mf.GetName()).Float64("value", m.GetCounter().GetValue()).Msg("final")
				}
			}
		}
		return err
	},
}

func transportFactory(cfg config.ClientConfig) (transport.Factory, error) {
	switch cfg.Transport {
	case "", "mesh":
		return mesh.Factory(mesh.Config{BaseURL: cfg.BaseURL}), nil
	case "ws":
		return wsrelay.Factory(wsrelay.Config{BaseURL: cfg.BaseURL}), nil
	case "memory":
		return memory.NewHub().Factory(), nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

func iceSource(cfg config.ClientConfig) ice.Source {
	if cfg.TurnEndpoint == "" {
		return ice.Static(ice.DefaultServers())
	}
	return ice.NewFetcher(cfg.TurnEndpoint, os.Getenv("PRESENCE_TURN_NONCE"))
}

func runBot(ctx context.Context, cfg config.ClientConfig, factory transport.Factory, m *metrics.Client, name string) error {
	opts := transport.DefaultOptions()
	if cfg.PollFast > 0 {
		opts.PollIntervalFast = cfg.PollFast
	}
	if cfg.PollSlow > 0 {
		opts.PollIntervalSlow = cfg.PollSlow
	}
	fragment := bot.fragment
	mgr := session.NewManager(session.Config{
		Self:             domain.NewClientID(),
		ParticipantLimit: cfg.ParticipantLimit,
		RoomFullDelay:    cfg.RoomFullDelay,
		Options:          opts,
		Fallback:         session.DeriveRoomID(bot.host, bot.slug, cfg.Prefix),
	}, factory, iceSource(cfg), func() string { return fragment })
	defer mgr.Close()

	identity := domain.LocalIdentity{UserID: string(mgr.Self()), DisplayName: name}
	engine := presence.New(presence.DefaultConfig(), mgr, identity, m)

	sess, err := mgr.Sync(ctx)
	if err != nil {
		return fmt.Errorf("%s: join: %w", name, err)
	}
	logger := log.With().Str("module", "presencectl").Str("bot", name).Logger()
	logger.Info().Str("room", string(sess.Identity.RoomID())).Msg("joined")

	tick := time.NewTicker(time.Second / time.Duration(bot.fps))
	defer tick.Stop()
	report := time.NewTicker(bot.report)
	defer report.Stop()
	w := newWalker(time.Now())

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-tick.C:
			engine.Step(w.frame(now))
		case now := <-report.C:
			room := ""
			if cur, ok := mgr.Current(); ok {
				room = string(cur.Identity.RoomID())
			}
			views := engine.Views(now)
			logger.Info().Str("room", room).Int("peers", len(views)).Msg("report")
			for _, v := range views {
				logger.Info().
					Str("peer", string(v.PeerID)).
					Str("name", v.DisplayName).
					Str("movement", v.Movement.String()).
					Floats64("pos", v.Position[:]).
					Msg("peer")
			}
		}
	}
}
