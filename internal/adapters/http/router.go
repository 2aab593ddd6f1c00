package http

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/adapters/signal"
	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/config"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/dkeye/Presence/internal/proto"
)

func genClientToken() string {
	return "user-" + uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// Deps is everything the router hands to its controllers.
type Deps struct {
	Poll       *orch.Orchestrator
	Relay      *orch.Orchestrator
	Metrics    *metrics.Relay
	Gatherer   prometheus.Gatherer
	ICEServers []proto.ICEServer
}

func SetupRouter(ctx context.Context, cfg *config.Config, deps Deps) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("PresenceSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	poll := &signal.PollController{
		Orch:    deps.Poll,
		Limiter: signal.NewRoomRateLimiter(cfg.Relay.PollRateLimit, cfg.Relay.PollRateWindow),
		Metrics: deps.Metrics,
	}
	if cfg.Relay.PollRateLimit <= 0 {
		poll.Limiter = nil
	}
	api.POST("/signal/:room/poll", poll.HandlePoll)
	api.POST("/signal/:room/leave", poll.HandleLeave)

	turn := &signal.TurnController{Servers: deps.ICEServers}
	api.GET("/turn-credentials", turn.HandleTurn)

	rooms := &signal.RoomsController{Poll: deps.Poll.Rooms}
	if deps.Relay != nil {
		relay := signal.NewRelayController(deps.Relay, cfg.Relay.SendQueue, cfg.ReadLimit, cfg.PingPeriod)
		rooms.Relay = deps.Relay.Rooms
		api.GET("/ws/relay", func(c *gin.Context) {
			log.Debug().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Msg("ws relay endpoint hit")
			relay.HandleRelay(ctx, c)
		})
	}
	api.GET("/rooms", rooms.HandleRooms)

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}

	return r
}
