package signal

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
)

var ErrBackpressure = errors.New("backpressure")

// RelayController serves the websocket data relay.
type RelayController struct {
	Orch       *orch.Orchestrator
	SendQueue  int
	ReadLimit  int64
	PingPeriod time.Duration
}

func NewRelayController(o *orch.Orchestrator, sendQueue int, readLimit int64, pingPeriod time.Duration) *RelayController {
	if sendQueue <= 0 {
		sendQueue = 32
	}
	if pingPeriod <= 0 {
		pingPeriod = 54 * time.Second
	}
	ctl := &RelayController{Orch: o, SendQueue: sendQueue, ReadLimit: readLimit, PingPeriod: pingPeriod}
	o.OnDeparted = ctl.departed
	return ctl
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

func (ctl *RelayController) BroadcastFrom(sid core.SessionID, v any) {
	for _, roomMate := range ctl.Orch.Registry.RoomMates(sid) {
		sendJSON(roomMate.Session.Signal(), v)
	}
}

func (ctl *RelayController) BroadcastRoom(roomID domain.RoomID, v any) {
	for _, snap := range ctl.Orch.Registry.MembersOfRoom(roomID) {
		sendJSON(snap.Session.Signal(), v)
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleRelay upgrades the request and joins the caller to ?room=.
// The client id comes from ?client= or the client token cookie.
func (ctl *RelayController) HandleRelay(ctx context.Context, c *gin.Context) {
	roomID := domain.NormalizeRoomID(c.Query("room"))
	client := domain.ClientID(c.Query("client"))
	if client == "" {
		client = domain.ClientID(c.GetString("client_token"))
	}
	if roomID == "" || domain.ValidateClientID(client) != nil {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: proto.ErrCodeBadPayload})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.ReadLimit > 0 {
		ws.SetReadLimit(ctl.ReadLimit)
	}

	sid := core.SessionID(uuid.NewString())
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("new WS connection")
	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.SendQueue),
	}
	now := time.Now()
	sess := core.NewMemberSession(domain.NewMember(client, now)).UpdateSignal(conn)
	ctx, cancel := context.WithCancel(ctx)
	ctl.Orch.Registry.BindSignal(sid, sess, cancel, now)

	if err := ctl.Orch.Join(sid, roomID, limit); err != nil {
		log.Info().Err(err).Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("join refused")
		ctl.refuse(ws)
		ctl.Orch.Leave(sid)
		return
	}
	ctl.welcome(sid, roomID, conn)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, sid, client, conn)
}

func (ctl *RelayController) refuse(ws *websocket.Conn) {
	frame, err := json.Marshal(proto.RelayEvent{Type: proto.EventRoomFull})
	if err != nil {
		return
	}
	if err := ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return
	}
	_ = ws.WriteMessage(websocket.TextMessage, frame)
}
