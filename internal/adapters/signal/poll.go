package signal

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/app/orch"
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/metrics"
	"github.com/dkeye/Presence/internal/proto"
)

const maxPollBody = 1 << 20

// PollController serves the long-lived HTTP signaling mailbox.
type PollController struct {
	Orch    *orch.Orchestrator
	Limiter *RoomRateLimiter
	Metrics *metrics.Relay
}

func decodeBody(c *gin.Context, v any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPollBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func (ctl *PollController) HandlePoll(c *gin.Context) {
	roomID := domain.NormalizeRoomID(c.Param("room"))
	var req proto.PollRequest
	if err := decodeBody(c, &req); err != nil {
		ctl.Metrics.Poll(metrics.PollBadRequest)
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: proto.ErrCodeBadPayload})
		return
	}
	if req.ClientID == "" {
		req.ClientID = c.GetString("client_token")
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(req.SessionID) {
		ctl.Metrics.Poll(metrics.PollRateLimited)
		c.JSON(http.StatusTooManyRequests, proto.ErrorResponse{Error: proto.ErrCodeRateLimited})
		return
	}

	resp, err := ctl.Orch.Poll(roomID, req)
	switch {
	case err == nil:
		ctl.Metrics.Poll(metrics.PollOK)
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, core.ErrRoomFull):
		ctl.Metrics.Poll(metrics.PollRoomFull)
		c.JSON(http.StatusConflict, proto.ErrorResponse{Error: proto.ErrCodeRoomFull})
	case errors.Is(err, orch.ErrBadPoll):
		ctl.Metrics.Poll(metrics.PollBadRequest)
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: proto.ErrCodeBadPayload})
	default:
		log.Error().Err(err).Str("module", "signal.poll").Str("room", string(roomID)).Msg("poll failed")
		c.JSON(http.StatusInternalServerError, proto.ErrorResponse{Error: err.Error()})
	}
}

func (ctl *PollController) HandleLeave(c *gin.Context) {
	var req proto.LeaveRequest
	if err := decodeBody(c, &req); err != nil || req.SessionID == "" {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: proto.ErrCodeBadPayload})
		return
	}
	sid := core.SessionID(req.SessionID)
	roomID := domain.NormalizeRoomID(c.Param("room"))
	if current, _, ok := ctl.Orch.Registry.RoomOf(sid); ok && current != roomID {
		c.JSON(http.StatusBadRequest, proto.ErrorResponse{Error: proto.ErrCodeBadPayload})
		return
	}
	ctl.Orch.Leave(sid)
	if ctl.Limiter != nil {
		ctl.Limiter.Forget(req.SessionID)
	}
	c.Status(http.StatusNoContent)
}
