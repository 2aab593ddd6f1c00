package signal

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Presence/internal/core"
)

// RoomsController lists rooms per signaling channel.
type RoomsController struct {
	Poll  core.RoomManager
	Relay core.RoomManager
}

func (ctl *RoomsController) HandleRooms(c *gin.Context) {
	out := gin.H{}
	if ctl.Poll != nil {
		out["poll"] = ctl.Poll.List()
	}
	if ctl.Relay != nil {
		out["relay"] = ctl.Relay.List()
	}
	c.JSON(http.StatusOK, out)
}
