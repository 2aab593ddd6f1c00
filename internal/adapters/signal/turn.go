package signal

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dkeye/Presence/internal/proto"
)

// TurnController hands out the configured ICE servers in the browser RTCIceServer shape.
type TurnController struct {
	Servers []proto.ICEServer
}

func (ctl *TurnController) HandleTurn(c *gin.Context) {
	servers := ctl.Servers
	if servers == nil {
		servers = []proto.ICEServer{}
	}
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, servers)
}
