package signal

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
)

func (ctl *RelayController) handlePing(sid core.SessionID, conn *WsSignalConn) {
	ctl.Orch.Registry.Touch(sid, time.Now())
	sendJSON(conn, proto.RelayEvent{Type: proto.EventPong})
}

// handleData stamps the sender onto the frame before fanning it out.
func (ctl *RelayController) handleData(sid core.SessionID, client domain.ClientID, ev proto.RelayEvent) {
	if len(ev.Data) == 0 {
		return
	}
	ev.Session = string(sid)
	ev.Client = string(client)
	ev.Peers = nil
	frame, err := json.Marshal(ev)
	if err != nil {
		log.Debug().Err(err).Str("module", "signal").Str("sid", string(sid)).Msg("data frame dropped")
		return
	}
	ctl.Orch.OnFrame(sid, frame)
}
