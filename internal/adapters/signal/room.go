package signal

import (
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
)

// welcome tells the newcomer who is already here and announces it to them.
func (ctl *RelayController) welcome(sid core.SessionID, roomID domain.RoomID, conn *WsSignalConn) {
	room, ok := ctl.Orch.Rooms.GetRoom(roomID)
	if !ok {
		return
	}
	var client string
	peers := make([]proto.Peer, 0, room.MemberCount())
	for _, m := range room.MembersSnapshot() {
		if m.SessionID == sid {
			client = string(m.ClientID)
			continue
		}
		peers = append(peers, proto.Peer{SessionID: string(m.SessionID), ClientID: string(m.ClientID)})
	}
	sendJSON(conn, proto.RelayEvent{Type: proto.EventWelcome, Session: string(sid), Client: client, Peers: peers})

	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Int("peers", len(peers)).Msg("join")
	ctl.BroadcastFrom(sid, proto.RelayEvent{Type: proto.EventPeerJoined, Session: string(sid), Client: client})
}

func (ctl *RelayController) departed(roomID domain.RoomID, sid core.SessionID) {
	log.Info().Str("module", "signal").Str("sid", string(sid)).Str("room", string(roomID)).Msg("leave")
	ctl.BroadcastRoom(roomID, proto.RelayEvent{Type: proto.EventPeerLeft, Session: string(sid)})
}
