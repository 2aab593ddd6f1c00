package orch

import (
	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/rs/zerolog/log"
)

// Join puts a bound session into a room, leaving its previous room first.
// limit only applies when the room does not exist yet.
func (o *Orchestrator) Join(sid core.SessionID, roomID domain.RoomID, limit int) error {
	session, ok := o.Registry.GetSession(sid)
	if !ok {
		return core.ErrUnknownMember
	}
	if current, _, ok := o.Registry.RoomOf(sid); ok {
		if current == roomID {
			return nil
		}
		o.cleanupMembership(sid)
		log.Info().Str("module", "orch").Str("sid", string(sid)).Str("from_room", string(current)).Msg("left previous room")
	}

	room := o.Rooms.GetOrCreate(roomID, limit)
	if err := room.AddMember(sid, session); err != nil {
		o.Rooms.StopIfEmpty(roomID)
		return err
	}
	o.Registry.UpdateRoom(sid, roomID)
	o.updateGauges()
	log.Info().Str("module", "orch").Str("sid", string(sid)).Str("room", string(roomID)).Msg("added to room")
	return nil
}

// Leave drops the session from its room and forgets it.
func (o *Orchestrator) Leave(sid core.SessionID) {
	o.cleanupMembership(sid)
	sess, ok := o.Registry.GetSession(sid)
	o.Registry.Cancel(sid)
	if !o.Registry.Unbind(sid) {
		return
	}
	if ok {
		if sc := sess.Signal(); sc != nil {
			sc.Close()
		}
	}
	o.updateGauges()
}

func (o *Orchestrator) KickBySID(sid core.SessionID) {
	log.Info().Str("module", "orch").Str("sid", string(sid)).Msg("kick")
	o.Metrics.Kicked()
	o.Leave(sid)
}

func (o *Orchestrator) cleanupMembership(sid core.SessionID) {
	roomID, _, ok := o.Registry.RoomOf(sid)
	if !ok {
		return
	}
	if room, ok := o.Rooms.GetRoom(roomID); ok {
		room.RemoveMember(sid)
	}
	o.Registry.RemoveRoom(sid)
	if o.Rooms.StopIfEmpty(roomID) {
		log.Info().Str("module", "orch").Str("room", string(roomID)).Msg("room emptied")
	}
	if o.OnDeparted != nil {
		o.OnDeparted(roomID, sid)
	}
	o.updateGauges()
}

func (o *Orchestrator) EvictRoom(id domain.RoomID) {
	for _, snap := range o.Registry.MembersOfRoom(id) {
		o.KickBySID(snap.SID)
	}
	o.Rooms.StopRoom(id)
	o.updateGauges()
}
