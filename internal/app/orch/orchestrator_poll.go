package orch

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
)

var ErrBadPoll = errors.New("bad poll request")

// MailboxSize bounds the packages held for one polling session.
var MailboxSize = 64

// Poll registers the caller on first contact, routes its outgoing packages to
// room mates and hands back the current member list plus everything queued for it.
func (o *Orchestrator) Poll(roomID domain.RoomID, req proto.PollRequest) (proto.PollResponse, error) {
	var resp proto.PollResponse
	if roomID == "" || req.SessionID == "" {
		return resp, ErrBadPoll
	}
	client := domain.ClientID(req.ClientID)
	if err := domain.ValidateClientID(client); err != nil {
		return resp, errors.Join(ErrBadPoll, err)
	}

	now := o.now()
	sid := core.SessionID(req.SessionID)
	sess, known := o.Registry.GetSession(sid)
	if !known {
		sess = core.NewMemberSession(domain.NewMember(client, now)).UpdateSignal(core.NewMailbox(MailboxSize))
		o.Registry.BindSignal(sid, sess, nil, now)
	}
	if err := o.Join(sid, roomID, req.Limit); err != nil {
		if !known {
			o.Leave(sid)
		}
		return resp, err
	}
	o.Registry.Touch(sid, now)

	room, ok := o.Rooms.GetRoom(roomID)
	if !ok {
		return resp, core.ErrUnknownMember
	}
	for _, pkg := range req.Packages {
		pkg.From = req.SessionID
		if pkg.Client == "" {
			pkg.Client = req.ClientID
		}
		frame, err := json.Marshal(pkg)
		if err != nil {
			continue
		}
		if err := room.SendTo(core.SessionID(pkg.To), frame); err != nil {
			log.Debug().Err(err).Str("module", "orch.poll").Str("from", pkg.From).Str("to", pkg.To).Msg("package not delivered")
		}
	}

	members := room.MembersSnapshot()
	resp.Peers = make([]proto.Peer, 0, len(members))
	for _, m := range members {
		resp.Peers = append(resp.Peers, proto.Peer{SessionID: string(m.SessionID), ClientID: string(m.ClientID)})
	}
	resp.Packages = []proto.Package{}
	if d, ok := sess.Signal().(core.Drainer); ok {
		for _, frame := range d.Drain() {
			var pkg proto.Package
			if err := json.Unmarshal(frame, &pkg); err != nil {
				continue
			}
			resp.Packages = append(resp.Packages, pkg)
		}
	}
	return resp, nil
}

// Expire removes every session that has not polled within ttl.
func (o *Orchestrator) Expire(ttl time.Duration) int {
	stale := o.Registry.Expired(o.now().Add(-ttl))
	for _, sid := range stale {
		log.Info().Str("module", "orch.poll").Str("sid", string(sid)).Msg("session expired")
		o.Leave(sid)
	}
	o.Metrics.Expired(len(stale))
	return len(stale)
}

// RunJanitor expires idle sessions every interval until ctx ends.
func (o *Orchestrator) RunJanitor(ctx context.Context, interval, ttl time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			o.Expire(ttl)
		}
	}
}
