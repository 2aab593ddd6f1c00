// Package metrics exposes prometheus collectors for the relay and the presence client.
// Every recorder method is safe on a nil receiver so callers can run without metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "presence"

// Poll results.
const (
	PollOK          = "ok"
	PollRoomFull    = "room_full"
	PollRateLimited = "rate_limited"
	PollBadRequest  = "bad_request"
)

type Relay struct {
	rooms    prometheus.Gauge
	sessions *prometheus.GaugeVec
	polls    *prometheus.CounterVec
	expired  prometheus.Counter
	relayed  prometheus.Counter
	dropped  prometheus.Counter
	kicked   prometheus.Counter
}

func NewRelay(reg prometheus.Registerer) *Relay {
	f := promauto.With(reg)
	return &Relay{
		rooms: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "rooms",
			Help: "Rooms with at least one member.",
		}),
		sessions: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "relay", Name: "sessions",
			Help: "Sessions bound to a room, by channel.",
		}, []string{"channel"}),
		polls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "polls_total",
			Help: "Signaling polls by result.",
		}, []string{"result"}),
		expired: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "sessions_expired_total",
			Help: "Poll sessions removed by the janitor.",
		}),
		relayed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "frames_relayed_total",
			Help: "Websocket frames fanned out to room members.",
		}),
		dropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "frames_dropped_total",
			Help: "Frames dropped on member backpressure.",
		}),
		kicked: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "relay", Name: "members_kicked_total",
			Help: "Members removed by the backpressure policy.",
		}),
	}
}

func (r *Relay) Poll(result string) {
	if r == nil {
		return
	}
	r.polls.WithLabelValues(result).Inc()
}

func (r *Relay) SetRooms(n int) {
	if r == nil {
		return
	}
	r.rooms.Set(float64(n))
}

func (r *Relay) SetSessions(channel string, n int) {
	if r == nil {
		return
	}
	r.sessions.WithLabelValues(channel).Set(float64(n))
}

func (r *Relay) Expired(n int) {
	if r == nil {
		return
	}
	r.expired.Add(float64(n))
}

func (r *Relay) Relayed(sent, dropped int) {
	if r == nil {
		return
	}
	r.relayed.Add(float64(sent))
	r.dropped.Add(float64(dropped))
}

func (r *Relay) Kicked() {
	if r == nil {
		return
	}
	r.kicked.Inc()
}

type Client struct {
	publishes      prometheus.Counter
	decodeFailures prometheus.Counter
	ingested       *prometheus.CounterVec
}

func NewClient(reg prometheus.Registerer) *Client {
	f := promauto.With(reg)
	return &Client{
		publishes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "publishes_total",
			Help: "Presence samples broadcast by the local scheduler.",
		}),
		decodeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "decode_failures_total",
			Help: "Inbound messages that failed to decode.",
		}),
		ingested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "client", Name: "samples_ingested_total",
			Help: "Inbound samples by store outcome.",
		}, []string{"outcome"}),
	}
}

func (c *Client) Published() {
	if c == nil {
		return
	}
	c.publishes.Inc()
}

func (c *Client) DecodeFailed() {
	if c == nil {
		return
	}
	c.decodeFailures.Inc()
}

func (c *Client) Ingested(outcome string) {
	if c == nil {
		return
	}
	c.ingested.WithLabelValues(outcome).Inc()
}
