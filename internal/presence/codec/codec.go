// Package codec turns presence samples into wire messages and back.
//
// A message is a JSON object keyed by the sender's client id:
//
//	{"user-1": {"v":1,"seq":7,"position":[0,1,2],"rotation":[0,3.14,0],
//	            "profileImage":"...","avatarUrl":"...","displayName":"...",
//	            "movement":{"action":"walking","instance":"update"}}}
//
// Decoding is lenient: the record may appear unwrapped at the top level,
// legacy field names are accepted, unknown fields are ignored and a missing
// movement field means Idle. Only payloads that are not a JSON object fail.
package codec

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/goccy/go-json"

	"github.com/dkeye/Presence/internal/domain"
)

// Version is the wire version written by Encode.
const Version = 1

var (
	ErrMalformed = errors.New("malformed presence message")
	ErrNoRecord  = fmt.Errorf("%w: no presence record", ErrMalformed)
)

type wireRecord struct {
	V            int             `json:"v"`
	Seq          uint64          `json:"seq,omitempty"`
	Position     [3]float64      `json:"position"`
	Rotation     [3]float64      `json:"rotation"`
	UserID       string          `json:"userId,omitempty"`
	ProfileImage string          `json:"profileImage"`
	AvatarURL    string          `json:"avatarUrl"`
	DisplayName  string          `json:"displayName"`
	Movement     json.RawMessage `json:"movement"`
}

type movementObject struct {
	Action   string `json:"action"`
	Instance string `json:"instance,omitempty"`
	Hangtime *int   `json:"hangtime,omitempty"`
}

// Encode frames one sample under the sender's client id. seq is the sender's
// monotonically increasing publish counter; zero omits it.
func Encode(s domain.OutboundSample, client domain.ClientID, seq uint64) ([]byte, error) {
	if err := domain.ValidateClientID(client); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}
	mv, err := encodeMovement(s.Movement)
	if err != nil {
		return nil, fmt.Errorf("encode movement: %w", err)
	}
	rec := wireRecord{
		V:            Version,
		Seq:          seq,
		Position:     [3]float64(s.Position),
		Rotation:     [3]float64(s.Rotation),
		UserID:       s.Identity.UserID,
		ProfileImage: s.Identity.ProfileImage,
		AvatarURL:    s.Identity.AvatarURL,
		DisplayName:  s.Identity.DisplayName,
		Movement:     mv,
	}
	return json.Marshal(map[domain.ClientID]wireRecord{client: rec})
}

func encodeMovement(m domain.MovementState) ([]byte, error) {
	switch m.Kind {
	case domain.Stopped:
		return []byte("false"), nil
	case domain.Idle:
		return json.Marshal(m.Kind.String())
	case domain.Walking, domain.Running:
		return json.Marshal(movementObject{Action: m.Kind.String(), Instance: "update"})
	case domain.Jumping:
		instance := "update"
		if m.Hangtime == 0 {
			instance = "first"
		}
		h := m.Hangtime
		return json.Marshal(movementObject{Action: m.Kind.String(), Instance: instance, Hangtime: &h})
	case domain.JumpStop:
		h := m.Hangtime
		return json.Marshal(movementObject{Action: m.Kind.String(), Hangtime: &h})
	default:
		return nil, fmt.Errorf("unknown movement kind %d", int(m.Kind))
	}
}

const maxHangtime = math.MaxInt32

// recordKeys are field names that mark an unwrapped, top-level record.
var recordKeys = []string{"position", "rotation", "movement", "isMoving", "seq", "v"}

// Decode parses one inbound message. senderHint is the wrapping client id, or
// empty when the record arrived unwrapped.
func Decode(data []byte) (domain.ClientID, PartialSample, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return "", PartialSample{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if top == nil {
		return "", PartialSample{}, ErrNoRecord
	}
	for _, k := range recordKeys {
		if _, ok := top[k]; ok {
			return "", decodeRecord(top), nil
		}
	}

	keys := make([]string, 0, len(top))
	for k := range top {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(top[k], &inner); err != nil || inner == nil {
			continue
		}
		return domain.ClientID(k), decodeRecord(inner), nil
	}
	return "", PartialSample{}, ErrNoRecord
}

func decodeRecord(fields map[string]json.RawMessage) PartialSample {
	var p PartialSample
	if n, ok := number(fields["v"]); ok {
		p.Version = int(n)
	}
	if n, ok := number(fields["seq"]); ok && n > 0 {
		p.Seq = uint64(n)
	}
	p.Position = vec(fields["position"])
	p.Rotation = vec(fields["rotation"])
	p.UserID = str(fields["userId"])
	p.ProfileImage = str(fields["profileImage"])
	p.AvatarURL = firstStr(fields["avatarUrl"], fields["playerVRM"], fields["vrm"])
	p.DisplayName = firstStr(fields["displayName"], fields["inWorldName"])

	raw, ok := fields["movement"]
	if !ok {
		raw, ok = fields["isMoving"]
	}
	if ok {
		p.Movement, p.HasMovement = movement(raw)
	}
	return p
}

func movement(raw json.RawMessage) (domain.MovementState, bool) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return domain.MovementState{}, false
	}
	switch t := v.(type) {
	case nil:
		return domain.MovementState{}, false
	case bool:
		if t {
			return domain.MovementState{Kind: domain.Walking}, true
		}
		return domain.MovementState{Kind: domain.Stopped}, true
	case string:
		kind, _ := domain.ParseMovementKind(t)
		return domain.MovementState{Kind: kind}, true
	case map[string]any:
		action, _ := t["action"].(string)
		kind, _ := domain.ParseMovementKind(action)
		m := domain.MovementState{Kind: kind}
		if kind == domain.Jumping || kind == domain.JumpStop {
			if h, ok := t["hangtime"].(float64); ok && h > 0 {
				m.Hangtime = int(math.Min(h, maxHangtime))
			}
		}
		return m, true
	default:
		return domain.MovementState{}, true
	}
}

func vec(raw json.RawMessage) *domain.Vec3 {
	if len(raw) == 0 {
		return nil
	}
	var xs []float64
	if err := json.Unmarshal(raw, &xs); err != nil || len(xs) < 3 {
		return nil
	}
	v := domain.Vec3{xs[0], xs[1], xs[2]}
	return &v
}

func number(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}

func str(raw json.RawMessage) *string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return &s
}

func firstStr(raws ...json.RawMessage) *string {
	for _, raw := range raws {
		if s := str(raw); s != nil {
			return s
		}
	}
	return nil
}
