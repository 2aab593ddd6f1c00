package codec

import (
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/dkeye/Presence/internal/domain"
)

func sampleWith(m domain.MovementState) domain.OutboundSample {
	return domain.OutboundSample{
		Position: domain.Vec3{1.5, -0.25, 1e-9},
		Rotation: domain.Vec3{0, math.Pi / 3, -0.1},
		Identity: domain.LocalIdentity{
			UserID:       "42",
			ProfileImage: "https://example.com/me.png",
			AvatarURL:    "https://example.com/me.vrm",
			DisplayName:  "Ada",
		},
		Movement: m,
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name string
		move domain.MovementState
	}{
		{name: "idle", move: domain.MovementState{Kind: domain.Idle}},
		{name: "walking", move: domain.MovementState{Kind: domain.Walking}},
		{name: "running", move: domain.MovementState{Kind: domain.Running}},
		{name: "jump start", move: domain.Jump(0)},
		{name: "jump airborne", move: domain.Jump(12)},
		{name: "jump stop", move: domain.Land(12)},
		{name: "jump stop zero", move: domain.Land(0)},
		{name: "stopped", move: domain.MovementState{Kind: domain.Stopped}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := sampleWith(tc.move)
			data, err := Encode(in, "user-7", 3)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			sender, partial, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode(%s): %v", data, err)
			}
			if sender != "user-7" {
				t.Fatalf("sender = %q, want user-7", sender)
			}
			if partial.Seq != 3 || partial.Version != Version {
				t.Fatalf("seq/version = %d/%d, want 3/%d", partial.Seq, partial.Version, Version)
			}
			if got := partial.Sample(); got != in {
				t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, in)
			}
		})
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	s := sampleWith(domain.MovementState{})
	if _, err := Encode(s, "", 0); !errors.Is(err, domain.ErrClientIDEmpty) {
		t.Fatalf("empty client id: err = %v", err)
	}
	s.Position[1] = math.NaN()
	if _, err := Encode(s, "user-1", 0); !errors.Is(err, domain.ErrNonFinite) {
		t.Fatalf("NaN position: err = %v", err)
	}
	for _, m := range []domain.MovementState{domain.Jump(-1), domain.Land(-3)} {
		if _, err := Encode(sampleWith(m), "user-1", 0); !errors.Is(err, domain.ErrNegativeHangtime) {
			t.Fatalf("%v hangtime %d: err = %v", m.Kind, m.Hangtime, err)
		}
	}
	s = sampleWith(domain.MovementState{Kind: domain.MovementKind(99)})
	if _, err := Encode(s, "user-1", 0); err == nil {
		t.Fatal("expected error for unknown movement kind")
	}
}

func TestDecodeMalformed(t *testing.T) {
	inputs := []string{
		"",
		"hello there",
		"[1,2,3]",
		"42",
		`"just a string"`,
		"null",
		"{}",
		`{"user-1": 5}`,
		`{"user-1": [1,2]}`,
		`{"user-1": {"position": [1,2`,
		"\xff\xfe\x00",
	}
	for _, in := range inputs {
		_, _, err := Decode([]byte(in))
		if !errors.Is(err, ErrMalformed) {
			t.Fatalf("Decode(%q) err = %v, want ErrMalformed", in, err)
		}
	}
}

func TestDecodeTolerance(t *testing.T) {
	t.Run("missing movement is idle", func(t *testing.T) {
		_, p, err := Decode([]byte(`{"user-1":{"position":[1,2,3]}}`))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.HasMovement || p.Movement.Kind != domain.Idle {
			t.Fatalf("movement = %v (has=%v), want idle", p.Movement, p.HasMovement)
		}
		if p.Rotation != nil {
			t.Fatal("rotation should be absent")
		}
	})

	t.Run("unwrapped record", func(t *testing.T) {
		sender, p, err := Decode([]byte(`{"position":[1,2,3],"rotation":[0,1,0],"movement":"running"}`))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if sender != "" {
			t.Fatalf("sender = %q, want empty hint", sender)
		}
		if p.Movement.Kind != domain.Running {
			t.Fatalf("movement = %v, want running", p.Movement)
		}
	})

	t.Run("legacy field names", func(t *testing.T) {
		msg := `{"user-9":{"position":[0,0,0],"rotation":[0,0,0],"playerVRM":"a.vrm","inWorldName":"Bob",` +
			`"isMoving":{"action":"jumping","instance":"first","hangtime":4}}}`
		sender, p, err := Decode([]byte(msg))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if sender != "user-9" {
			t.Fatalf("sender = %q", sender)
		}
		s := p.Sample()
		if s.Identity.AvatarURL != "a.vrm" || s.Identity.DisplayName != "Bob" {
			t.Fatalf("identity = %+v", s.Identity)
		}
		if s.Movement != domain.Jump(4) {
			t.Fatalf("movement = %v, want jumping{4}", s.Movement)
		}
	})

	t.Run("legacy stop message", func(t *testing.T) {
		_, p, err := Decode([]byte(`{"user-9":{"isMoving":false,"position":[1,1,1]}}`))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.Movement.Kind != domain.Stopped {
			t.Fatalf("movement = %v, want stopped", p.Movement)
		}
	})

	t.Run("unknown and bad fields ignored", func(t *testing.T) {
		msg := `{"user-2":{"position":"north","rotation":[1,2],"displayName":7,"future":{"x":1},` +
			`"movement":{"action":"flying","hangtime":3}}}`
		_, p, err := Decode([]byte(msg))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.Position != nil || p.Rotation != nil || p.DisplayName != nil {
			t.Fatalf("malformed fields should be absent: %+v", p)
		}
		if p.Movement != (domain.MovementState{Kind: domain.Idle}) {
			t.Fatalf("movement = %v, want idle", p.Movement)
		}
	})

	t.Run("negative hangtime clamps", func(t *testing.T) {
		_, p, err := Decode([]byte(`{"u":{"movement":{"action":"jumpStop","hangtime":-5}}}`))
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if p.Movement != domain.Land(0) {
			t.Fatalf("movement = %v", p.Movement)
		}
	})
}

func TestMergeKeepsAbsentFields(t *testing.T) {
	base := sampleWith(domain.MovementState{Kind: domain.Walking})
	_, p, err := Decode([]byte(`{"u":{"movement":false,"position":[9,9,9]}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	got := p.Merge(base)
	if got.Position != (domain.Vec3{9, 9, 9}) {
		t.Fatalf("position = %v", got.Position)
	}
	if got.Rotation != base.Rotation || got.Identity != base.Identity {
		t.Fatalf("absent fields were overwritten: %+v", got)
	}
	if got.Movement.Kind != domain.Stopped {
		t.Fatalf("movement = %v", got.Movement)
	}
}

func TestEncodeShape(t *testing.T) {
	data, err := Encode(sampleWith(domain.MovementState{Kind: domain.Stopped}), "user-1", 0)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	s := string(data)
	if !strings.HasPrefix(s, `{"user-1":{`) {
		t.Fatalf("not keyed by client id: %s", s)
	}
	if !strings.Contains(s, `"movement":false`) {
		t.Fatalf("stopped should encode as false: %s", s)
	}
	if strings.Contains(s, `"seq"`) {
		t.Fatalf("zero seq should be omitted: %s", s)
	}
}
