package session

import (
	"testing"

	"github.com/dkeye/Presence/internal/domain"
)

func TestDeriveRoomID(t *testing.T) {
	tests := []struct {
		name             string
		host, slug, pref string
		want             domain.RoomID
	}{
		{"default prefix", "www.Example.com", "My-Post", DefaultPrefix, "www-example-com-xr-publisher-my-post"},
		{"port stripped", "example.org:8443", "gallery", DefaultPrefix, "example-org-xr-publisher-gallery"},
		{"no prefix", "a.b.c", "slug", "", "a-b-c-slug"},
		{"empty slug", "example.org", "", DefaultPrefix, "example-org-xr-publisher"},
		{"localhost", "localhost:3000", "demo", DefaultPrefix, "localhost-xr-publisher-demo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DeriveRoomID(tt.host, tt.slug, tt.pref).RoomID(); got != tt.want {
				t.Fatalf("RoomID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFragment(t *testing.T) {
	id := DeriveRoomID("www.example.com", "post", DefaultPrefix)
	got, ok := ParseFragment(Fragment(id))
	if !ok || got != id {
		t.Fatalf("ParseFragment(Fragment) = %+v, %v; want %+v", got, ok, id)
	}

	tests := []struct {
		in   string
		ok   bool
		want domain.RoomID
	}{
		{"", false, ""},
		{"#", false, ""},
		{"#  ", false, ""},
		{"#Custom-Room", true, "custom-room"},
		{"#example-org-xr-publisher-a%20b", true, "example-org-xr-publisher-a b"},
	}
	for _, tt := range tests {
		got, ok := ParseFragment(tt.in)
		if ok != tt.ok || got.RoomID() != tt.want {
			t.Errorf("ParseFragment(%q) = %q, %v; want %q, %v", tt.in, got.RoomID(), ok, tt.want, tt.ok)
		}
	}
}

func TestNextRoom(t *testing.T) {
	base := DeriveRoomID("example.org", "post", DefaultPrefix)
	next := NextRoom(base)
	if next.RoomID() != "example-org-xr-publisher-post-2" {
		t.Fatalf("next = %q", next.RoomID())
	}
	if again := NextRoom(next); again.RoomID() != "example-org-xr-publisher-post-3" {
		t.Fatalf("again = %q", again.RoomID())
	}
	if only := NextRoom(domain.RoomIdentity{Domain: "lobby"}); only.RoomID() != "lobby-2" {
		t.Fatalf("domain only = %q", only.RoomID())
	}
}
