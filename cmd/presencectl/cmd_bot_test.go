package main

import (
	"testing"

	"github.com/dkeye/Presence/internal/config"
	"github.com/dkeye/Presence/internal/ice"
)

func TestTransportFactory(t *testing.T) {
	for _, name := range []string{"", "mesh", "ws", "memory"} {
		f, err := transportFactory(config.ClientConfig{BaseURL: "http://localhost:8080", Transport: name})
		if err != nil || f == nil {
			t.Fatalf("transportFactory(%q) = %v", name, err)
		}
	}
	if _, err := transportFactory(config.ClientConfig{Transport: "carrier-pigeon"}); err == nil {
		t.Fatal("unknown transport accepted")
	}
}

func TestICESource(t *testing.T) {
	if _, ok := iceSource(config.ClientConfig{}).(ice.Static); !ok {
		t.Fatal("no endpoint should serve the static defaults")
	}
	if f, ok := iceSource(config.ClientConfig{TurnEndpoint: "http://x/turn"}).(*ice.Fetcher); !ok || f.Endpoint != "http://x/turn" {
		t.Fatal("endpoint should build a fetcher")
	}
}
