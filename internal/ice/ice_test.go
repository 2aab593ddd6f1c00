package ice

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchParsesBrowserShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-WP-Nonce") != "n0nce" {
			t.Errorf("nonce header = %q", r.Header.Get("X-WP-Nonce"))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"urls":"turn:t.example:3478","username":"u","credential":"p"},{"urls":["stun:s.example"]},{"urls":[]}]`))
	}))
	defer srv.Close()

	f := NewFetcher(srv.URL, "n0nce")
	got := f.Servers(context.Background())
	if len(got) != 2 {
		t.Fatalf("servers = %+v", got)
	}
	if got[0].URLs[0] != "turn:t.example:3478" || got[0].Username != "u" || got[0].Credential != "p" {
		t.Fatalf("first server = %+v", got[0])
	}
	if got[1].URLs[0] != "stun:s.example" {
		t.Fatalf("second server = %+v", got[1])
	}
}

func TestServersFallBack(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"status 500", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusInternalServerError) }},
		{"not json", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("<html>")) }},
		{"empty list", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("[]")) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			f := NewFetcher(srv.URL, "")
			if _, err := f.Fetch(context.Background()); err == nil {
				t.Fatal("Fetch should fail")
			}
			got := f.Servers(context.Background())
			want := DefaultServers()
			if len(got) != len(want) {
				t.Fatalf("servers = %+v", got)
			}
			for i := range want {
				if got[i].URLs[0] != want[i].URLs[0] {
					t.Fatalf("server %d = %+v, want %+v", i, got[i], want[i])
				}
			}
		})
	}
}

func TestProtoConversion(t *testing.T) {
	back := FromProto(ToProto(DefaultServers()))
	if len(back) != 3 || back[2].URLs[0] != "turn:openrelay.metered.ca:443?transport=tcp" {
		t.Fatalf("converted = %+v", back)
	}
	if back[0].Credential != "openrelayproject" {
		t.Fatalf("credential = %v", back[0].Credential)
	}
}
