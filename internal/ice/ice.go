// Package ice resolves the STUN/TURN servers a mesh should use.
package ice

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Presence/internal/proto"
)

// DefaultServers is the public relay list used when credentials cannot be fetched.
func DefaultServers() []webrtc.ICEServer {
	const user, pass = "openrelayproject", "openrelayproject"
	return []webrtc.ICEServer{
		{URLs: []string{"turn:openrelay.metered.ca:80"}, Username: user, Credential: pass},
		{URLs: []string{"turn:openrelay.metered.ca:443"}, Username: user, Credential: pass},
		{URLs: []string{"turn:openrelay.metered.ca:443?transport=tcp"}, Username: user, Credential: pass},
	}
}

// Source yields ICE servers; it never fails.
type Source interface {
	Servers(ctx context.Context) []webrtc.ICEServer
}

// Static serves a fixed list.
type Static []webrtc.ICEServer

func (s Static) Servers(context.Context) []webrtc.ICEServer { return append([]webrtc.ICEServer(nil), s...) }

// Fetcher pulls TURN credentials from an HTTP endpoint and falls back on any failure.
type Fetcher struct {
	Endpoint string
	// Nonce is sent as X-WP-Nonce for endpoints that require it.
	Nonce    string
	Client   *http.Client
	Fallback []webrtc.ICEServer
}

func NewFetcher(endpoint, nonce string) *Fetcher {
	return &Fetcher{
		Endpoint: endpoint,
		Nonce:    nonce,
		Client:   &http.Client{Timeout: 5 * time.Second},
		Fallback: DefaultServers(),
	}
}

func (f *Fetcher) Servers(ctx context.Context) []webrtc.ICEServer {
	servers, err := f.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("module", "ice").Str("endpoint", f.Endpoint).Msg("TURN credentials unavailable, using defaults")
		return f.fallback()
	}
	return servers
}

// Fetch performs one request without fallback.
func (f *Fetcher) Fetch(ctx context.Context) ([]webrtc.ICEServer, error) {
	if f.Endpoint == "" {
		return nil, fmt.Errorf("turn credentials: no endpoint")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("turn credentials: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Nonce != "" {
		req.Header.Set("X-WP-Nonce", f.Nonce)
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("turn credentials: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("turn credentials: status %d", res.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, 64<<10))
	if err != nil {
		return nil, fmt.Errorf("turn credentials: %w", err)
	}
	var list []proto.ICEServer
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("turn credentials: decode: %w", err)
	}
	out := FromProto(list)
	if len(out) == 0 {
		return nil, fmt.Errorf("turn credentials: empty list")
	}
	return out, nil
}

func (f *Fetcher) fallback() []webrtc.ICEServer {
	if len(f.Fallback) == 0 {
		return DefaultServers()
	}
	return append([]webrtc.ICEServer(nil), f.Fallback...)
}

// FromProto converts the browser-shaped list, skipping entries without urls.
func FromProto(list []proto.ICEServer) []webrtc.ICEServer {
	out := make([]webrtc.ICEServer, 0, len(list))
	for _, s := range list {
		if len(s.URLs) == 0 {
			continue
		}
		out = append(out, webrtc.ICEServer{
			URLs:       append([]string(nil), s.URLs...),
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return out
}

// ToProto is the inverse of FromProto for string credentials.
func ToProto(list []webrtc.ICEServer) []proto.ICEServer {
	out := make([]proto.ICEServer, 0, len(list))
	for _, s := range list {
		out = append(out, proto.ICEServer{
			URLs:       append(proto.URLList(nil), s.URLs...),
			Username:   s.Username,
			Credential: credential(s.Credential),
		})
	}
	return out
}

func credential(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
