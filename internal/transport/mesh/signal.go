package mesh

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/dkeye/Presence/internal/domain"
	"github.com/dkeye/Presence/internal/proto"
	"github.com/dkeye/Presence/internal/transport"
)

// signalClient talks to the polling relay.
type signalClient struct {
	base string
	http *http.Client
}

func newSignalClient(base string, hc *http.Client) *signalClient {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &signalClient{base: strings.TrimRight(base, "/"), http: hc}
}

func (s *signalClient) endpoint(room domain.RoomID, action string) string {
	return s.base + "/api/signal/" + url.PathEscape(string(room)) + "/" + action
}

func (s *signalClient) poll(ctx context.Context, room domain.RoomID, req proto.PollRequest) (proto.PollResponse, error) {
	var resp proto.PollResponse
	status, body, err := s.post(ctx, s.endpoint(room, "poll"), req)
	if err != nil {
		return resp, err
	}
	switch {
	case status == http.StatusConflict:
		return resp, transport.ErrRoomFull
	case status < 200 || status >= 300:
		return resp, fmt.Errorf("poll %s: status %d", room, status)
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return resp, fmt.Errorf("poll %s: decode: %w", room, err)
	}
	return resp, nil
}

func (s *signalClient) leave(ctx context.Context, room domain.RoomID, sid string) error {
	status, _, err := s.post(ctx, s.endpoint(room, "leave"), proto.LeaveRequest{SessionID: sid})
	if err != nil {
		return err
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("leave %s: status %d", room, status)
	}
	return nil
}

func (s *signalClient) post(ctx context.Context, endpoint string, v any) (int, []byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return 0, nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := s.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return res.StatusCode, nil, err
	}
	return res.StatusCode, body, nil
}
