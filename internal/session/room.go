package session

import (
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/dkeye/Presence/internal/domain"
)

// DefaultPrefix tags every derived slug so rooms of different publishers on one host never collide.
const DefaultPrefix = "xr-publisher"

// DeriveRoomID builds the room identity every viewer of one page agrees on.
func DeriveRoomID(host, slug, prefix string) domain.RoomIdentity {
	h := strings.TrimSpace(host)
	if hh, _, err := net.SplitHostPort(h); err == nil {
		h = hh
	}
	h = strings.Trim(strings.ToLower(h), "[]")
	h = strings.ReplaceAll(h, ".", "-")

	s := strings.ToLower(strings.TrimSpace(slug))
	p := strings.ToLower(strings.TrimSpace(prefix))
	switch {
	case p == "":
	case s == "":
		s = p
	default:
		s = p + "-" + s
	}
	return domain.RoomIdentity{Domain: h, Slug: s}
}

// ParseFragment reads a room identity from a location fragment such as "#host-xr-publisher-slug".
func ParseFragment(fragment string) (domain.RoomIdentity, bool) {
	raw := strings.TrimPrefix(strings.TrimSpace(fragment), "#")
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return domain.RoomIdentity{}, false
	}
	if i := strings.Index(raw, "-"+DefaultPrefix); i > 0 {
		return domain.RoomIdentity{Domain: raw[:i], Slug: raw[i+1:]}, true
	}
	return domain.RoomIdentity{Slug: raw}, true
}

// Fragment renders id the way ParseFragment reads it.
func Fragment(id domain.RoomIdentity) string {
	return "#" + string(id.RoomID())
}

// NextRoom names the overflow room for a full one: "-2" is appended, or an existing numeric suffix is incremented.
func NextRoom(id domain.RoomIdentity) domain.RoomIdentity {
	if id.Slug == "" {
		id.Domain = bump(id.Domain)
		return id
	}
	id.Slug = bump(id.Slug)
	return id
}

func bump(s string) string {
	i := strings.LastIndex(s, "-")
	if i >= 0 && i < len(s)-1 {
		if n, err := strconv.Atoi(s[i+1:]); err == nil && n > 0 {
			return s[:i] + "-" + strconv.Itoa(n+1)
		}
	}
	return s + "-2"
}
