package app

import (
	"sort"
	"sync"

	"github.com/dkeye/Presence/internal/core"
	"github.com/dkeye/Presence/internal/domain"
)

type RoomManagerImpl struct {
	mu           sync.RWMutex
	rooms        map[domain.RoomID]core.RoomService
	maxLimit     int
	defaultLimit int
}

// NewRoomManager caps every room at maxLimit members; rooms created without a
// requested limit get defaultLimit.
func NewRoomManager(defaultLimit, maxLimit int) core.RoomManager {
	return &RoomManagerImpl{
		rooms:        make(map[domain.RoomID]core.RoomService),
		maxLimit:     maxLimit,
		defaultLimit: defaultLimit,
	}
}

func (f *RoomManagerImpl) effectiveLimit(requested int) int {
	limit := requested
	if limit <= 0 {
		limit = f.defaultLimit
	}
	if f.maxLimit > 0 && (limit <= 0 || limit > f.maxLimit) {
		limit = f.maxLimit
	}
	return limit
}

func (f *RoomManagerImpl) GetOrCreate(id domain.RoomID, limit int) core.RoomService {
	f.mu.RLock()
	room, ok := f.rooms[id]
	f.mu.RUnlock()
	if ok {
		return room
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if room, ok = f.rooms[id]; ok {
		return room
	}
	room = core.NewRoomService(&domain.Room{ID: id, Limit: f.effectiveLimit(limit)})
	f.rooms[id] = room
	return room
}

func (f *RoomManagerImpl) GetRoom(id domain.RoomID) (core.RoomService, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	room, ok := f.rooms[id]
	return room, ok
}

func (f *RoomManagerImpl) List() []core.RoomInfo {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(f.rooms))
	for id, r := range f.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: r.MemberCount(), Limit: r.Room().Limit})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *RoomManagerImpl) StopIfEmpty(id domain.RoomID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	room, ok := f.rooms[id]
	if !ok || room.MemberCount() > 0 {
		return false
	}
	delete(f.rooms, id)
	return true
}

func (f *RoomManagerImpl) StopRoom(id domain.RoomID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.rooms, id)
}
