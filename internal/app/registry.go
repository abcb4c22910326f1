// Package app holds the room registry: room lifecycle, the two-seat admission
// rule, and verbatim relay of negotiation frames between room members.
package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/core"
	"github.com/dkeye/cowatch/internal/domain"
)

// Registry owns the room table. Rooms are created on first join and deleted
// when their member set becomes empty; nothing is persisted.
type Registry struct {
	capacity int

	mu       sync.RWMutex
	rooms    map[domain.RoomID]core.RoomService
	byMember map[domain.MemberID][]domain.RoomID
}

func NewRegistry(capacity int) *Registry {
	return &Registry{
		capacity: capacity,
		rooms:    make(map[domain.RoomID]core.RoomService),
		byMember: make(map[domain.MemberID][]domain.RoomID),
	}
}

// Join admits the member into the room, creating it on first join.
// Returns the member count after admission, or domain.ErrRoomFull.
// Admission and room creation happen under the registry lock so a join can
// never race a concurrent empty-room deletion.
func (r *Registry) Join(roomID domain.RoomID, id domain.MemberID, ms core.MemberSession) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[roomID]
	if !ok {
		room = core.NewRoomService(domain.NewRoom(roomID), r.capacity)
		r.rooms[roomID] = room
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("room created")
	}
	if err := room.AddMember(id, ms); err != nil {
		// First joiner of a fresh room can't fail, so an existing room with
		// its members stays untouched here.
		return 0, err
	}
	ms.Meta().Room = roomID
	r.byMember[id] = append(r.byMember[id], roomID)
	return room.MemberCount(), nil
}

// Leave removes the member from the given room and deletes the room record
// once it is empty. Reports whether the member was actually in it.
func (r *Registry) Leave(roomID domain.RoomID, id domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(roomID, id)
}

func (r *Registry) leaveLocked(roomID domain.RoomID, id domain.MemberID) bool {
	room, ok := r.rooms[roomID]
	if !ok {
		return false
	}
	if !room.RemoveMember(id) {
		return false
	}
	rooms := r.byMember[id]
	for i, rid := range rooms {
		if rid == roomID {
			rooms = append(rooms[:i], rooms[i+1:]...)
			break
		}
	}
	if len(rooms) == 0 {
		delete(r.byMember, id)
	} else {
		r.byMember[id] = rooms
	}
	if room.MemberCount() == 0 {
		delete(r.rooms, roomID)
		log.Info().Str("module", "app.registry").Str("room", string(roomID)).Msg("empty room deleted")
	}
	return true
}

// Disconnect performs an implicit leave for every room the member belongs to
// and returns those rooms so the caller can announce the departure.
// The design caps membership at one room, but the algorithm does not rely on it.
func (r *Registry) Disconnect(id domain.MemberID) []domain.RoomID {
	r.mu.Lock()
	defer r.mu.Unlock()

	rooms := append([]domain.RoomID(nil), r.byMember[id]...)
	for _, roomID := range rooms {
		r.leaveLocked(roomID, id)
	}
	if len(rooms) > 0 {
		log.Info().Str("module", "app.registry").Str("member", string(id)).Int("rooms", len(rooms)).Msg("disconnected")
	}
	return rooms
}

// Relay forwards a frame verbatim to every other current member of the room.
// The payload is opaque here; nothing beyond routing is validated.
func (r *Registry) Relay(roomID domain.RoomID, from domain.MemberID, data core.Frame) (core.PublishResult, error) {
	r.mu.RLock()
	room, ok := r.rooms[roomID]
	r.mu.RUnlock()
	if !ok {
		return core.PublishResult{}, domain.ErrNotInRoom
	}
	return room.Broadcast(from, data), nil
}

// RoomOf reports the member's current room, if any.
func (r *Registry) RoomOf(id domain.MemberID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rooms := r.byMember[id]
	if len(rooms) == 0 {
		return "", false
	}
	return rooms[0], true
}

// MemberCount returns the current population of a room, 0 if it doesn't exist.
func (r *Registry) MemberCount(roomID domain.RoomID) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	if !ok {
		return 0
	}
	return room.MemberCount()
}

// Rooms snapshots the table for the listing API.
func (r *Registry) Rooms() []core.RoomInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: room.MemberCount()})
	}
	return out
}
