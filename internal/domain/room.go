// Package domain contains entities without logic, just meta-data.
package domain

import "time"

// RoomIDLen is the required length of a room identifier.
const RoomIDLen = 6

type RoomID string

// Room is a rendezvous point for exactly two peers. The ID is caller-supplied;
// the server only validates shape and capacity.
type Room struct {
	ID        RoomID
	CreatedAt time.Time
}

func NewRoom(id RoomID) *Room {
	return &Room{ID: id, CreatedAt: time.Now()}
}

// ParseRoomID validates the caller-supplied identifier: exactly six ASCII digits.
func ParseRoomID(raw string) (RoomID, error) {
	if len(raw) != RoomIDLen {
		return "", ErrInvalidRoomID
	}
	for i := 0; i < len(raw); i++ {
		if raw[i] < '0' || raw[i] > '9' {
			return "", ErrInvalidRoomID
		}
	}
	return RoomID(raw), nil
}
