package core

import "github.com/dkeye/cowatch/internal/domain"

// PublishResult reports delivery stats/backpressure to the registry.
type PublishResult struct {
	SentTo  int
	Dropped []domain.MemberID
}

// RoomService is the core-facing API of a room.
// It owns the membership set but never touches transport resources.
// All mutation is serialized by the room's own lock, so two concurrent
// joiners can never both observe a free seat.
type RoomService interface {
	Room() *domain.Room
	MemberCount() int
	// Members returns member ids in join order.
	Members() []domain.MemberID

	// AddMember admits a member or returns domain.ErrRoomFull.
	AddMember(id domain.MemberID, ms MemberSession) error
	// RemoveMember reports whether the member was present.
	RemoveMember(id domain.MemberID) bool
	// Broadcast fans a frame out to every member except from.
	Broadcast(from domain.MemberID, data Frame) PublishResult
}

type RoomInfo struct {
	ID          domain.RoomID `json:"id"`
	MemberCount int           `json:"member_count"`
}
