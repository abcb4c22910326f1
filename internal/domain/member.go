package domain

import "github.com/google/uuid"

type MemberID string

// NewMemberID issues a connection-scoped identifier.
func NewMemberID() MemberID {
	return MemberID(uuid.NewString())
}

// Member records a connection's current room membership.
// A member belongs to at most one room at a time in this design.
type Member struct {
	ID   MemberID
	Room RoomID
}

// NewMember avoids raw literals in adapters and keeps construction obvious.
func NewMember(id MemberID) *Member {
	return &Member{ID: id}
}
