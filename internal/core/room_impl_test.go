package core

import (
	"errors"
	"testing"

	"github.com/dkeye/cowatch/internal/domain"
)

// fakeConn records delivered frames.
type fakeConn struct {
	frames []Frame
	err    error
}

func (c *fakeConn) TrySend(f Frame) error {
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *fakeConn) Close() {}

func newTestSession(id domain.MemberID) (MemberSession, *fakeConn) {
	conn := &fakeConn{}
	return NewMemberSession(domain.NewMember(id), conn), conn
}

func TestAddMemberEnforcesCapacity(t *testing.T) {
	room := NewRoomService(domain.NewRoom("482913"), 2)

	a, _ := newTestSession("a")
	b, _ := newTestSession("b")
	c, _ := newTestSession("c")

	if err := room.AddMember("a", a); err != nil {
		t.Fatalf("first join: %v", err)
	}
	if err := room.AddMember("b", b); err != nil {
		t.Fatalf("second join: %v", err)
	}
	if err := room.AddMember("c", c); !errors.Is(err, domain.ErrRoomFull) {
		t.Fatalf("third join: want ErrRoomFull, got %v", err)
	}
	if got := room.MemberCount(); got != 2 {
		t.Fatalf("member count after refused join = %d, want 2", got)
	}
	members := room.Members()
	if len(members) != 2 || members[0] != "a" || members[1] != "b" {
		t.Fatalf("members = %v, want [a b] in join order", members)
	}
}

func TestAddMemberIdempotent(t *testing.T) {
	room := NewRoomService(domain.NewRoom("482913"), 2)
	a, _ := newTestSession("a")
	if err := room.AddMember("a", a); err != nil {
		t.Fatal(err)
	}
	if err := room.AddMember("a", a); err != nil {
		t.Fatalf("re-adding same member: %v", err)
	}
	if got := room.MemberCount(); got != 1 {
		t.Fatalf("member count = %d, want 1", got)
	}
}

func TestRemoveMember(t *testing.T) {
	room := NewRoomService(domain.NewRoom("482913"), 2)
	a, _ := newTestSession("a")
	room.AddMember("a", a)

	if !room.RemoveMember("a") {
		t.Fatal("remove existing member = false")
	}
	if room.RemoveMember("a") {
		t.Fatal("remove absent member = true")
	}
	if got := room.MemberCount(); got != 0 {
		t.Fatalf("member count = %d, want 0", got)
	}
}

func TestBroadcastExcludesSender(t *testing.T) {
	room := NewRoomService(domain.NewRoom("482913"), 2)
	a, connA := newTestSession("a")
	b, connB := newTestSession("b")
	room.AddMember("a", a)
	room.AddMember("b", b)

	res := room.Broadcast("a", Frame("hello"))
	if res.SentTo != 1 {
		t.Fatalf("sent_to = %d, want 1", res.SentTo)
	}
	if len(connA.frames) != 0 {
		t.Fatal("sender received its own broadcast")
	}
	if len(connB.frames) != 1 || string(connB.frames[0]) != "hello" {
		t.Fatalf("peer frames = %v", connB.frames)
	}
}

func TestBroadcastReportsDropped(t *testing.T) {
	room := NewRoomService(domain.NewRoom("482913"), 2)
	a, _ := newTestSession("a")
	b, connB := newTestSession("b")
	connB.err = errors.New("backpressure")
	room.AddMember("a", a)
	room.AddMember("b", b)

	res := room.Broadcast("a", Frame("x"))
	if res.SentTo != 0 || len(res.Dropped) != 1 || res.Dropped[0] != "b" {
		t.Fatalf("result = %+v", res)
	}
}
