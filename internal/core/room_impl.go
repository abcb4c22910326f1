package core

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/cowatch/internal/domain"
)

// roomImpl is a threadsafe in-memory room with a hard seat cap.
// It never closes adapter-owned resources.
type roomImpl struct {
	room *domain.Room
	cap  int

	mu      sync.RWMutex
	byID    map[domain.MemberID]MemberSession
	ordered []domain.MemberID // join order
}

func NewRoomService(room *domain.Room, capacity int) RoomService {
	return &roomImpl{
		room: room,
		cap:  capacity,
		byID: make(map[domain.MemberID]MemberSession, capacity),
	}
}

func (r *roomImpl) Room() *domain.Room { return r.room }

func (r *roomImpl) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *roomImpl) Members() []domain.MemberID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.MemberID, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *roomImpl) AddMember(id domain.MemberID, ms MemberSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; ok {
		return nil
	}
	// Capacity check and insert happen under the same lock; this is the
	// correctness-critical section for concurrent joins.
	if len(r.byID) >= r.cap {
		return domain.ErrRoomFull
	}
	r.byID[id] = ms
	r.ordered = append(r.ordered, id)
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("member", string(id)).Int("count", len(r.byID)).Msg("member added")
	return nil
}

func (r *roomImpl) RemoveMember(id domain.MemberID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, mid := range r.ordered {
		if mid == id {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			break
		}
	}
	log.Info().Str("module", "core.room").Str("room", string(r.room.ID)).Str("member", string(id)).Msg("member removed")
	return true
}

func (r *roomImpl) Broadcast(from domain.MemberID, data Frame) PublishResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := PublishResult{}
	for _, id := range r.ordered {
		if id == from {
			continue
		}
		if err := r.byID[id].Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, id)
			continue
		}
		res.SentTo++
	}
	log.Debug().Str("module", "core.room").Str("room", string(r.room.ID)).Str("from", string(from)).Int("sent_to", res.SentTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}
