package chat

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Outcome is the result of offering a frame to a member's outbound queue.
type Outcome int

const (
	// OutcomeDelivered means the frame was queued for the member's writer.
	OutcomeDelivered Outcome = iota
	// OutcomeFull means the queue had no room before the deadline.
	OutcomeFull
	// OutcomeDead means the member is closing or closed.
	OutcomeDead
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeFull:
		return "slow"
	case OutcomeDead:
		return "dead"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Member is a registry entry. Sessions implement it; tests use fakes.
type Member interface {
	ID() ConnID

	// TryEnqueue offers frame without blocking.
	TryEnqueue(frame []byte) Outcome

	// Enqueue offers frame, waiting until ctx is done if the queue is full.
	Enqueue(ctx context.Context, frame []byte) Outcome

	// Evict asks the member to close. It must not block.
	Evict(reason error)
}

// Registry is the membership table: room -> live members, plus a reverse
// index from connection to room. A connection is in at most one room.
//
// Writers take the registry lock then the room's shard lock. MembersOf only
// holds the shard lock while copying, so snapshots for different rooms never
// contend with each other. Nothing is called on a Member while a lock is held.
type Registry struct {
	mu    sync.RWMutex
	index map[ConnID]int64
	rooms map[int64]*roomShard
}

type roomShard struct {
	mu      sync.RWMutex
	members map[ConnID]Member
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		index: make(map[ConnID]int64),
		rooms: make(map[int64]*roomShard),
	}
}

// Register adds m to room. It fails with ErrAlreadyRegistered if m's ID is
// already present in any room; membership is left unchanged in that case.
func (r *Registry) Register(room int64, m Member) error {
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.index[id]; ok {
		return fmt.Errorf("%w: %s is in room %d", ErrAlreadyRegistered, id, current)
	}

	shard, ok := r.rooms[room]
	if !ok {
		shard = &roomShard{members: make(map[ConnID]Member)}
		r.rooms[room] = shard
	}
	shard.mu.Lock()
	shard.members[id] = m
	shard.mu.Unlock()

	r.index[id] = room
	return nil
}

// Unregister removes m. It is a no-op when m is absent, or when the entry
// under m's ID belongs to a different member. Empty rooms are dropped.
// It reports whether anything was removed.
func (r *Registry) Unregister(m Member) bool {
	id := m.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.index[id]
	if !ok {
		return false
	}
	shard := r.rooms[room]

	shard.mu.Lock()
	if shard.members[id] != m {
		shard.mu.Unlock()
		return false
	}
	delete(shard.members, id)
	empty := len(shard.members) == 0
	shard.mu.Unlock()

	delete(r.index, id)
	if empty {
		delete(r.rooms, room)
	}
	return true
}

// MembersOf returns a point-in-time copy of room's members. Later
// registrations and removals do not affect the returned slice.
func (r *Registry) MembersOf(room int64) []Member {
	r.mu.RLock()
	shard, ok := r.rooms[room]
	r.mu.RUnlock()
	if !ok {
		return nil
	}

	shard.mu.RLock()
	defer shard.mu.RUnlock()

	out := make([]Member, 0, len(shard.members))
	for _, m := range shard.members {
		out = append(out, m)
	}
	return out
}

// RoomOf returns the room id is registered in.
func (r *Registry) RoomOf(id ConnID) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.index[id]
	return room, ok
}

// Count returns the number of registered connections.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.index)
}

// RoomCount returns the number of rooms with at least one member.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// Rooms returns the occupied room ids in ascending order.
func (r *Registry) Rooms() []int64 {
	r.mu.RLock()
	out := make([]int64, 0, len(r.rooms))
	for room := range r.rooms {
		out = append(out, room)
	}
	r.mu.RUnlock()

	slices.Sort(out)
	return out
}
