package chat

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(members []Member) []ConnID {
	out := make([]ConnID, 0, len(members))
	for _, m := range members {
		out = append(out, m.ID())
	}
	return out
}

func TestRegistry_RegisterAndMembersOf(t *testing.T) {
	r := NewRegistry()
	a, b, c := newStubMember("a", 1), newStubMember("b", 1), newStubMember("c", 1)

	require.NoError(t, r.Register(7, a))
	require.NoError(t, r.Register(7, b))
	require.NoError(t, r.Register(8, c))

	assert.ElementsMatch(t, []ConnID{"a", "b"}, ids(r.MembersOf(7)))
	assert.ElementsMatch(t, []ConnID{"c"}, ids(r.MembersOf(8)))
	assert.Empty(t, r.MembersOf(9))

	room, ok := r.RoomOf("b")
	assert.True(t, ok)
	assert.Equal(t, int64(7), room)

	assert.Equal(t, 3, r.Count())
	assert.Equal(t, 2, r.RoomCount())
	assert.Equal(t, []int64{7, 8}, r.Rooms())
}

func TestRegistry_AlreadyRegistered(t *testing.T) {
	r := NewRegistry()
	a := newStubMember("a", 1)
	require.NoError(t, r.Register(7, a))

	tests := []struct {
		name string
		room int64
		m    Member
	}{
		{"same member other room", 8, a},
		{"same member same room", 7, a},
		{"other member same id", 8, newStubMember("a", 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(tt.room, tt.m)
			require.ErrorIs(t, err, ErrAlreadyRegistered)

			assert.ElementsMatch(t, []ConnID{"a"}, ids(r.MembersOf(7)))
			assert.Empty(t, r.MembersOf(8))
			assert.Equal(t, 1, r.Count())
		})
	}
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	r := NewRegistry()
	a := newStubMember("a", 1)
	require.NoError(t, r.Register(7, a))

	assert.True(t, r.Unregister(a))
	assert.False(t, r.Unregister(a))
	assert.False(t, r.Unregister(newStubMember("never", 1)))

	assert.Empty(t, r.MembersOf(7))
	assert.Zero(t, r.RoomCount())
	_, ok := r.RoomOf("a")
	assert.False(t, ok)
}

func TestRegistry_UnregisterIgnoresOtherMemberWithSameID(t *testing.T) {
	r := NewRegistry()
	owner := newStubMember("a", 1)
	impostor := newStubMember("a", 1)
	require.NoError(t, r.Register(7, owner))

	assert.False(t, r.Unregister(impostor))
	require.Len(t, r.MembersOf(7), 1)
	assert.Same(t, owner, r.MembersOf(7)[0])
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	a, b := newStubMember("a", 1), newStubMember("b", 1)
	require.NoError(t, r.Register(7, a))

	snap := r.MembersOf(7)
	require.NoError(t, r.Register(7, b))
	r.Unregister(a)

	assert.Equal(t, []ConnID{"a"}, ids(snap))
	assert.Equal(t, []ConnID{"b"}, ids(r.MembersOf(7)))
}

// Each worker checks its own member against snapshots while every other
// worker churns the same rooms.
func TestRegistry_ConcurrentMembership(t *testing.T) {
	r := NewRegistry()

	const workers, rounds, rooms = 32, 200, 4
	var wg sync.WaitGroup
	errs := make(chan error, workers)

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < rounds; i++ {
				m := newStubMember(fmt.Sprintf("w%d-%d", w, i), 1)
				room := int64((w + i) % rooms)

				if err := r.Register(room, m); err != nil {
					errs <- err
					return
				}
				if !memberIn(r.MembersOf(room), m) {
					errs <- fmt.Errorf("%s missing from room %d after register", m.id, room)
					return
				}
				r.Unregister(m)
				if memberIn(r.MembersOf(room), m) {
					errs <- fmt.Errorf("%s still in room %d after unregister", m.id, room)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
	assert.Zero(t, r.Count())
	assert.Zero(t, r.RoomCount())
}

func memberIn(members []Member, m Member) bool {
	for _, x := range members {
		if x == m {
			return true
		}
	}
	return false
}
