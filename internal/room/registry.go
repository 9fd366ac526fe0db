package room

import (
	"sort"
	"sync/atomic"
)

// Sequencer hands out stroke orders. One Sequencer is shared by every room
// in the process, so orders are unique process-wide and never reset.
type Sequencer struct {
	last atomic.Int64
}

func (s *Sequencer) Next() int64 {
	return s.last.Add(1)
}

func (s *Sequencer) Last() int64 {
	return s.last.Load()
}

// Registry owns every live Room. Like Room it is confined to the session
// router goroutine.
type Registry struct {
	rooms map[string]*Room
	seq   *Sequencer
}

func NewRegistry() *Registry {
	return &Registry{
		rooms: make(map[string]*Room),
		seq:   &Sequencer{},
	}
}

func (g *Registry) Get(id string) (*Room, bool) {
	r, ok := g.rooms[id]
	return r, ok
}

// GetOrCreate returns the live room for id, creating an empty one if none
// exists. created reports whether a new room was made.
func (g *Registry) GetOrCreate(id string) (r *Room, created bool) {
	if r, ok := g.rooms[id]; ok {
		return r, false
	}
	r = newRoom(id, g.seq)
	g.rooms[id] = r
	return r, true
}

// RemoveMember drops a connection from a room. A room left with no members
// is deleted on the spot together with its stroke log and redo stack.
func (g *Registry) RemoveMember(roomID, connID string) (removed, deleted bool) {
	r, ok := g.rooms[roomID]
	if !ok {
		return false, false
	}
	removed = r.RemoveMember(connID)
	if r.MemberCount() == 0 {
		delete(g.rooms, roomID)
		deleted = true
	}
	return removed, deleted
}

func (g *Registry) Len() int {
	return len(g.rooms)
}

// Rooms returns live rooms sorted by id
func (g *Registry) Rooms() []*Room {
	out := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (g *Registry) Sequencer() *Sequencer {
	return g.seq
}
