package room

import (
	"encoding/json"
	"slices"
	"sort"
	"time"
)

// A sampled pointer position. Fields the engine does not interpret, such
// as pressure, are kept in Extra and written back out unchanged.
type Point struct {
	X     float64                    `json:"x"`
	Y     float64                    `json:"y"`
	Extra map[string]json.RawMessage `json:"-"`
}

// A finished freehand stroke. Order is zero until the stroke is committed.
// Client fields the engine does not interpret travel in Extra.
type Stroke struct {
	ID        string                     `json:"id"`
	AuthorID  string                     `json:"authorId"`
	Color     string                     `json:"color"`
	Width     float64                    `json:"width"`
	IsEraser  bool                       `json:"isEraser"`
	Points    []Point                    `json:"points"`
	Timestamp int64                      `json:"timestamp"`
	Order     int64                      `json:"order"`
	Extra     map[string]json.RawMessage `json:"-"`
}

type Member struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	JoinedAt time.Time `json:"-"`
}

// A shared drawing session. Room is not safe for concurrent use; the
// session router owns every Room and mutates it from a single goroutine.
type Room struct {
	ID        string
	CreatedAt time.Time

	seq     *Sequencer
	strokes []Stroke
	redo    []Stroke
	members []Member
}

func newRoom(id string, seq *Sequencer) *Room {
	return &Room{
		ID:        id,
		CreatedAt: time.Now(),
		seq:       seq,
		strokes:   make([]Stroke, 0),
		redo:      make([]Stroke, 0),
		members:   make([]Member, 0),
	}
}

// Commit stamps the stroke with the next global order, appends it to the
// log and discards any pending redo history.
func (r *Room) Commit(s Stroke) Stroke {
	s.Order = r.seq.Next()
	r.strokes = append(r.strokes, s)
	r.redo = r.redo[:0]
	return s
}

// Undo moves the most recent stroke, whoever drew it, onto the redo stack.
func (r *Room) Undo() (Stroke, bool) {
	n := len(r.strokes)
	if n == 0 {
		return Stroke{}, false
	}
	s := r.strokes[n-1]
	r.strokes = r.strokes[:n-1]
	r.redo = append(r.redo, s)
	return s, true
}

// Redo pops the most recently undone stroke and puts it back in its
// original slot: before the first stroke with a greater order.
func (r *Room) Redo() (Stroke, bool) {
	n := len(r.redo)
	if n == 0 {
		return Stroke{}, false
	}
	s := r.redo[n-1]
	r.redo = r.redo[:n-1]

	i := sort.Search(len(r.strokes), func(i int) bool {
		return r.strokes[i].Order > s.Order
	})
	r.strokes = slices.Insert(r.strokes, i, s)
	return s, true
}

func (r *Room) Clear() {
	r.strokes = r.strokes[:0]
	r.redo = r.redo[:0]
}

// Returns a copy of the stroke log in commit order
func (r *Room) Strokes() []Stroke {
	out := make([]Stroke, len(r.strokes))
	copy(out, r.strokes)
	return out
}

func (r *Room) Len() int {
	return len(r.strokes)
}

func (r *Room) RedoDepth() int {
	return len(r.redo)
}

// Member set

func (r *Room) AddMember(m Member) {
	if m.JoinedAt.IsZero() {
		m.JoinedAt = time.Now()
	}
	r.members = append(r.members, m)
}

func (r *Room) RemoveMember(id string) bool {
	for i, m := range r.members {
		if m.ID == id {
			r.members = slices.Delete(r.members, i, i+1)
			return true
		}
	}
	return false
}

func (r *Room) HasMember(id string) bool {
	return slices.ContainsFunc(r.members, func(m Member) bool { return m.ID == id })
}

func (r *Room) SetMemberName(id, name string) bool {
	for i := range r.members {
		if r.members[i].ID == id {
			r.members[i].Name = name
			return true
		}
	}
	return false
}

// Returns members in join order
func (r *Room) Members() []Member {
	out := make([]Member, len(r.members))
	copy(out, r.members)
	return out
}

func (r *Room) MemberCount() int {
	return len(r.members)
}
