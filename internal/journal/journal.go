// Package journal records room activity to the database without blocking
// the session router. Activity is queued and written by one goroutine;
// when the queue is full, records are dropped.
package journal

import (
	"log"
	"sync"
	"time"

	"github.com/manpreetbhatti/canvasroom/internal/db"
)

type Kind int

const (
	RoomOpened Kind = iota
	RoomClosed
	StrokeCommitted
	Undone
	Redone
	Cleared
	MembersChanged
)

func (k Kind) String() string {
	switch k {
	case RoomOpened:
		return "room_opened"
	case RoomClosed:
		return "room_closed"
	case StrokeCommitted:
		return "stroke_committed"
	case Undone:
		return "undone"
	case Redone:
		return "redone"
	case Cleared:
		return "cleared"
	case MembersChanged:
		return "members_changed"
	}
	return "unknown"
}

type Activity struct {
	Kind    Kind
	RoomID  string
	Members int
	At      time.Time
}

// Store is the subset of *db.Database the recorder writes to.
type Store interface {
	OpenSession(roomID string, at time.Time) (int64, error)
	CloseSession(id int64, at time.Time) error
	CloseDangling(at time.Time) (int64, error)
	Increment(id int64, c db.Counter) error
	RecordMembers(id int64, members int) error
}

const defaultQueueSize = 1024

type Recorder struct {
	store Store
	queue chan Activity
	stop  chan struct{}
	wg    sync.WaitGroup

	// Open session row per live room, touched only by run
	sessions map[string]int64

	dropped int
	mu      sync.Mutex
}

func New(store Store, queueSize int) *Recorder {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Recorder{
		store:    store,
		queue:    make(chan Activity, queueSize),
		stop:     make(chan struct{}),
		sessions: make(map[string]int64),
	}
}

func (r *Recorder) Start() {
	if n, err := r.store.CloseDangling(time.Now()); err != nil {
		log.Printf("Journal: failed to close dangling sessions: %v", err)
	} else if n > 0 {
		log.Printf("📓 Journal closed %d sessions left open by a previous run", n)
	}

	r.wg.Add(1)
	go r.run()
}

// Stop drains queued activity and waits for the writer to finish.
func (r *Recorder) Stop() {
	close(r.stop)
	r.wg.Wait()
}

// Record queues an activity. It never blocks.
func (r *Recorder) Record(a Activity) {
	if a.At.IsZero() {
		a.At = time.Now()
	}
	select {
	case r.queue <- a:
	default:
		r.mu.Lock()
		r.dropped++
		n := r.dropped
		r.mu.Unlock()
		if n%100 == 1 {
			log.Printf("⚠️ Journal queue full, dropped %d records so far", n)
		}
	}
}

func (r *Recorder) Dropped() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

func (r *Recorder) run() {
	defer r.wg.Done()

	for {
		select {
		case a := <-r.queue:
			r.apply(a)
		case <-r.stop:
			for {
				select {
				case a := <-r.queue:
					r.apply(a)
				default:
					r.closeAll(time.Now())
					return
				}
			}
		}
	}
}

func (r *Recorder) apply(a Activity) {
	if a.Kind == RoomOpened {
		id, err := r.store.OpenSession(a.RoomID, a.At)
		if err != nil {
			log.Printf("Journal: failed to open session for room %s: %v", a.RoomID, err)
			return
		}
		r.sessions[a.RoomID] = id
		if a.Members > 0 {
			r.store.RecordMembers(id, a.Members)
		}
		return
	}

	id, ok := r.sessions[a.RoomID]
	if !ok {
		return
	}

	var err error
	switch a.Kind {
	case RoomClosed:
		delete(r.sessions, a.RoomID)
		err = r.store.CloseSession(id, a.At)
	case StrokeCommitted:
		err = r.store.Increment(id, db.CounterCommits)
	case Undone:
		err = r.store.Increment(id, db.CounterUndos)
	case Redone:
		err = r.store.Increment(id, db.CounterRedos)
	case Cleared:
		err = r.store.Increment(id, db.CounterClears)
	case MembersChanged:
		err = r.store.RecordMembers(id, a.Members)
	}
	if err != nil {
		log.Printf("Journal: failed to record %s for room %s: %v", a.Kind, a.RoomID, err)
	}
}

func (r *Recorder) closeAll(at time.Time) {
	for roomID, id := range r.sessions {
		if err := r.store.CloseSession(id, at); err != nil {
			log.Printf("Journal: failed to close session for room %s: %v", roomID, err)
		}
		delete(r.sessions, roomID)
	}
}
