package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/canvasroom/internal/journal"
	"github.com/manpreetbhatti/canvasroom/internal/protocol"
	"github.com/manpreetbhatti/canvasroom/internal/ratelimit"
	"github.com/manpreetbhatti/canvasroom/internal/room"
)

var ErrHubStopped = errors.New("hub stopped")

// ActivitySink receives room activity. Record must not block.
type ActivitySink interface {
	Record(journal.Activity)
}

type Options struct {
	RatePolicy ratelimit.Policy
	// Empty allows every origin
	AllowedOrigins []string
}

// Hub is the session router. A single goroutine (Run) owns the room
// registry and every connection's room binding, so each event is applied
// and fanned out completely before the next one is looked at.
type Hub struct {
	registry *room.Registry
	clients  map[string]*Client
	sink     ActivitySink
	policy   ratelimit.Policy
	upgrader websocket.Upgrader

	// Inbound events from clients
	inbound chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Read-only work for the HTTP API
	queries chan func()

	done chan struct{}

	// Clients whose send buffer overflowed during the current event
	evictions []*Client

	stats Stats
}

type Message struct {
	Sender   *Client
	Envelope protocol.Envelope
}

type Stats struct {
	ActiveRooms   int    `json:"active_rooms"`
	ActiveClients int    `json:"active_clients"`
	Commits       uint64 `json:"commits"`
	Undos         uint64 `json:"undos"`
	Redos         uint64 `json:"redos"`
	Clears        uint64 `json:"clears"`
	Relayed       uint64 `json:"relayed"`
	LastOrder     int64  `json:"last_order"`
}

type RoomSummary struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Members   int       `json:"members"`
	Strokes   int       `json:"strokes"`
	RedoDepth int       `json:"redo_depth"`
}

type RoomDetail struct {
	ID        string        `json:"id"`
	CreatedAt time.Time     `json:"created_at"`
	Members   []room.Member `json:"members"`
	Strokes   []room.Stroke `json:"strokes"`
	RedoDepth int           `json:"redo_depth"`
}

func NewHub(sink ActivitySink, opts Options) *Hub {
	policy := opts.RatePolicy
	if policy == (ratelimit.Policy{}) {
		policy = ratelimit.DefaultPolicy()
	}

	h := &Hub{
		registry:   room.NewRegistry(),
		clients:    make(map[string]*Client),
		sink:       sink,
		policy:     policy,
		inbound:    make(chan *Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		queries:    make(chan func()),
		done:       make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     originChecker(opts.AllowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		if len(allowed) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		return slices.Contains(allowed, origin)
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return

		case client := <-h.register:
			h.addClient(client)

		case client := <-h.unregister:
			h.disconnect(client)

		case message := <-h.inbound:
			h.handle(message)

		case query := <-h.queries:
			query()
		}

		h.flushEvictions()
	}
}

func (h *Hub) shutdown() {
	for _, client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[string]*Client)
	log.Printf("Hub stopped")
}

func (h *Hub) addClient(c *Client) {
	h.clients[c.id] = c
	h.sendTo(c, protocol.EventUserAssigned, protocol.Assigned{ConnectionID: c.id})
	log.Printf("✅ Client connected: %s (total: %d)", c.id, len(h.clients))
}

func (h *Hub) disconnect(c *Client) {
	if _, ok := h.clients[c.id]; !ok {
		return
	}
	delete(h.clients, c.id)

	if c.roomID != "" {
		h.leave(c)
	}
	close(c.send)
	log.Printf("❌ Client disconnected: %s (remaining: %d)", c.id, len(h.clients))
}

func (h *Hub) handle(m *Message) {
	c := m.Sender
	defer func() {
		if r := recover(); r != nil {
			log.Printf("🚨 Recovered panic handling %s from client %s: %v", m.Envelope.Event, c.id, r)
		}
	}()

	// Late events from a connection that has already gone
	if _, ok := h.clients[c.id]; !ok {
		return
	}

	env := m.Envelope
	if env.Event == protocol.EventRoomJoin {
		req, err := protocol.DecodeJoin(env.Data)
		if err != nil {
			log.Printf("⚠️ Invalid join from client %s: %v", c.id, err)
			return
		}
		h.join(c, req)
		return
	}

	// Everything else needs a room
	rm := h.roomOf(c)
	if rm == nil {
		return
	}

	switch env.Event {
	case protocol.EventStrokeCommit:
		h.commit(c, rm, env.Data)
	case protocol.EventUndo:
		h.undo(rm)
	case protocol.EventRedo:
		h.redo(rm)
	case protocol.EventClearAll:
		h.clear(c, rm)
	case protocol.EventUserListRequest:
		h.sendTo(c, protocol.EventUserList, memberList(rm))
	case protocol.EventDrawStart, protocol.EventDrawMove, protocol.EventDrawEnd, protocol.EventCursorMove:
		h.relay(c, rm, env)
	}
}

func (h *Hub) roomOf(c *Client) *room.Room {
	if c.roomID == "" {
		return nil
	}
	rm, _ := h.registry.Get(c.roomID)
	return rm
}

// Membership

func (h *Hub) join(c *Client, req protocol.JoinRequest) {
	if c.roomID != "" && c.roomID != req.RoomID {
		h.leave(c)
	}

	rm, created := h.registry.GetOrCreate(req.RoomID)
	if created {
		log.Printf("🏠 Room %s created", rm.ID)
		h.record(journal.RoomOpened, rm)
	}

	rejoin := rm.HasMember(c.id)
	if rejoin {
		rm.SetMemberName(c.id, req.DisplayName)
	} else {
		rm.AddMember(room.Member{ID: c.id, Name: req.DisplayName})
	}
	c.roomID = rm.ID
	c.name = req.DisplayName

	log.Printf("👤 %s (%s) joined room %s (members: %d)", c.name, c.id, rm.ID, rm.MemberCount())

	h.sendTo(c, protocol.EventRoomJoined, protocol.Joined{RoomID: rm.ID})
	h.sendTo(c, protocol.EventStateInit, rm.Strokes())
	h.broadcast(rm, protocol.EventUserList, memberList(rm), nil)

	if !rejoin {
		h.broadcast(rm, protocol.EventUserJoined, protocol.UserJoined{ConnectionID: c.id, Name: c.name}, c)
		h.record(journal.MembersChanged, rm)
	}
}

// leave unbinds c from its room. The room is deleted, with its history,
// as soon as nobody is left in it.
func (h *Hub) leave(c *Client) {
	roomID := c.roomID
	c.roomID = ""

	_, deleted := h.registry.RemoveMember(roomID, c.id)
	if deleted {
		log.Printf("Room %s closed (empty)", roomID)
		h.recordActivity(journal.RoomClosed, roomID, 0)
		return
	}

	rm, ok := h.registry.Get(roomID)
	if !ok {
		return
	}
	log.Printf("Client %s left room %s (remaining: %d)", c.id, roomID, rm.MemberCount())

	h.broadcast(rm, protocol.EventUserList, memberList(rm), nil)
	h.broadcast(rm, protocol.EventUserLeft, protocol.UserLeft{ConnectionID: c.id}, nil)
	h.record(journal.MembersChanged, rm)
}

func memberList(rm *room.Room) protocol.MemberList {
	return protocol.MemberList{Members: rm.Members()}
}

// History

func (h *Hub) commit(c *Client, rm *room.Room, data json.RawMessage) {
	s, err := protocol.DecodeStroke(data)
	if err != nil {
		log.Printf("⚠️ Invalid stroke from client %s: %v", c.id, err)
		return
	}
	if s.AuthorID == "" {
		s.AuthorID = c.id
	}

	committed := rm.Commit(s)
	h.stats.Commits++
	h.broadcast(rm, protocol.EventStrokeCommit, committed, c)
	h.record(journal.StrokeCommitted, rm)
}

func (h *Hub) undo(rm *room.Room) {
	if _, ok := rm.Undo(); !ok {
		return
	}
	h.stats.Undos++
	h.broadcast(rm, protocol.EventStateUpdate, rm.Strokes(), nil)
	h.record(journal.Undone, rm)
}

func (h *Hub) redo(rm *room.Room) {
	if _, ok := rm.Redo(); !ok {
		return
	}
	h.stats.Redos++
	h.broadcast(rm, protocol.EventStateUpdate, rm.Strokes(), nil)
	h.record(journal.Redone, rm)
}

func (h *Hub) clear(c *Client, rm *room.Room) {
	rm.Clear()
	h.stats.Clears++
	h.broadcast(rm, protocol.EventClearAll, protocol.Clear{ConnectionID: c.id}, nil)
	h.record(journal.Cleared, rm)
	log.Printf("🧹 Room %s cleared by %s", rm.ID, c.id)
}

// Ephemeral relay: the payload goes out exactly as it came in.
func (h *Hub) relay(c *Client, rm *room.Room, env protocol.Envelope) {
	frame, err := protocol.EncodeRaw(env.Event, env.Data)
	if err != nil {
		log.Printf("Failed to encode %s relay: %v", env.Event, err)
		return
	}
	h.stats.Relayed++
	h.broadcastFrame(rm, frame, c)
}

// Fan-out

func (h *Hub) sendTo(c *Client, event protocol.Event, payload any) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("Failed to encode %s: %v", event, err)
		return
	}
	h.deliver(c, frame)
}

func (h *Hub) broadcast(rm *room.Room, event protocol.Event, payload any, except *Client) {
	frame, err := protocol.Encode(event, payload)
	if err != nil {
		log.Printf("Failed to encode %s: %v", event, err)
		return
	}
	h.broadcastFrame(rm, frame, except)
}

func (h *Hub) broadcastFrame(rm *room.Room, frame []byte, except *Client) {
	for _, m := range rm.Members() {
		if except != nil && m.ID == except.id {
			continue
		}
		if client, ok := h.clients[m.ID]; ok {
			h.deliver(client, frame)
		}
	}
}

// deliver never blocks. A client that cannot keep up is dropped once the
// current event has been fully handled.
func (h *Hub) deliver(c *Client, frame []byte) {
	if c.evicted {
		return
	}
	select {
	case c.send <- frame:
	default:
		c.evicted = true
		h.evictions = append(h.evictions, c)
	}
}

func (h *Hub) flushEvictions() {
	for len(h.evictions) > 0 {
		c := h.evictions[0]
		h.evictions = h.evictions[1:]
		log.Printf("⚠️ Dropping slow client %s", c.id)
		h.disconnect(c)
	}
}

func (h *Hub) record(kind journal.Kind, rm *room.Room) {
	h.recordActivity(kind, rm.ID, rm.MemberCount())
}

func (h *Hub) recordActivity(kind journal.Kind, roomID string, members int) {
	if h.sink == nil {
		return
	}
	h.sink.Record(journal.Activity{
		Kind:    kind,
		RoomID:  roomID,
		Members: members,
		At:      time.Now(),
	})
}

// Queries

// query runs fn on the hub goroutine. The result comes back over a
// buffered channel, so a caller that gives up early shares nothing with a
// query still in flight.
func query[T any](ctx context.Context, h *Hub, fn func() T) (T, error) {
	var zero T
	result := make(chan T, 1)
	select {
	case h.queries <- func() { result <- fn() }:
	case <-h.done:
		return zero, ErrHubStopped
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	select {
	case v := <-result:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (h *Hub) GetStats(ctx context.Context) (Stats, error) {
	return query(ctx, h, func() Stats {
		stats := h.stats
		stats.ActiveRooms = h.registry.Len()
		stats.ActiveClients = len(h.clients)
		stats.LastOrder = h.registry.Sequencer().Last()
		return stats
	})
}

func (h *Hub) GetActiveRooms(ctx context.Context) ([]RoomSummary, error) {
	return query(ctx, h, func() []RoomSummary {
		rooms := make([]RoomSummary, 0, h.registry.Len())
		for _, rm := range h.registry.Rooms() {
			rooms = append(rooms, summarize(rm))
		}
		return rooms
	})
}

// GetRoom returns a live room's members and stroke log. ok is false if no
// room with that id is currently open.
func (h *Hub) GetRoom(ctx context.Context, id string) (RoomDetail, bool, error) {
	detail, err := query(ctx, h, func() *RoomDetail {
		rm, found := h.registry.Get(id)
		if !found {
			return nil
		}
		return &RoomDetail{
			ID:        rm.ID,
			CreatedAt: rm.CreatedAt,
			Members:   rm.Members(),
			Strokes:   rm.Strokes(),
			RedoDepth: rm.RedoDepth(),
		}
	})
	if err != nil || detail == nil {
		return RoomDetail{}, false, err
	}
	return *detail, true, nil
}

func summarize(rm *room.Room) RoomSummary {
	return RoomSummary{
		ID:        rm.ID,
		CreatedAt: rm.CreatedAt,
		Members:   rm.MemberCount(),
		Strokes:   rm.Len(),
		RedoDepth: rm.RedoDepth(),
	}
}
