// Package protocol defines the event vocabulary exchanged between drawing
// clients and the room engine, and validates what clients send.
//
// Every frame is a JSON text message of the form
//
//	{"event": "stroke:commit", "data": {...}}
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/manpreetbhatti/canvasroom/internal/room"
)

type Event string

const (
	// Membership
	EventRoomJoin        Event = "room:join"
	EventRoomJoined      Event = "room:joined"
	EventUserAssigned    Event = "user:assigned"
	EventUserList        Event = "user:list"
	EventUserListRequest Event = "user:list:request"
	EventUserJoined      Event = "user:joined"
	EventUserLeft        Event = "user:left"

	// Canonical history
	EventStrokeCommit Event = "stroke:commit"
	EventUndo         Event = "undo"
	EventRedo         Event = "redo"
	EventStateInit    Event = "state:init"
	EventStateUpdate  Event = "state:update"
	EventClearAll     Event = "clear:all"

	// Ephemeral relay, never persisted
	EventDrawStart  Event = "draw:start"
	EventDrawMove   Event = "draw:move"
	EventDrawEnd    Event = "draw:end"
	EventCursorMove Event = "cursor:move"
)

const (
	DefaultRoomID      = "default"
	DefaultDisplayName = "Guest"
	DefaultStrokeWidth = 1

	MaxRoomIDLength      = 128
	MaxDisplayNameLength = 64
)

var (
	ErrMalformed    = errors.New("malformed frame")
	ErrUnknownEvent = errors.New("unknown event")
)

// Events a client may send
var inbound = map[Event]bool{
	EventRoomJoin:        true,
	EventUserListRequest: true,
	EventStrokeCommit:    true,
	EventUndo:            true,
	EventRedo:            true,
	EventClearAll:        true,
	EventDrawStart:       true,
	EventDrawMove:        true,
	EventDrawEnd:         true,
	EventCursorMove:      true,
}

// IsRelay reports whether the event is an ephemeral in-progress drawing or
// cursor event that is fanned out without touching room state.
func IsRelay(e Event) bool {
	switch e {
	case EventDrawStart, EventDrawMove, EventDrawEnd, EventCursorMove:
		return true
	}
	return false
}

type Envelope struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type JoinRequest struct {
	DisplayName string `json:"displayName"`
	RoomID      string `json:"roomId"`
}

type Joined struct {
	RoomID string `json:"roomId"`
}

type Assigned struct {
	ConnectionID string `json:"connectionId"`
}

type MemberList struct {
	Members []room.Member `json:"members"`
}

type UserJoined struct {
	ConnectionID string `json:"connectionId"`
	Name         string `json:"name"`
}

type UserLeft struct {
	ConnectionID string `json:"connectionId"`
}

type Clear struct {
	ConnectionID string `json:"connectionId"`
}

// Parse validates a raw client frame. Only events a client is allowed to
// send are accepted.
func Parse(data []byte) (Envelope, error) {
	var env Envelope
	if len(bytes.TrimSpace(data)) == 0 {
		return env, fmt.Errorf("%w: empty frame", ErrMalformed)
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return env, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if env.Event == "" {
		return env, fmt.Errorf("%w: missing event", ErrMalformed)
	}
	if !inbound[env.Event] {
		return env, fmt.Errorf("%w: %q", ErrUnknownEvent, env.Event)
	}
	return env, nil
}

// Encode builds an outbound frame
func Encode(event Event, payload any) ([]byte, error) {
	env := Envelope{Event: event}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", event, err)
		}
		env.Data = data
	}
	return json.Marshal(env)
}

// EncodeRaw wraps an already-encoded payload without re-interpreting it.
func EncodeRaw(event Event, data json.RawMessage) ([]byte, error) {
	return json.Marshal(Envelope{Event: event, Data: data})
}

// DecodeJoin reads a room:join payload, filling defaults for missing fields.
func DecodeJoin(data json.RawMessage) (JoinRequest, error) {
	var req JoinRequest
	if err := decodeObject(data, &req); err != nil {
		return req, err
	}
	req.RoomID = clean(req.RoomID, MaxRoomIDLength)
	if req.RoomID == "" {
		req.RoomID = DefaultRoomID
	}
	req.DisplayName = clean(req.DisplayName, MaxDisplayNameLength)
	if req.DisplayName == "" {
		req.DisplayName = DefaultDisplayName
	}
	return req, nil
}

// DecodeStroke reads a stroke:commit candidate. Numeric fields may arrive
// as strings; a missing or unparseable width becomes DefaultStrokeWidth.
// Fields the engine does not know are kept for fan-out. The order field is
// discarded; only the engine assigns orders.
func DecodeStroke(data json.RawMessage) (room.Stroke, error) {
	var s room.Stroke
	if err := decodeObject(data, &s); err != nil {
		return s, err
	}
	s.Order = 0
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.Points == nil {
		s.Points = make([]room.Point, 0)
	}
	if s.Width <= 0 {
		s.Width = DefaultStrokeWidth
	}
	return s, nil
}

func decodeObject(data json.RawMessage, v any) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil
	}
	if trimmed[0] != '{' {
		return fmt.Errorf("%w: payload is not an object", ErrMalformed)
	}
	if err := json.Unmarshal(trimmed, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

func clean(s string, limit int) string {
	s = strings.TrimSpace(s)
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "")
	}
	if utf8.RuneCountInString(s) > limit {
		s = string([]rune(s)[:limit])
	}
	return s
}
