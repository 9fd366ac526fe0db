package room

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
)

// Browser clients read numbers straight from form inputs, so width and
// timestamp may arrive as numeric strings. Unparseable values decode as
// zero and are left for the caller to default.

var strokeKeys = map[string]bool{
	"id": true, "authorId": true, "color": true, "width": true,
	"isEraser": true, "points": true, "timestamp": true, "order": true,
}

var pointKeys = map[string]bool{"x": true, "y": true}

type strokeFields Stroke

type pointFields Point

func (s *Stroke) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*s = Stroke{}
	for key, raw := range fields {
		switch key {
		case "id":
			s.ID = text(raw)
		case "authorId":
			s.AuthorID = text(raw)
		case "color":
			s.Color = text(raw)
		case "width":
			s.Width, _ = number(raw)
		case "isEraser":
			s.IsEraser = flag(raw)
		case "points":
			if err := json.Unmarshal(raw, &s.Points); err != nil {
				return fmt.Errorf("points: %w", err)
			}
		case "timestamp":
			ts, _ := number(raw)
			s.Timestamp = int64(ts)
		case "order":
			order, _ := number(raw)
			s.Order = int64(order)
		default:
			if s.Extra == nil {
				s.Extra = make(map[string]json.RawMessage)
			}
			s.Extra[key] = raw
		}
	}
	return nil
}

func (s Stroke) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(strokeFields(s))
	if err != nil {
		return nil, err
	}
	return appendExtra(data, s.Extra, strokeKeys)
}

func (p *Point) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	*p = Point{}
	for key, raw := range fields {
		switch key {
		case "x":
			p.X, _ = number(raw)
		case "y":
			p.Y, _ = number(raw)
		default:
			if p.Extra == nil {
				p.Extra = make(map[string]json.RawMessage)
			}
			p.Extra[key] = raw
		}
	}
	return nil
}

func (p Point) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(pointFields(p))
	if err != nil {
		return nil, err
	}
	return appendExtra(data, p.Extra, pointKeys)
}

// appendExtra splices extra members into an encoded object. Typed fields
// win over extras with the same key.
func appendExtra(obj []byte, extra map[string]json.RawMessage, known map[string]bool) ([]byte, error) {
	if len(extra) == 0 {
		return obj, nil
	}

	var buf bytes.Buffer
	buf.Write(obj[:len(obj)-1])
	for _, key := range slices.Sorted(maps.Keys(extra)) {
		if known[key] {
			continue
		}
		name, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		raw := extra[key]
		if len(bytes.TrimSpace(raw)) == 0 {
			raw = json.RawMessage("null")
		}
		buf.WriteByte(',')
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(raw)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func number(raw json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func text(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func flag(raw json.RawMessage) bool {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b
	}
	b, _ = strconv.ParseBool(text(raw))
	return b
}
