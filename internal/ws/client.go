package ws

import (
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/manpreetbhatti/canvasroom/internal/protocol"
	"github.com/manpreetbhatti/canvasroom/internal/ratelimit"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1024 * 1024
	sendBufferSize = 512

	// Limited messages tolerated before the connection is closed
	maxRateLimitWarnings = 1000
)

type Client struct {
	hub    *Hub
	conn   *websocket.Conn
	send   chan []byte
	limits *ratelimit.Set

	id string

	// Owned by the hub goroutine
	name    string
	roomID  string
	evicted bool
}

func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("Upgrade error:", err)
		return
	}

	client := &Client{
		hub:    hub,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		limits: ratelimit.NewSet(hub.policy),
		id:     uuid.NewString(),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	rateLimitWarnings := 0

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}

		env, err := protocol.Parse(data)
		if err != nil {
			log.Printf("⚠️ Invalid message from client %s: %v", c.id, err)
			continue
		}

		switch admit(c.limits, env.Event) {
		case admitDrop:
			rateLimitWarnings++
			if rateLimitWarnings%100 == 1 {
				log.Printf("⚠️ Rate limit exceeded for client %s on %s (warning #%d)",
					c.id, env.Event, rateLimitWarnings)
			}
			if rateLimitWarnings > maxRateLimitWarnings {
				log.Printf("🚫 Disconnecting client %s for excessive rate limit violations", c.id)
				return
			}
			continue
		case admitClose:
			log.Printf("🚫 Disconnecting client %s: %s over the history rate limit", c.id, env.Event)
			return
		}

		select {
		case c.hub.inbound <- &Message{Sender: c, Envelope: env}:
		case <-c.hub.done:
			return
		}
	}
}

type verdict int

const (
	admitForward verdict = iota
	admitDrop
	admitClose
)

// admit applies the connection's rate limits to one inbound event.
// Throttled relay traffic is dropped, apart from draw:end, which peers need
// to close the in-progress path. History events are never dropped: a
// connection over its history budget is closed instead and resyncs from
// state:init when it joins again.
func admit(limits *ratelimit.Set, event protocol.Event) verdict {
	if !protocol.IsRelay(event) {
		if limits.Allow(ratelimit.ClassHistory) {
			return admitForward
		}
		return admitClose
	}
	if limits.Allow(ratelimit.ClassRelay) || event == protocol.EventDrawEnd {
		return admitForward
	}
	return admitDrop
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
