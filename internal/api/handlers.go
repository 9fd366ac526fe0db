package api

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/manpreetbhatti/canvasroom/internal/db"
	"github.com/manpreetbhatti/canvasroom/internal/render"
	"github.com/manpreetbhatti/canvasroom/internal/room"
	"github.com/manpreetbhatti/canvasroom/internal/ws"
)

type API struct {
	hub      *ws.Hub
	database *db.Database
}

func New(hub *ws.Hub, database *db.Database) *API {
	return &API{
		hub:      hub,
		database: database,
	}
}

// Router wires every HTTP endpoint, including the WebSocket upgrade.
func (a *API) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(corsMiddleware)

	router.Methods("OPTIONS").HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		ws.ServeWs(a.hub, w, r)
	})

	router.HandleFunc("/health", a.HealthHandler).Methods("GET")
	router.HandleFunc("/api/stats", a.StatsHandler).Methods("GET")
	router.HandleFunc("/api/rooms", a.ListRoomsHandler).Methods("GET")
	router.HandleFunc("/api/rooms/{id}", a.GetRoomHandler).Methods("GET")
	router.HandleFunc("/api/rooms/{id}/strokes", a.StrokesHandler).Methods("GET")
	router.HandleFunc("/api/rooms/{id}/snapshot.png", a.SnapshotPNGHandler).Methods("GET")
	router.HandleFunc("/api/rooms/{id}/snapshot.pdf", a.SnapshotPDFHandler).Methods("GET")
	router.HandleFunc("/api/rooms/{id}/sessions", a.SessionsHandler).Methods("GET")

	return router
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		next.ServeHTTP(w, r)
	})
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Error encoding JSON response: %v", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	live, err := a.hub.GetStats(r.Context())
	if err != nil {
		errorResponse(w, http.StatusServiceUnavailable, "Hub unavailable")
		return
	}

	stats := map[string]interface{}{
		"active_rooms":   live.ActiveRooms,
		"active_clients": live.ActiveClients,
		"commits":        live.Commits,
		"undos":          live.Undos,
		"redos":          live.Redos,
		"clears":         live.Clears,
		"relayed":        live.Relayed,
		"last_order":     live.LastOrder,
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err == nil {
			stats["total_sessions"] = dbStats["session_count"]
			stats["total_rooms"] = dbStats["room_count"]
			stats["total_commits"] = dbStats["commit_count"]
		}
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	ID          string        `json:"id"`
	CreatedAt   time.Time     `json:"created_at"`
	Members     []room.Member `json:"members"`
	StrokeCount int           `json:"stroke_count"`
	RedoDepth   int           `json:"redo_depth"`
}

func (a *API) ListRoomsHandler(w http.ResponseWriter, r *http.Request) {
	rooms, err := a.hub.GetActiveRooms(r.Context())
	if err != nil {
		errorResponse(w, http.StatusServiceUnavailable, "Hub unavailable")
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"rooms": rooms,
		"total": len(rooms),
	})
}

// liveRoom looks up the room named in the path and writes the error
// response itself when it cannot be served.
func (a *API) liveRoom(w http.ResponseWriter, r *http.Request) (ws.RoomDetail, bool) {
	roomID := mux.Vars(r)["id"]
	if roomID == "" {
		errorResponse(w, http.StatusBadRequest, "Room ID is required")
		return ws.RoomDetail{}, false
	}

	detail, ok, err := a.hub.GetRoom(r.Context(), roomID)
	if err != nil {
		errorResponse(w, http.StatusServiceUnavailable, "Hub unavailable")
		return ws.RoomDetail{}, false
	}
	if !ok {
		errorResponse(w, http.StatusNotFound, "Room not found")
		return ws.RoomDetail{}, false
	}
	return detail, true
}

func (a *API) GetRoomHandler(w http.ResponseWriter, r *http.Request) {
	detail, ok := a.liveRoom(w, r)
	if !ok {
		return
	}

	jsonResponse(w, http.StatusOK, RoomResponse{
		ID:          detail.ID,
		CreatedAt:   detail.CreatedAt,
		Members:     detail.Members,
		StrokeCount: len(detail.Strokes),
		RedoDepth:   detail.RedoDepth,
	})
}

func (a *API) StrokesHandler(w http.ResponseWriter, r *http.Request) {
	detail, ok := a.liveRoom(w, r)
	if !ok {
		return
	}

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"room_id": detail.ID,
		"strokes": detail.Strokes,
	})
}

// Snapshot handlers

func renderOptions(r *http.Request) render.Options {
	width, _ := strconv.Atoi(r.URL.Query().Get("width"))
	height, _ := strconv.Atoi(r.URL.Query().Get("height"))
	return render.Options{Width: width, Height: height}
}

type renderFunc func(w io.Writer, strokes []room.Stroke, opts render.Options) error

func (a *API) snapshot(w http.ResponseWriter, r *http.Request, contentType string, draw renderFunc) {
	detail, ok := a.liveRoom(w, r)
	if !ok {
		return
	}

	// Rendered in full before writing so a failure can still be reported
	var buf bytes.Buffer
	if err := draw(&buf, detail.Strokes, renderOptions(r)); err != nil {
		log.Printf("Failed to render snapshot of room %s: %v", detail.ID, err)
		errorResponse(w, http.StatusInternalServerError, "Failed to render snapshot")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	buf.WriteTo(w)
}

func (a *API) SnapshotPNGHandler(w http.ResponseWriter, r *http.Request) {
	a.snapshot(w, r, "image/png", render.PNG)
}

func (a *API) SnapshotPDFHandler(w http.ResponseWriter, r *http.Request) {
	a.snapshot(w, r, "application/pdf", render.PDF)
}

// Session history

func (a *API) SessionsHandler(w http.ResponseWriter, r *http.Request) {
	if a.database == nil {
		errorResponse(w, http.StatusServiceUnavailable, "Journal disabled")
		return
	}

	roomID := mux.Vars(r)["id"]

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	if offset < 0 {
		offset = 0
	}

	sessions, err := a.database.ListSessions(roomID, limit, offset)
	if err != nil {
		errorResponse(w, http.StatusInternalServerError, "Failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}

	total, _ := a.database.GetSessionCount(roomID)

	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"sessions": sessions,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}
