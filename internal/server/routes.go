package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/Leontarin/CareBell-sub000/internal/signaling"
	"github.com/Leontarin/CareBell-sub000/internal/store"
)

// Configure the websocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 64 * 1024,

	// The care-companion webapp and the CLI connect from anywhere.
	// TODO: check Origin against the deployed frontend domain.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ServeWs returns an http.HandlerFunc that upgrades requests to
// websockets and hands the connection to the hub.
func ServeWs(hub *signaling.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "err", err)
			return
		}

		client := signaling.NewClient(hub, conn)
		hub.Register <- client

		go client.WritePump()
		go client.ReadPump()
	}
}

// NewMux builds the signaling server's HTTP surface: health check,
// websocket endpoint, the read-only rooms API the clients use for the
// pre-join room-full check, and, when a store is attached, durable-room
// management plus the user directory. db may be nil.
func NewMux(hub *signaling.Hub, db *store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("Signaling server is healthy."))
	})

	mux.Handle("/ws", ServeWs(hub))

	mux.HandleFunc("GET /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, hub.Registry().Snapshots())
	})

	mux.HandleFunc("GET /api/rooms/{name}", func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("name")
		if snapshot := hub.Registry().Snapshot(name); snapshot != nil {
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
		// Durable rooms created on another instance live in the store
		// until someone joins here.
		if db != nil {
			if record, err := db.GetRoom(r.Context(), name); err == nil {
				writeJSON(w, http.StatusOK, &signaling.RoomSnapshot{
					Name:         record.Name,
					Participants: record.Participants,
					MemberCount:  len(record.Participants),
					Durable:      record.Durable,
					Active:       record.IsActive,
					CreatedAt:    record.CreatedAt,
				})
				return
			}
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "room not found"})
	})

	mux.HandleFunc("POST /api/rooms", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
			return
		}
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Name) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name is required"})
			return
		}
		record, err := db.CreateDurableRoom(r.Context(), req.Name)
		if err != nil {
			slog.Error("durable room creation failed", "room", req.Name, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not create room"})
			return
		}
		hub.Registry().MarkDurable(req.Name)
		writeJSON(w, http.StatusCreated, record)
	})

	mux.HandleFunc("GET /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
			return
		}
		id := r.PathValue("id")
		writeJSON(w, http.StatusOK, store.UserRecord{
			UserID:      id,
			DisplayName: db.DisplayName(r.Context(), id),
		})
	})

	mux.HandleFunc("PUT /api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if db == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "persistence not configured"})
			return
		}
		var req struct {
			DisplayName string `json:"displayName"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.DisplayName) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "displayName is required"})
			return
		}
		id := r.PathValue("id")
		if err := db.UpsertUser(r.Context(), id, req.DisplayName); err != nil {
			slog.Error("user upsert failed", "user", id, "err", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "could not save user"})
			return
		}
		writeJSON(w, http.StatusOK, store.UserRecord{UserID: id, DisplayName: req.DisplayName})
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("writing response failed", "err", err)
	}
}
