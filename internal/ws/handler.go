package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/gorilla/websocket"

	"watchsync/internal/protocol"
	"watchsync/internal/rooms"
)

const readTimeout = 90 * time.Second

type Handler struct {
	manager  *rooms.Manager
	upgrader websocket.Upgrader
}

func NewHandler(manager *rooms.Manager) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	roomCode, err := extractRoomCode(r.URL.Path)
	if err != nil {
		http.Error(w, "invalid room path", http.StatusBadRequest)
		return
	}

	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	room, member, err := h.manager.Authorize(ctx, roomCode, token)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, rooms.ErrRoomNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// the upgrader has already answered the request
		ilog.EventInfo(ctx, "ws_upgrade_failed", "room", roomCode, "err", err.Error())
		return
	}
	ilog.EventInfo(ctx, "ws_connected", "room", room.Code(), "user", member.ID)

	participant := room.Attach(member, conn)
	go participant.SendLoop(websocket.TextMessage)

	h.readLoop(r, room, participant, conn)
	room.Detach(participant)
	ilog.EventInfo(ctx, "ws_disconnected", "room", room.Code(), "user", member.ID)
}

func (h *Handler) readLoop(r *http.Request, room *rooms.Room, participant *rooms.Participant, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		if msgType != websocket.TextMessage {
			continue
		}
		var inbound protocol.InboundEnvelope
		if err := json.Unmarshal(data, &inbound); err != nil {
			continue
		}
		h.manager.HandleEvent(r.Context(), room, participant, inbound)
	}
}

func extractRoomCode(path string) (string, error) {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 || parts[0] != "ws" || parts[1] != "rooms" || parts[2] == "" {
		return "", errors.New("invalid path")
	}
	return parts[2], nil
}
