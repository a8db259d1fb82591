package hertzws

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/websocket"

	"watchsync/internal/protocol"
	"watchsync/internal/rooms"
)

const readTimeout = 90 * time.Second

// Handler WebSocket处理器
type Handler struct {
	manager  *rooms.Manager
	upgrader websocket.HertzUpgrader
}

func NewHandler(manager *rooms.Manager) *Handler {
	return &Handler{
		manager: manager,
		upgrader: websocket.HertzUpgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(ctx *app.RequestContext) bool {
				return true
			},
		},
	}
}

// HandleWebSocket 处理 /ws/rooms/:code?token=T
func (h *Handler) HandleWebSocket(c context.Context, ctx *app.RequestContext) {
	roomCode := ctx.Param("code")
	token := ctx.Query("token")
	if token == "" {
		ctx.String(consts.StatusUnauthorized, "missing token")
		return
	}

	room, member, err := h.manager.Authorize(c, roomCode, token)
	if err != nil {
		status := consts.StatusUnauthorized
		if errors.Is(err, rooms.ErrRoomNotFound) {
			status = consts.StatusNotFound
		}
		ctx.String(status, err.Error())
		return
	}

	err = h.upgrader.Upgrade(ctx, func(conn *websocket.Conn) {
		ilog.EventInfo(c, "ws_connected", "room", room.Code(), "user", member.ID)
		participant := room.Attach(member, conn)
		go participant.SendLoop(websocket.TextMessage)

		h.readLoop(c, room, participant, conn)
		room.Detach(participant)
		ilog.EventInfo(c, "ws_disconnected", "room", room.Code(), "user", member.ID)
	})
	if err != nil {
		ilog.EventInfo(c, "ws_upgrade_failed", "room", roomCode, "err", err.Error())
	}
}

// readLoop 读取消息直到连接关闭
func (h *Handler) readLoop(c context.Context, room *rooms.Room, participant *rooms.Participant, conn *websocket.Conn) {
	_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				ilog.EventInfo(c, "ws_read_error", "room", room.Code(), "err", err.Error())
			}
			return
		}
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))

		// 只处理文本消息
		if msgType != websocket.TextMessage {
			continue
		}
		var inbound protocol.InboundEnvelope
		if err := json.Unmarshal(data, &inbound); err != nil {
			continue
		}
		h.manager.HandleEvent(c, room, participant, inbound)
	}
}
