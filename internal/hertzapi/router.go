package hertzapi

import (
	"context"
	"strconv"
	"strings"

	"github.com/RanFeng/ilog"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"watchsync/internal/hertzws"
	"watchsync/internal/protocol"
	"watchsync/internal/rooms"
)

const (
	roomKey   = "room"
	memberKey = "member"
)

// NewRouter 初始化Hertz路由
func NewRouter(h *server.Hertz, roomManager *rooms.Manager) *server.Hertz {
	wsHandler := hertzws.NewHandler(roomManager)

	h.Use(recoveryMiddleware())

	h.GET("/healthz", func(c context.Context, ctx *app.RequestContext) {
		ctx.String(consts.StatusOK, "ok")
	})

	h.POST("/room/create", handleCreateRoom(roomManager))
	h.POST("/room/:code/join", handleJoinRoom(roomManager))

	// 需要 Bearer token 的房间接口
	room := h.Group("/room/:code", authMiddleware(roomManager))
	{
		room.GET("/video-sync", handleVideoSync(roomManager))
		room.POST("/video-control", handleVideoControl(roomManager))
		room.GET("/messages", handleMessages())
		room.POST("/send-message", handleSendMessage(roomManager))
		room.GET("/member-count", handleMemberCount())
		room.GET("/members", handleMembers())
		room.POST("/leave", handleLeave(roomManager))
	}

	h.GET("/ws/rooms/:code", wsHandler.HandleWebSocket)

	return h
}

// recoveryMiddleware 恢复中间件
func recoveryMiddleware() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		defer func() {
			if err := recover(); err != nil {
				ilog.EventInfo(c, "panic_recovered", "path", string(ctx.Path()), "err", err)
				respondError(ctx, consts.StatusInternalServerError, "internal server error")
			}
		}()
		ctx.Next(c)
	}
}

func authMiddleware(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		token := strings.TrimPrefix(string(ctx.GetHeader("Authorization")), "Bearer ")
		if token == "" {
			respondError(ctx, consts.StatusUnauthorized, "missing token")
			ctx.Abort()
			return
		}
		room, member, err := roomManager.Authorize(c, ctx.Param("code"), token)
		if err != nil {
			respondError(ctx, rooms.HTTPStatus(err), err.Error())
			ctx.Abort()
			return
		}
		ctx.Set(roomKey, room)
		ctx.Set(memberKey, member)
		ctx.Next(c)
	}
}

func current(ctx *app.RequestContext) (*rooms.Room, *rooms.Member) {
	room, _ := ctx.Get(roomKey)
	member, _ := ctx.Get(memberKey)
	return room.(*rooms.Room), member.(*rooms.Member)
}

// handleCreateRoom 创建房间处理函数
func handleCreateRoom(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		var payload protocol.JoinRequest
		if err := ctx.Bind(&payload); err != nil {
			respondError(ctx, consts.StatusBadRequest, "invalid request body")
			return
		}
		session, err := roomManager.CreateRoom(payload.DisplayName)
		if err != nil {
			respondError(ctx, rooms.HTTPStatus(err), err.Error())
			return
		}
		ilog.EventInfo(c, "CreateRoom", "room", session.RoomCode, "user", session.UserID)
		ctx.JSON(consts.StatusCreated, session)
	}
}

// handleJoinRoom 加入房间处理函数
func handleJoinRoom(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		var payload protocol.JoinRequest
		if err := ctx.Bind(&payload); err != nil {
			respondError(ctx, consts.StatusBadRequest, "invalid request body")
			return
		}
		session, err := roomManager.JoinRoom(ctx.Param("code"), payload.DisplayName)
		if err != nil {
			respondError(ctx, rooms.HTTPStatus(err), err.Error())
			return
		}
		ilog.EventInfo(c, "JoinRoom", "room", session.RoomCode, "user", session.UserID)
		ctx.JSON(consts.StatusOK, session)
	}
}

func handleVideoSync(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, _ := current(ctx)
		ctx.JSON(consts.StatusOK, room.VideoSync(roomManager.Now()))
	}
}

func handleVideoControl(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, member := current(ctx)
		var payload protocol.VideoControlRequest
		if err := ctx.Bind(&payload); err != nil {
			respondError(ctx, consts.StatusBadRequest, "invalid request body")
			return
		}
		if err := room.ApplyControl(member.ID, payload, roomManager.Now()); err != nil {
			respondError(ctx, rooms.HTTPStatus(err), err.Error())
			return
		}
		ilog.EventInfo(c, "VideoControl", "room", room.Code(), "action", payload.Action, "time", payload.Time)
		ctx.JSON(consts.StatusOK, protocol.SuccessResponse{Success: true})
	}
}

func handleMessages() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, _ := current(ctx)
		afterID, _ := strconv.ParseInt(ctx.Query("after_id"), 10, 64)
		ctx.JSON(consts.StatusOK, room.MessagesAfter(afterID))
	}
}

func handleSendMessage(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, member := current(ctx)
		var payload protocol.SendMessageRequest
		if err := ctx.Bind(&payload); err != nil {
			respondError(ctx, consts.StatusBadRequest, "invalid request body")
			return
		}
		msg, err := room.AppendMessage(member.ID, payload.Message, roomManager.Now())
		if err != nil {
			respondError(ctx, rooms.HTTPStatus(err), err.Error())
			return
		}
		ctx.JSON(consts.StatusOK, msg)
	}
}

func handleMemberCount() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, _ := current(ctx)
		count := room.MemberCount()
		ctx.JSON(consts.StatusOK, protocol.MemberCountResponse{Success: true, Count: &count})
	}
}

func handleMembers() app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, _ := current(ctx)
		ctx.JSON(consts.StatusOK, protocol.MembersResponse{Success: true, Members: room.Members()})
	}
}

func handleLeave(roomManager *rooms.Manager) app.HandlerFunc {
	return func(c context.Context, ctx *app.RequestContext) {
		room, member := current(ctx)
		roomManager.Leave(room, member.ID)
		ilog.EventInfo(c, "LeaveRoom", "room", room.Code(), "user", member.ID)
		ctx.JSON(consts.StatusOK, protocol.SuccessResponse{Success: true})
	}
}

// respondError 返回错误响应
func respondError(ctx *app.RequestContext, status int, message string) {
	ctx.JSON(status, protocol.SuccessResponse{Success: false, Error: message})
}
