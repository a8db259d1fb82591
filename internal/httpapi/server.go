package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"watchsync/internal/protocol"
	"watchsync/internal/rooms"
	"watchsync/internal/ws"
)

const (
	roomKey   = "room"
	memberKey = "member"
)

type Server struct {
	rooms  *rooms.Manager
	ws     *ws.Handler
	router *echo.Echo
}

func NewServer(manager *rooms.Manager) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	server := &Server{
		rooms:  manager,
		ws:     ws.NewHandler(manager),
		router: e,
	}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.POST("/room/create", server.handleCreateRoom)
	e.POST("/room/:code/join", server.handleJoinRoom)

	room := e.Group("/room/:code", server.authenticate)
	room.GET("/video-sync", server.handleVideoSync)
	room.POST("/video-control", server.handleVideoControl)
	room.GET("/messages", server.handleMessages)
	room.POST("/send-message", server.handleSendMessage)
	room.GET("/member-count", server.handleMemberCount)
	room.GET("/members", server.handleMembers)
	room.POST("/leave", server.handleLeave)

	e.GET("/ws/rooms/:code", server.handleWebSocket)

	return server
}

func (s *Server) Router() http.Handler {
	return s.router
}

// authenticate resolves the bearer token to a room member.
func (s *Server) authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		token := strings.TrimPrefix(c.Request().Header.Get(echo.HeaderAuthorization), "Bearer ")
		if token == "" {
			return respondError(c, http.StatusUnauthorized, "missing token")
		}
		room, member, err := s.rooms.Authorize(c.Request().Context(), c.Param("code"), token)
		if err != nil {
			return respondError(c, rooms.HTTPStatus(err), err.Error())
		}
		c.Set(roomKey, room)
		c.Set(memberKey, member)
		return next(c)
	}
}

func current(c echo.Context) (*rooms.Room, *rooms.Member) {
	return c.Get(roomKey).(*rooms.Room), c.Get(memberKey).(*rooms.Member)
}

func (s *Server) handleCreateRoom(c echo.Context) error {
	var payload protocol.JoinRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	session, err := s.rooms.CreateRoom(payload.DisplayName)
	if err != nil {
		return respondError(c, rooms.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusCreated, session)
}

func (s *Server) handleJoinRoom(c echo.Context) error {
	var payload protocol.JoinRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	session, err := s.rooms.JoinRoom(c.Param("code"), payload.DisplayName)
	if err != nil {
		return respondError(c, rooms.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, session)
}

func (s *Server) handleVideoSync(c echo.Context) error {
	room, _ := current(c)
	return c.JSON(http.StatusOK, room.VideoSync(s.rooms.Now()))
}

func (s *Server) handleVideoControl(c echo.Context) error {
	room, member := current(c)
	var payload protocol.VideoControlRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	if err := room.ApplyControl(member.ID, payload, s.rooms.Now()); err != nil {
		return respondError(c, rooms.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, protocol.SuccessResponse{Success: true})
}

func (s *Server) handleMessages(c echo.Context) error {
	room, _ := current(c)
	afterID, _ := strconv.ParseInt(c.QueryParam("after_id"), 10, 64)
	return c.JSON(http.StatusOK, room.MessagesAfter(afterID))
}

func (s *Server) handleSendMessage(c echo.Context) error {
	room, member := current(c)
	var payload protocol.SendMessageRequest
	if err := c.Bind(&payload); err != nil {
		return respondError(c, http.StatusBadRequest, "invalid request body")
	}
	msg, err := room.AppendMessage(member.ID, payload.Message, s.rooms.Now())
	if err != nil {
		return respondError(c, rooms.HTTPStatus(err), err.Error())
	}
	return c.JSON(http.StatusOK, msg)
}

func (s *Server) handleMemberCount(c echo.Context) error {
	room, _ := current(c)
	count := room.MemberCount()
	return c.JSON(http.StatusOK, protocol.MemberCountResponse{Success: true, Count: &count})
}

func (s *Server) handleMembers(c echo.Context) error {
	room, _ := current(c)
	return c.JSON(http.StatusOK, protocol.MembersResponse{Success: true, Members: room.Members()})
}

func (s *Server) handleLeave(c echo.Context) error {
	room, member := current(c)
	s.rooms.Leave(room, member.ID)
	return c.JSON(http.StatusOK, protocol.SuccessResponse{Success: true})
}

func (s *Server) handleWebSocket(c echo.Context) error {
	c.Request().URL.Path = "/ws/rooms/" + c.Param("code")
	// the websocket handler owns the connection from here on
	s.ws.ServeHTTP(c.Response(), c.Request())
	return nil
}

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, protocol.SuccessResponse{Success: false, Error: message})
}
