package client

import (
	"context"
	"fmt"
	"strings"

	"watchsync/internal/protocol"
	"watchsync/internal/session"
	"watchsync/internal/transport"
)

// CreateRoom asks the server for a new room and returns a host session.
func CreateRoom(ctx context.Context, req transport.Requester, displayName string) (session.Session, error) {
	return enter(ctx, req, transport.Post(protocol.CreateRoomPath()), displayName)
}

// JoinRoom enters an existing room as a viewer.
func JoinRoom(ctx context.Context, req transport.Requester, roomCode, displayName string) (session.Session, error) {
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	if roomCode == "" {
		return session.Session{}, session.ErrMissingRoom
	}
	return enter(ctx, req, transport.Post(protocol.JoinRoomPath(roomCode)), displayName)
}

func enter(ctx context.Context, req transport.Requester, ep transport.Endpoint, displayName string) (session.Session, error) {
	var resp protocol.JoinResponse
	if err := req.Request(ctx, ep, protocol.JoinRequest{DisplayName: strings.TrimSpace(displayName)}, &resp); err != nil {
		return session.Session{}, err
	}
	sess, err := session.FromJoin(resp)
	if err != nil {
		return session.Session{}, fmt.Errorf("join %s: %w", ep.Path, err)
	}
	return sess, nil
}

// PushURL turns the HTTP base URL into the room's WebSocket URL.
func PushURL(baseURL string, sess session.Session) string {
	u := strings.TrimRight(baseURL, "/")
	switch {
	case strings.HasPrefix(u, "https://"):
		u = "wss://" + strings.TrimPrefix(u, "https://")
	case strings.HasPrefix(u, "http://"):
		u = "ws://" + strings.TrimPrefix(u, "http://")
	}
	return u + protocol.PushPath(sess.RoomCode(), sess.Token())
}
