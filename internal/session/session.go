// Package session holds the identity of one joined room. A Session is built
// once on join and handed to every component; nothing reads room or role
// from package state.
package session

import (
	"errors"
	"strings"

	"watchsync/internal/protocol"
)

type Role string

const (
	Host   Role = protocol.RoleHost
	Viewer Role = protocol.RoleViewer
)

var (
	ErrMissingRoom = errors.New("room code is required")
	ErrMissingSelf = errors.New("self id is required")
	ErrInvalidRole = errors.New("role must be host or viewer")
)

type Session struct {
	roomCode string
	role     Role
	selfID   string
	token    string
}

func New(roomCode string, role Role, selfID, token string) (Session, error) {
	roomCode = strings.ToUpper(strings.TrimSpace(roomCode))
	if roomCode == "" {
		return Session{}, ErrMissingRoom
	}
	if selfID == "" {
		return Session{}, ErrMissingSelf
	}
	if role != Host && role != Viewer {
		return Session{}, ErrInvalidRole
	}
	return Session{roomCode: roomCode, role: role, selfID: selfID, token: token}, nil
}

// FromJoin builds a Session from the server's create/join response.
func FromJoin(resp protocol.JoinResponse) (Session, error) {
	return New(resp.RoomCode, Role(resp.Role), resp.UserID, resp.Token)
}

func (s Session) RoomCode() string { return s.roomCode }
func (s Session) Role() Role       { return s.role }
func (s Session) SelfID() string   { return s.selfID }
func (s Session) Token() string    { return s.token }
func (s Session) IsHost() bool     { return s.role == Host }
