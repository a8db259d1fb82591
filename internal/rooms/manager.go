package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/RanFeng/ilog"
	"github.com/google/uuid"

	"watchsync/internal/protocol"
)

var (
	ErrRoomNotFound        = errors.New("room not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidToken        = errors.New("invalid token")
	ErrDisplayNameRequired = errors.New("display name is required")
)

const roomCodeLength = 6

// Fanout carries a room broadcast to every server instance. Each instance
// hands what it receives to Manager.Deliver.
type Fanout interface {
	Publish(ctx context.Context, roomCode, excludeID string, data []byte) error
}

type Option func(*Manager)

func WithFanout(f Fanout) Option {
	return func(m *Manager) { m.fanout = f }
}

// WithClock swaps the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

type Manager struct {
	mu     sync.RWMutex
	rooms  map[string]*Room
	fanout Fanout
	now    func() time.Time
}

func NewManager(opts ...Option) *Manager {
	m := &Manager{
		rooms: make(map[string]*Room),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Now() time.Time { return m.now() }

// CreateRoom opens a room with the caller as host.
func (m *Manager) CreateRoom(displayName string) (protocol.JoinResponse, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return protocol.JoinResponse{}, ErrDisplayNameRequired
	}
	now := m.now()

	m.mu.Lock()
	code := m.newCodeLocked()
	room := NewRoom(code, now)
	m.rooms[code] = room
	m.mu.Unlock()

	return enter(room, displayName, protocol.RoleHost, now), nil
}

// JoinRoom adds a viewer to an existing room.
func (m *Manager) JoinRoom(code, displayName string) (protocol.JoinResponse, error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return protocol.JoinResponse{}, ErrDisplayNameRequired
	}
	room, err := m.Room(code)
	if err != nil {
		return protocol.JoinResponse{}, err
	}
	return enter(room, displayName, protocol.RoleViewer, m.now()), nil
}

func enter(room *Room, displayName, role string, now time.Time) protocol.JoinResponse {
	member := &Member{
		ID:          uuid.NewString(),
		DisplayName: displayName,
		Token:       uuid.NewString(),
		Role:        role,
		JoinedAt:    now,
	}
	room.AddMember(member, now)
	return protocol.JoinResponse{
		RoomCode: room.Code(),
		UserID:   member.ID,
		Token:    member.Token,
		Role:     role,
	}
}

func (m *Manager) newCodeLocked() string {
	for {
		code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:roomCodeLength]
		if _, taken := m.rooms[code]; !taken {
			return code
		}
	}
}

// Room looks a room up by code, case-insensitively.
func (m *Manager) Room(code string) (*Room, error) {
	m.mu.RLock()
	room, ok := m.rooms[strings.ToUpper(strings.TrimSpace(code))]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrRoomNotFound
	}
	return room, nil
}

// Authorize resolves a session token to its room and member.
func (m *Manager) Authorize(ctx context.Context, code, token string) (*Room, *Member, error) {
	room, err := m.Room(code)
	if err != nil {
		return nil, nil, err
	}
	member, err := room.FindByToken(token)
	if err != nil {
		ilog.EventInfo(ctx, "authorize_failed", "room", code, "err", err.Error())
		return nil, nil, err
	}
	return room, member, nil
}

// Leave removes the member and drops the room once it is empty.
func (m *Manager) Leave(room *Room, memberID string) {
	if !room.RemoveMember(memberID, m.now()) {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if current, ok := m.rooms[room.Code()]; ok && current == room && room.MemberCount() == 0 {
		delete(m.rooms, room.Code())
	}
}

// Broadcast sends envelope to every joined connection in the room except
// the ones of excludeID.
func (m *Manager) Broadcast(ctx context.Context, room *Room, envelope protocol.Envelope, excludeID string) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	if m.fanout == nil {
		room.Deliver(data, excludeID)
		return
	}
	if err := m.fanout.Publish(ctx, room.Code(), excludeID, data); err != nil {
		ilog.EventInfo(ctx, "fanout_publish_failed", "room", room.Code(), "err", err.Error())
		room.Deliver(data, excludeID)
	}
}

// Deliver hands a broadcast received from the fanout to local connections.
func (m *Manager) Deliver(roomCode, excludeID string, data []byte) {
	room, err := m.Room(roomCode)
	if err != nil {
		return
	}
	room.Deliver(data, excludeID)
}
