// Package presence keeps the latest member count and member list.
package presence

import (
	"context"
	"sync"

	"watchsync/internal/protocol"
	"watchsync/internal/session"
	"watchsync/internal/transport"
)

type Member struct {
	DisplayName string
	Role        session.Role
}

type Snapshot struct {
	MemberCount int
	Members     []Member
}

type Tracker struct {
	mu    sync.RWMutex
	count int
	known bool
	list  []Member
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// SetCount stores n and reports whether it differs from the last value.
func (t *Tracker) SetCount(n int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := !t.known || t.count != n
	t.count = n
	t.known = true
	return changed
}

// Replace swaps in a new member list. The list order is kept.
func (t *Tracker) Replace(members []Member) {
	list := make([]Member, len(members))
	copy(list, members)
	t.mu.Lock()
	t.list = list
	t.mu.Unlock()
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	members := make([]Member, len(t.list))
	copy(members, t.list)
	return Snapshot{MemberCount: t.count, Members: members}
}

// FetchCount asks the room for its member count.
func FetchCount(ctx context.Context, req transport.Requester, room string) (int, error) {
	ep := transport.Get(protocol.MemberCountPath(room))
	var resp protocol.MemberCountResponse
	if err := req.Request(ctx, ep, nil, &resp); err != nil {
		return 0, err
	}
	if !resp.Success || resp.Count == nil {
		return 0, transport.Malformed(ep, "missing count")
	}
	return *resp.Count, nil
}

// FetchMembers asks the room for its member list.
func FetchMembers(ctx context.Context, req transport.Requester, room string) ([]Member, error) {
	ep := transport.Get(protocol.MembersPath(room))
	var resp protocol.MembersResponse
	if err := req.Request(ctx, ep, nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, transport.Malformed(ep, "success=false")
	}
	members := make([]Member, 0, len(resp.Members))
	for _, m := range resp.Members {
		role := session.Viewer
		if m.Role == protocol.RoleHost {
			role = session.Host
		}
		members = append(members, Member{DisplayName: m.DisplayName, Role: role})
	}
	return members, nil
}
