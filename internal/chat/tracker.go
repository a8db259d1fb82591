// Package chat tracks which room messages were delivered and how many are
// unread.
package chat

import (
	"sort"
	"sync"

	"watchsync/internal/protocol"
)

type Kind string

const (
	User   Kind = protocol.MessageTypeUser
	System Kind = protocol.MessageTypeSystem
)

type Message struct {
	ID         int64
	Kind       Kind
	SenderName string
	Body       string
	Timestamp  string
}

// FromWire converts a message from the messages endpoint. ok is false for
// entries without a usable id.
func FromWire(m protocol.ChatMessage) (Message, bool) {
	if m.ID <= 0 {
		return Message{}, false
	}
	kind := User
	if m.Type == protocol.MessageTypeSystem {
		kind = System
	}
	return Message{
		ID:         m.ID,
		Kind:       kind,
		SenderName: m.UserName,
		Body:       m.Message,
		Timestamp:  m.Time,
	}, true
}

// DefaultWindow is how far below the cursor late ids are still accepted.
const DefaultWindow = 1000

// Tracker keeps the delivery cursor. An id is delivered at most once; the
// cursor is the highest delivered id and never moves back.
type Tracker struct {
	mu        sync.Mutex
	cursor    int64
	window    int64
	delivered map[int64]struct{}
	history   []Message
	unread    int
	visible   bool
}

func NewTracker() *Tracker {
	return &Tracker{
		window:    DefaultWindow,
		delivered: make(map[int64]struct{}),
		visible:   true,
	}
}

// Advance delivers the messages not seen before, in id order, and returns
// them.
func (t *Tracker) Advance(msgs []Message) []Message {
	if len(msgs) == 0 {
		return nil
	}
	batch := make([]Message, len(msgs))
	copy(batch, msgs)
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].ID < batch[j].ID })

	t.mu.Lock()
	defer t.mu.Unlock()

	var fresh []Message
	for _, m := range batch {
		if m.ID <= t.cursor-t.window {
			continue
		}
		if _, ok := t.delivered[m.ID]; ok {
			continue
		}
		t.delivered[m.ID] = struct{}{}
		t.history = append(t.history, m)
		fresh = append(fresh, m)
		if m.ID > t.cursor {
			t.cursor = m.ID
		}
	}
	if !t.visible {
		t.unread += len(fresh)
	}
	t.prune()
	return fresh
}

func (t *Tracker) prune() {
	floor := t.cursor - t.window
	if floor <= 0 || len(t.delivered) <= int(t.window) {
		return
	}
	for id := range t.delivered {
		if id <= floor {
			delete(t.delivered, id)
		}
	}
}

func (t *Tracker) Cursor() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *Tracker) Unread() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.unread
}

// SetVisible records whether the chat surface is shown. Becoming visible
// clears the unread count in one step.
func (t *Tracker) SetVisible(visible bool) {
	t.mu.Lock()
	t.visible = visible
	if visible {
		t.unread = 0
	}
	t.mu.Unlock()
}

func (t *Tracker) History() []Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Message, len(t.history))
	copy(out, t.history)
	return out
}
