package chat

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/protocol"
	"watchsync/internal/session"
	"watchsync/internal/transport"
)

var ErrEmptyMessage = errors.New("message cannot be empty")

// Service polls and posts room messages through a Tracker.
type Service struct {
	sess    session.Session
	req     transport.Requester
	tracker *Tracker
	log     zerolog.Logger
}

func NewService(sess session.Session, req transport.Requester, tracker *Tracker) *Service {
	return &Service{
		sess:    sess,
		req:     req,
		tracker: tracker,
		log:     log.With().Str("module", "chat").Str("room", sess.RoomCode()).Logger(),
	}
}

func (s *Service) Tracker() *Tracker { return s.tracker }

// Fetch returns the messages after the current cursor without delivering
// them.
func (s *Service) Fetch(ctx context.Context) ([]Message, error) {
	ep := transport.Get(protocol.MessagesPath(s.sess.RoomCode(), s.tracker.Cursor()))
	var wire []protocol.ChatMessage
	if err := s.req.Request(ctx, ep, nil, &wire); err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(wire))
	for _, w := range wire {
		m, ok := FromWire(w)
		if !ok {
			s.log.Debug().Int64("id", w.ID).Msg("skipping message without id")
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Send posts body as the session user. The stored message is delivered
// right away so the next poll does not repeat it.
func (s *Service) Send(ctx context.Context, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyMessage
	}
	ep := transport.Post(protocol.SendMessagePath(s.sess.RoomCode()))
	var wire protocol.ChatMessage
	if err := s.req.Request(ctx, ep, protocol.SendMessageRequest{Message: body}, &wire); err != nil {
		return Message{}, err
	}
	m, ok := FromWire(wire)
	if !ok {
		return Message{}, transport.Malformed(ep, "message without id")
	}
	s.tracker.Advance([]Message{m})
	return m, nil
}
