package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/RanFeng/ilog"

	"watchsync/internal/protocol"
)

// HandleEvent applies one inbound push event from p. Both websocket
// handlers route every frame through here.
func (m *Manager) HandleEvent(ctx context.Context, room *Room, p *Participant, inbound protocol.InboundEnvelope) {
	switch inbound.Kind {
	case protocol.KindJoinRoom, protocol.KindLeaveRoom:
		var payload protocol.RoomPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil || !sameRoom(room, payload.RoomCode) {
			sendError(p, "invalid_room", "room code does not match connection")
			return
		}
		p.setJoined(inbound.Kind == protocol.KindJoinRoom)
		ilog.EventInfo(ctx, inbound.Kind, "room", room.Code(), "user", p.Member.ID)

	case protocol.KindChangeVideo:
		var payload protocol.ChangeVideoPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil || payload.VideoURL == "" {
			sendError(p, "invalid_request", "video_url and video_type are required")
			return
		}
		eventID, err := room.ChangeVideo(p.Member.ID, payload.VideoURL, payload.VideoType, payload.LoadID, m.now())
		if err != nil {
			sendControlError(p, err)
			return
		}
		ilog.EventInfo(ctx, "change_video", "room", room.Code(), "url", payload.VideoURL, "event_id", eventID)
		m.Broadcast(ctx, room, protocol.Envelope{
			Kind: protocol.KindVideoChanged,
			Data: protocol.VideoChangedPayload{
				VideoURL:  payload.VideoURL,
				VideoType: payload.VideoType,
				ChangedBy: p.Member.ID,
				EventID:   eventID,
			},
		}, p.Member.ID)

	case protocol.KindVideoControl:
		var payload protocol.VideoControlPayload
		if err := json.Unmarshal(inbound.Data, &payload); err != nil || payload.Action == "" {
			sendError(p, "invalid_request", "action is required")
			return
		}
		if payload.Action == protocol.ActionLoadYouTube {
			sendError(p, "invalid_request", "use change_video to load a video")
			return
		}
		req := protocol.VideoControlRequest{Action: payload.Action, Time: payload.Time}
		if err := room.ApplyControl(p.Member.ID, req, m.now()); err != nil {
			sendControlError(p, err)
			return
		}
		m.Broadcast(ctx, room, protocol.Envelope{
			Kind: protocol.KindVideoControlUpdate,
			Data: protocol.VideoControlUpdatePayload{
				Action:       payload.Action,
				Time:         payload.Time,
				ControlledBy: p.Member.ID,
			},
		}, p.Member.ID)

	default:
		sendError(p, "unknown_kind", "unsupported message type")
	}
}

func sameRoom(room *Room, code string) bool {
	return strings.EqualFold(strings.TrimSpace(code), room.Code())
}

func sendControlError(p *Participant, err error) {
	code := "control_failed"
	if errors.Is(err, ErrUnauthorizedControl) {
		code = "unauthorized"
	}
	sendError(p, code, err.Error())
}

func sendError(p *Participant, code, message string) {
	p.Send(protocol.Envelope{
		Kind: protocol.KindError,
		Data: protocol.ErrorPayload{Code: code, Message: message},
	})
}
