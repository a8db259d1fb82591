package protocol

import (
	"encoding/json"
)

// Push channel event kinds.
const (
	KindJoinRoom           = "join_room"
	KindLeaveRoom          = "leave_room"
	KindChangeVideo        = "change_video"
	KindVideoControl       = "video_control"
	KindVideoChanged       = "video_changed"
	KindVideoControlUpdate = "video_control_update"
	KindError              = "error"
)

// Control actions accepted by POST /room/{R}/video-control.
const (
	ActionPlay        = "play"
	ActionPause       = "pause"
	ActionSeek        = "seek"
	ActionHeartbeat   = "heartbeat"
	ActionLoadYouTube = "load_youtube"
)

const (
	VideoTypeNone    = "none"
	VideoTypeYouTube = "youtube"
	VideoTypeLocal   = "local"
)

const (
	RoleHost   = "host"
	RoleViewer = "viewer"
)

const (
	MessageTypeUser   = "user"
	MessageTypeSystem = "system"
)

// LastSyncLayout is how the server writes VideoSync.LastSync, in UTC.
const LastSyncLayout = "2006-01-02T15:04:05.000000"

// VideoSync is the body of GET /room/{R}/video-sync. Pointer fields are
// required; a nil one means the response is malformed.
type VideoSync struct {
	VideoURL    *string  `json:"video_url"`
	VideoType   *string  `json:"video_type"`
	CurrentTime *float64 `json:"current_time"`
	IsPlaying   *bool    `json:"is_playing"`
	LastSync    *string  `json:"last_sync"`
}

type VideoControlRequest struct {
	Action string  `json:"action"`
	Time   float64 `json:"time"`
	URL    string  `json:"url,omitempty"`
	// LoadID ties the HTTP half of a load to its change_video event.
	LoadID string `json:"load_id,omitempty"`
}

type SuccessResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type ChatMessage struct {
	ID       int64  `json:"id"`
	UserName string `json:"user_name"`
	Message  string `json:"message"`
	Time     string `json:"time"`
	Type     string `json:"type"`
}

type SendMessageRequest struct {
	Message string `json:"message"`
}

type MemberCountResponse struct {
	Success bool   `json:"success"`
	Count   *int   `json:"count"`
	Error   string `json:"error,omitempty"`
}

type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	JoinedAt    string `json:"joined_at"`
}

type MembersResponse struct {
	Success bool     `json:"success"`
	Members []Member `json:"members"`
	Error   string   `json:"error,omitempty"`
}

type JoinRequest struct {
	DisplayName string `json:"display_name"`
}

type JoinResponse struct {
	RoomCode string `json:"room_code"`
	UserID   string `json:"user_id"`
	Token    string `json:"token"`
	Role     string `json:"role"`
}

type RoomPayload struct {
	RoomCode string `json:"room_code"`
}

// ChangeVideoPayload announces a load. Every load carries a fresh LoadID;
// the server records one change per id, so reloading the same URL is a
// new change while the push and HTTP copies of one load are not.
type ChangeVideoPayload struct {
	RoomCode  string `json:"room_code"`
	VideoURL  string `json:"video_url"`
	VideoType string `json:"video_type"`
	UserID    string `json:"user_id"`
	LoadID    string `json:"load_id,omitempty"`
}

type VideoControlPayload struct {
	RoomCode string  `json:"room_code"`
	Action   string  `json:"action"`
	Time     float64 `json:"time"`
	UserID   string  `json:"user_id"`
}

// VideoChangedPayload is broadcast to everyone but the sender. EventID is
// the content-log entry recorded for the change.
type VideoChangedPayload struct {
	VideoURL  string `json:"video_url"`
	VideoType string `json:"video_type"`
	ChangedBy string `json:"changed_by"`
	EventID   int64  `json:"event_id,omitempty"`
}

type VideoControlUpdatePayload struct {
	Action       string  `json:"action"`
	Time         float64 `json:"time"`
	ControlledBy string  `json:"controlled_by"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type Envelope struct {
	Kind string      `json:"kind"`
	Data interface{} `json:"data"`
}

type InboundEnvelope struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}
