package protocol

import (
	"net/url"
	"strconv"
)

func CreateRoomPath() string { return "/room/create" }

func JoinRoomPath(room string) string { return roomPath(room, "join") }

func VideoSyncPath(room string) string { return roomPath(room, "video-sync") }

func VideoControlPath(room string) string { return roomPath(room, "video-control") }

func MessagesPath(room string, afterID int64) string {
	return roomPath(room, "messages") + "?after_id=" + strconv.FormatInt(afterID, 10)
}

func SendMessagePath(room string) string { return roomPath(room, "send-message") }

func MemberCountPath(room string) string { return roomPath(room, "member-count") }

func MembersPath(room string) string { return roomPath(room, "members") }

// PushPath is the WebSocket endpoint for a room.
func PushPath(room, token string) string {
	return "/ws/rooms/" + url.PathEscape(room) + "?token=" + url.QueryEscape(token)
}

func roomPath(room, leaf string) string {
	return "/room/" + url.PathEscape(room) + "/" + leaf
}

func LeaveRoomPath(room string) string { return roomPath(room, "leave") }
