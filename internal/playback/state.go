// Package playback holds the shared playback data model: the authoritative
// state, control commands and video change events.
package playback

import (
	"errors"
	"time"

	"watchsync/internal/dedup"
	"watchsync/internal/media"
	"watchsync/internal/protocol"
)

var ErrMissingField = errors.New("missing required field")

// State is the server-owned playback state. Viewers keep a shadow copy.
type State struct {
	VideoURL    string
	VideoType   string
	CurrentTime float64
	IsPlaying   bool
	LastUpdated time.Time
}

// FromVideoSync converts a video-sync response. current_time and
// is_playing are required.
func FromVideoSync(v protocol.VideoSync) (State, error) {
	if v.CurrentTime == nil {
		return State{}, fieldError("current_time")
	}
	if v.IsPlaying == nil {
		return State{}, fieldError("is_playing")
	}
	s := State{
		CurrentTime: *v.CurrentTime,
		IsPlaying:   *v.IsPlaying,
		VideoType:   protocol.VideoTypeNone,
	}
	if s.CurrentTime < 0 {
		s.CurrentTime = 0
	}
	if v.VideoURL != nil {
		s.VideoURL = *v.VideoURL
	}
	if v.VideoType != nil {
		s.VideoType = media.NormalizeVideoType(*v.VideoType)
	}
	if v.LastSync != nil {
		s.LastUpdated = parseLastSync(*v.LastSync)
	}
	return s, nil
}

// parseLastSync reads the server's zoneless UTC layout and falls back to
// RFC 3339. An unreadable value leaves the time zero.
func parseLastSync(v string) time.Time {
	if t, err := time.ParseInLocation(protocol.LastSyncLayout, v, time.UTC); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
		return t
	}
	return time.Time{}
}

type fieldErr struct{ field string }

func (e fieldErr) Error() string { return ErrMissingField.Error() + ": " + e.field }
func (e fieldErr) Unwrap() error { return ErrMissingField }

func fieldError(name string) error { return fieldErr{field: name} }

type Action string

const (
	Play      Action = protocol.ActionPlay
	Pause     Action = protocol.ActionPause
	Seek      Action = protocol.ActionSeek
	Heartbeat Action = protocol.ActionHeartbeat
	Load      Action = "load"
)

// Command is an ephemeral control command issued by the host.
type Command struct {
	Action    Action
	Time      float64
	Issuer    string
	VideoURL  string
	VideoType string
}

// Apply returns the state a viewer should converge to after cmd, given its
// current shadow. An unknown action leaves the state untouched.
func (s State) Apply(cmd Command) State {
	next := s
	switch cmd.Action {
	case Play, Heartbeat:
		next.CurrentTime = cmd.Time
		next.IsPlaying = true
	case Pause:
		next.CurrentTime = cmd.Time
		next.IsPlaying = false
	case Seek:
		next.CurrentTime = cmd.Time
	case Load:
		next.VideoURL = cmd.VideoURL
		next.VideoType = cmd.VideoType
		next.CurrentTime = 0
		next.IsPlaying = false
	}
	return next
}

// VideoChange is applied at most once per session. Key is zero when the
// change was discovered by comparing state rather than from a log entry.
type VideoChange struct {
	VideoURL  string
	VideoType string
	ChangedBy string
	Key       dedup.Key
	// Duration is filled in for local HLS media when it could be probed.
	Duration float64
}
