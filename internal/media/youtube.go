package media

import (
	"errors"
	"net/url"
	"path"
	"regexp"
	"strings"

	"watchsync/internal/protocol"
)

var ErrInvalidYouTubeURL = errors.New("invalid YouTube URL")

var youtubeIDPattern = regexp.MustCompile(`(?:youtube\.com/(?:[^/]+/.+/|(?:v|e(?:mbed)?)/|.*[?&]v=)|youtu\.be/)([^"&?/\s]{11})`)

// ExtractYouTubeID returns the 11 character video id of a YouTube URL.
func ExtractYouTubeID(rawURL string) (string, error) {
	m := youtubeIDPattern.FindStringSubmatch(strings.TrimSpace(rawURL))
	if m == nil {
		return "", ErrInvalidYouTubeURL
	}
	return m[1], nil
}

// NormalizeVideoType maps unknown or empty types to "none".
func NormalizeVideoType(t string) string {
	switch t {
	case protocol.VideoTypeYouTube, protocol.VideoTypeLocal:
		return t
	default:
		return protocol.VideoTypeNone
	}
}

// IsHLS reports whether rawURL points at an HLS playlist.
func IsHLS(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(path.Ext(u.Path), ".m3u8")
}
