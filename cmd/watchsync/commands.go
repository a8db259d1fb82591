package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"watchsync/internal/chat"
	"watchsync/internal/presence"
	"watchsync/internal/protocol"
)

var errUnknownCommand = errors.New("unknown command")

// controller is the part of client.Client the terminal drives.
type controller interface {
	Play(t float64) error
	Pause(t float64) error
	Seek(t float64) error
	Load(videoURL, videoType string) error
	SendMessage(ctx context.Context, body string) (chat.Message, error)
	SetVisible(visible bool)
	SetChatVisible(visible bool)
	Presence() presence.Snapshot
}

type positioner interface {
	position() float64
}

// execute runs one terminal line against the session. It returns a line
// to print, which may be empty.
func execute(ctx context.Context, c controller, pos positioner, line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", nil
	}
	cmd, args := strings.ToLower(fields[0]), fields[1:]
	switch cmd {
	case "play":
		t, err := timeArg(args, pos)
		if err != nil {
			return "", err
		}
		return "", c.Play(t)
	case "pause":
		t, err := timeArg(args, pos)
		if err != nil {
			return "", err
		}
		return "", c.Pause(t)
	case "seek":
		if len(args) == 0 {
			return "", errors.New("seek needs a time in seconds")
		}
		t, err := timeArg(args, pos)
		if err != nil {
			return "", err
		}
		return "", c.Seek(t)
	case "load":
		if len(args) == 0 {
			return "", errors.New("load needs a video url")
		}
		videoType := protocol.VideoTypeYouTube
		if len(args) > 1 {
			videoType = args[1]
		}
		return "", c.Load(args[0], videoType)
	case "say":
		m, err := c.SendMessage(ctx, strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0])))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("sent #%d", m.ID), nil
	case "who":
		snap := c.Presence()
		names := make([]string, 0, len(snap.Members))
		for _, m := range snap.Members {
			names = append(names, fmt.Sprintf("%s (%s)", m.DisplayName, m.Role))
		}
		return fmt.Sprintf("%d in room: %s", snap.MemberCount, strings.Join(names, ", ")), nil
	case "hide", "show":
		c.SetVisible(cmd == "show")
		return "", nil
	case "chat":
		c.SetChatVisible(len(args) == 0 || args[0] != "off")
		return "", nil
	}
	return "", fmt.Errorf("%w: %s", errUnknownCommand, cmd)
}

func timeArg(args []string, pos positioner) (float64, error) {
	if len(args) == 0 {
		return pos.position(), nil
	}
	t, err := strconv.ParseFloat(args[0], 64)
	if err != nil || t < 0 {
		return 0, fmt.Errorf("invalid time %q", args[0])
	}
	return t, nil
}
