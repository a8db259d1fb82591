// Package control sends the host's playback commands to the room.
package control

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"watchsync/internal/media"
	"watchsync/internal/playback"
	"watchsync/internal/protocol"
	"watchsync/internal/session"
	"watchsync/internal/transport"
)

var (
	ErrUnauthorizedControl = errors.New("only host can control playback")
	ErrUnknownAction       = errors.New("unknown control action")
	ErrEmptyVideoURL       = errors.New("video url is required")
	ErrEmitterClosed       = errors.New("emitter closed")
)

type Option func(*Emitter)

// WithLocalChange registers a callback run when the host issues play,
// pause or seek, before anything is sent.
func WithLocalChange(fn func()) Option {
	return func(e *Emitter) { e.onLocal = fn }
}

// WithFailureHandler receives dispatch failures of commands the user
// issued (not heartbeats).
func WithFailureHandler(fn func(playback.Command, error)) Option {
	return func(e *Emitter) { e.onFailure = fn }
}

func WithRequestTimeout(d time.Duration) Option {
	return func(e *Emitter) { e.timeout = d }
}

type Emitter struct {
	sess      session.Session
	push      transport.Pusher
	req       transport.Requester
	timeout   time.Duration
	onLocal   func()
	onFailure func(playback.Command, error)
	log       zerolog.Logger

	mu      sync.Mutex
	closed  bool
	pending sync.WaitGroup
}

func NewEmitter(sess session.Session, push transport.Pusher, req transport.Requester, opts ...Option) *Emitter {
	e := &Emitter{
		sess:    sess,
		push:    push,
		req:     req,
		timeout: 10 * time.Second,
		log: log.With().
			Str("module", "control").
			Str("room", sess.RoomCode()).
			Logger(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Emitter) Play(t float64) error  { return e.Emit(playback.Command{Action: playback.Play, Time: t}) }
func (e *Emitter) Pause(t float64) error { return e.Emit(playback.Command{Action: playback.Pause, Time: t}) }
func (e *Emitter) Seek(t float64) error  { return e.Emit(playback.Command{Action: playback.Seek, Time: t}) }

func (e *Emitter) Load(videoURL, videoType string) error {
	return e.Emit(playback.Command{Action: playback.Load, VideoURL: videoURL, VideoType: videoType})
}

// Heartbeat anchors viewers to the host's position. It only emits while
// playing past zero and reports whether it did.
func (e *Emitter) Heartbeat(t float64, playing bool) bool {
	if !playing || t <= 0 {
		return false
	}
	return e.Emit(playback.Command{Action: playback.Heartbeat, Time: t}) == nil
}

// Emit dispatches cmd over the push channel and HTTP at the same time and
// returns without waiting for either.
func (e *Emitter) Emit(cmd playback.Command) error {
	if !e.sess.IsHost() {
		e.log.Warn().Str("action", string(cmd.Action)).Msg("control ignored, not host")
		return ErrUnauthorizedControl
	}
	cmd.Issuer = e.sess.SelfID()

	var (
		kind    string
		event   interface{}
		request *protocol.VideoControlRequest
	)
	switch cmd.Action {
	case playback.Play, playback.Pause, playback.Seek, playback.Heartbeat:
		kind = protocol.KindVideoControl
		event = protocol.VideoControlPayload{
			RoomCode: e.sess.RoomCode(),
			Action:   string(cmd.Action),
			Time:     cmd.Time,
			UserID:   cmd.Issuer,
		}
		request = &protocol.VideoControlRequest{Action: string(cmd.Action), Time: cmd.Time}
	case playback.Load:
		if cmd.VideoURL == "" {
			return ErrEmptyVideoURL
		}
		cmd.VideoType = media.NormalizeVideoType(cmd.VideoType)
		if cmd.VideoType == protocol.VideoTypeYouTube {
			if _, err := media.ExtractYouTubeID(cmd.VideoURL); err != nil {
				return err
			}
		}
		loadID := uuid.NewString()
		kind = protocol.KindChangeVideo
		event = protocol.ChangeVideoPayload{
			RoomCode:  e.sess.RoomCode(),
			VideoURL:  cmd.VideoURL,
			VideoType: cmd.VideoType,
			UserID:    cmd.Issuer,
			LoadID:    loadID,
		}
		if cmd.VideoType == protocol.VideoTypeYouTube {
			request = &protocol.VideoControlRequest{Action: protocol.ActionLoadYouTube, URL: cmd.VideoURL, LoadID: loadID}
		}
	default:
		return ErrUnknownAction
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEmitterClosed
	}
	e.pending.Add(1)
	e.mu.Unlock()

	if e.onLocal != nil && cmd.Action != playback.Heartbeat && cmd.Action != playback.Load {
		e.onLocal()
	}

	go func() {
		defer e.pending.Done()
		e.dispatch(cmd, kind, event, request)
	}()
	return nil
}

func (e *Emitter) dispatch(cmd playback.Command, kind string, event interface{}, request *protocol.VideoControlRequest) {
	var wg conc.WaitGroup
	wg.Go(func() {
		e.push.SendEvent(kind, event)
	})
	if request != nil {
		wg.Go(func() {
			ctx, cancel := context.WithTimeout(context.Background(), e.timeout)
			defer cancel()
			var resp protocol.SuccessResponse
			err := e.req.Request(ctx, transport.Post(protocol.VideoControlPath(e.sess.RoomCode())), request, &resp)
			if err == nil && !resp.Success {
				err = transport.Malformed(transport.Post(protocol.VideoControlPath(e.sess.RoomCode())), "success=false")
			}
			if err != nil {
				e.log.Warn().Err(err).Str("action", string(cmd.Action)).Msg("video control request failed")
				if e.onFailure != nil && cmd.Action != playback.Heartbeat {
					e.onFailure(cmd, err)
				}
			}
		})
	}
	if r := wg.WaitAndRecover(); r != nil {
		e.log.Error().Err(r.AsError()).Str("action", string(cmd.Action)).Msg("control dispatch panicked")
	}
	e.log.Debug().Str("action", string(cmd.Action)).Float64("time", cmd.Time).Msg("control dispatched")
}

// Wait blocks until every dispatched command has finished.
func (e *Emitter) Wait() {
	e.pending.Wait()
}

// Close refuses further commands and waits for the dispatched ones.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.pending.Wait()
}
