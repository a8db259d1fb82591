// Package client runs one watch-together session: it polls and listens
// for room state, keeps the local player aligned and lets the host drive
// playback.
package client

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"watchsync/internal/chat"
	"watchsync/internal/config"
	"watchsync/internal/control"
	"watchsync/internal/dedup"
	"watchsync/internal/media"
	"watchsync/internal/playback"
	"watchsync/internal/presence"
	"watchsync/internal/protocol"
	"watchsync/internal/reconcile"
	"watchsync/internal/session"
	"watchsync/internal/syncloop"
	"watchsync/internal/transport"
)

// PushChannel is the push side the client needs. transport.PushClient
// implements it.
type PushChannel interface {
	transport.Pusher
	On(kind string, h transport.Handler)
	OnConnect(kind string, payload interface{})
	Run(ctx context.Context)
}

// DurationProber learns the length of HLS media.
type DurationProber interface {
	Duration(ctx context.Context, url string) (float64, error)
}

// Hooks are the client's outputs to the UI. Any of them may be nil. They
// are called from the client's goroutines and must not block for long.
type Hooks struct {
	OnVideoChanged func(playback.VideoChange)
	OnMessages     func([]chat.Message)
	OnNotify       func(chat.Message)
	OnMemberCount  func(int)
	OnPresence     func(presence.Snapshot)
	OnReconcile    func(reconcile.Result)
	OnError        func(error)
}

type Options struct {
	Sync   config.Sync
	Hooks  Hooks
	Prober DurationProber
	// MediaBaseURL resolves relative local video paths for probing.
	MediaBaseURL string
}

var videoNotices = []string{"loaded a new YouTube video", "uploaded video"}

type Client struct {
	sess       session.Session
	push       PushChannel
	req        transport.Requester
	player     reconcile.Player
	cfg        config.Sync
	hooks      Hooks
	prober     DurationProber
	mediaBase  string
	ledger     *dedup.Ledger
	reconciler *reconcile.Reconciler
	emitter    *control.Emitter
	chat       *chat.Service
	presence   *presence.Tracker
	loop       *syncloop.Loop
	notify     *rate.Sometimes
	now        func() time.Time
	log        zerolog.Logger

	mu             sync.Mutex
	shadow         playback.State
	currentVideo   string
	currentEvent   dedup.Key
	confirmed      bool
	lastVideoCheck time.Time

	ctx       context.Context
	cancel    context.CancelFunc
	bg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

func New(sess session.Session, push PushChannel, req transport.Requester, player reconcile.Player, opts Options) *Client {
	c := &Client{
		sess:      sess,
		push:      push,
		req:       req,
		player:    player,
		cfg:       opts.Sync,
		hooks:     opts.Hooks,
		prober:    opts.Prober,
		mediaBase: strings.TrimRight(opts.MediaBaseURL, "/"),
		ledger:    dedup.NewLedger(opts.Sync.DedupClearInterval),
		presence:  presence.NewTracker(),
		notify:    &rate.Sometimes{Interval: opts.Sync.NotifyInterval},
		now:       time.Now,
		shadow:    playback.State{VideoType: protocol.VideoTypeNone},
		log: log.With().
			Str("module", "client").
			Str("room", sess.RoomCode()).
			Str("role", string(sess.Role())).
			Logger(),
	}
	c.reconciler = reconcile.New(sess, player, reconcile.Config{
		DriftThreshold: opts.Sync.DriftThreshold,
		SettleWindow:   opts.Sync.SettleWindow,
	})
	c.emitter = control.NewEmitter(sess, push, req,
		control.WithLocalChange(c.reconciler.Hold),
		control.WithFailureHandler(func(cmd playback.Command, err error) { c.reportError(err) }),
		control.WithRequestTimeout(opts.Sync.RequestTimeout),
	)
	c.chat = chat.NewService(sess, req, chat.NewTracker())

	tasks := []syncloop.Task{
		{Purpose: syncloop.Playback, Interval: c.cfg.PlaybackInterval, CatchUp: true, Run: c.syncPlayback},
		{Purpose: syncloop.Chat, Interval: c.cfg.ChatInterval, Run: c.pollChat},
		{Purpose: syncloop.MemberCount, Interval: c.cfg.MemberCountInterval, Run: c.pollMemberCount},
		{Purpose: syncloop.MemberList, Interval: c.cfg.MemberListInterval, Run: c.pollMembers},
	}
	if sess.IsHost() {
		tasks = append(tasks, syncloop.Task{Purpose: syncloop.Heartbeat, Interval: c.cfg.HeartbeatInterval, Run: c.heartbeat})
	}
	c.loop = syncloop.New(tasks...)

	push.OnConnect(protocol.KindJoinRoom, protocol.RoomPayload{RoomCode: sess.RoomCode()})
	push.On(protocol.KindVideoChanged, c.onVideoChanged)
	push.On(protocol.KindVideoControlUpdate, c.onVideoControlUpdate)
	return c
}

func (c *Client) Session() session.Session { return c.sess }

// Start launches the push channel, the ledger sweeper and the sync loop.
func (c *Client) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		runCtx := c.bind(ctx)
		c.goBackground(func() { c.push.Run(runCtx) })
		c.goBackground(func() { c.ledger.Run(runCtx) })
		c.loop.Start(runCtx)
		c.log.Info().Str("self", c.sess.SelfID()).Msg("session started")
	})
}

// bind derives the context that background work of this session runs
// under.
func (c *Client) bind(ctx context.Context) context.Context {
	runCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.ctx, c.cancel = runCtx, cancel
	c.mu.Unlock()
	return runCtx
}

// Run starts the client and blocks until ctx is done, then tears down.
func (c *Client) Run(ctx context.Context) error {
	c.Start(ctx)
	<-ctx.Done()
	c.Close()
	return nil
}

// Close leaves the room and stops all timers. Results of requests still
// in flight are discarded.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.push.SendEvent(protocol.KindLeaveRoom, protocol.RoomPayload{RoomCode: c.sess.RoomCode()})
		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		c.loop.Stop()
		c.emitter.Close()
		c.bg.Wait()
		c.log.Info().Msg("session closed")
	})
}

// SetVisible is called when the page or window is shown or hidden.
func (c *Client) SetVisible(visible bool) {
	c.reconciler.SetVisible(visible)
	c.loop.SetVisible(visible)
}

func (c *Client) SetChatVisible(visible bool) {
	c.chat.Tracker().SetVisible(visible)
}

func (c *Client) Play(t float64) error  { return c.emitter.Play(t) }
func (c *Client) Pause(t float64) error { return c.emitter.Pause(t) }
func (c *Client) Seek(t float64) error  { return c.emitter.Seek(t) }

// Load switches the room to a new video. The host's own view changes
// immediately, also when the URL repeats; viewers learn about it through
// video_changed.
func (c *Client) Load(videoURL, videoType string) error {
	if err := c.emitter.Load(videoURL, videoType); err != nil {
		return err
	}
	change := playback.VideoChange{
		VideoURL:  videoURL,
		VideoType: media.NormalizeVideoType(videoType),
		ChangedBy: c.sess.SelfID(),
	}
	c.mu.Lock()
	c.confirmed = false
	ctx := c.switchVideoLocked(change)
	c.mu.Unlock()

	c.announceVideo(ctx, change)
	return nil
}

func (c *Client) SendMessage(ctx context.Context, body string) (chat.Message, error) {
	m, err := c.chat.Send(ctx, body)
	if err != nil {
		return chat.Message{}, err
	}
	if c.hooks.OnMessages != nil {
		c.hooks.OnMessages([]chat.Message{m})
	}
	return m, nil
}

func (c *Client) Presence() presence.Snapshot { return c.presence.Snapshot() }
func (c *Client) Messages() []chat.Message    { return c.chat.Tracker().History() }
func (c *Client) Unread() int                 { return c.chat.Tracker().Unread() }

// Playback returns the local shadow of the authoritative state.
func (c *Client) Playback() playback.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.shadow
}

func (c *Client) goBackground(fn func()) {
	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		fn()
	}()
}

func (c *Client) reportError(err error) {
	if c.hooks.OnError != nil {
		c.hooks.OnError(err)
	}
}

func (c *Client) onVideoChanged(data json.RawMessage) {
	var p protocol.VideoChangedPayload
	if err := json.Unmarshal(data, &p); err != nil || p.VideoURL == "" {
		c.log.Warn().Err(err).Msg("malformed video_changed ignored")
		return
	}
	c.applyVideoChange(playback.VideoChange{
		VideoURL:  p.VideoURL,
		VideoType: p.VideoType,
		ChangedBy: p.ChangedBy,
		Key:       dedup.Key(p.EventID),
	})
}

func (c *Client) onVideoControlUpdate(data json.RawMessage) {
	var p protocol.VideoControlUpdatePayload
	if err := json.Unmarshal(data, &p); err != nil || p.Action == "" {
		c.log.Warn().Err(err).Msg("malformed video_control_update ignored")
		return
	}
	if c.sess.IsHost() {
		return
	}
	switch playback.Action(p.Action) {
	case playback.Play, playback.Pause, playback.Seek, playback.Heartbeat:
	default:
		c.log.Warn().Str("action", p.Action).Msg("unknown control action ignored")
		return
	}
	c.mu.Lock()
	c.shadow = c.shadow.Apply(playback.Command{
		Action: playback.Action(p.Action),
		Time:   p.Time,
		Issuer: p.ControlledBy,
	})
	state := c.shadow
	c.mu.Unlock()

	c.reconcile(state)
}

func (c *Client) reconcile(state playback.State) {
	res := c.reconciler.Reconcile(state)
	if c.hooks.OnReconcile != nil {
		c.hooks.OnReconcile(res)
	}
}

func isVideoNotice(m chat.Message) bool {
	if m.Kind != chat.System {
		return false
	}
	for _, notice := range videoNotices {
		if strings.Contains(m.Body, notice) {
			return true
		}
	}
	return false
}
