package client

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchsync/internal/chat"
	"watchsync/internal/config"
	"watchsync/internal/control"
	"watchsync/internal/playback"
	"watchsync/internal/presence"
	"watchsync/internal/protocol"
	"watchsync/internal/reconcile"
	"watchsync/internal/session"
	"watchsync/internal/syncloop"
	"watchsync/internal/transport"
)

type sentEvent struct {
	kind    string
	payload interface{}
}

type fakePush struct {
	mu        sync.Mutex
	handlers  map[string]transport.Handler
	onConnect []sentEvent
	sent      []sentEvent
}

func newFakePush() *fakePush {
	return &fakePush{handlers: make(map[string]transport.Handler)}
}

func (p *fakePush) SendEvent(kind string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, sentEvent{kind, payload})
}

func (p *fakePush) On(kind string, h transport.Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[kind] = h
}

func (p *fakePush) OnConnect(kind string, payload interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onConnect = append(p.onConnect, sentEvent{kind, payload})
}

func (p *fakePush) Run(ctx context.Context) { <-ctx.Done() }

// deliver simulates an inbound event from the server.
func (p *fakePush) deliver(t *testing.T, kind string, payload interface{}) {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	p.mu.Lock()
	h := p.handlers[kind]
	p.mu.Unlock()
	require.NotNil(t, h, kind)
	h(data)
}

func (p *fakePush) kinds() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, e := range p.sent {
		out = append(out, e.kind)
	}
	return out
}

// fakeRequester answers by path suffix with a JSON round trip of the
// configured response.
type fakeRequester struct {
	mu        sync.Mutex
	responses map[string]interface{}
	calls     []string
}

func newFakeRequester() *fakeRequester {
	return &fakeRequester{responses: map[string]interface{}{
		"/video-control": map[string]interface{}{"success": true},
	}}
}

func (r *fakeRequester) set(suffix string, resp interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.responses[suffix] = resp
}

func (r *fakeRequester) Request(ctx context.Context, ep transport.Endpoint, payload, out interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path := ep.Path
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	r.mu.Lock()
	r.calls = append(r.calls, ep.Method+" "+path)
	var resp interface{}
	found := false
	for suffix, v := range r.responses {
		if strings.HasSuffix(path, suffix) {
			resp, found = v, true
			break
		}
	}
	r.mu.Unlock()
	if !found {
		return &transport.Error{Endpoint: ep, Status: 404, Message: "not found"}
	}
	if out == nil {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (r *fakeRequester) called(call string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		if c == call {
			n++
		}
	}
	return n
}

type fakePlayer struct {
	mu    sync.Mutex
	obs   reconcile.Observation
	calls []string
}

func (p *fakePlayer) Observe() reconcile.Observation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.obs
}

func (p *fakePlayer) Seek(t float64) { p.record(fmt.Sprintf("seek(%.1f)", t)) }
func (p *fakePlayer) Play()          { p.record("play()") }
func (p *fakePlayer) Pause()         { p.record("pause()") }

func (p *fakePlayer) record(call string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *fakePlayer) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

type recorder struct {
	mu       sync.Mutex
	changes  []playback.VideoChange
	messages []chat.Message
	notified []chat.Message
	counts   []int
	presence []presence.Snapshot
	results  []reconcile.Result
	errs     []error
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		OnVideoChanged: func(c playback.VideoChange) { r.lock(func() { r.changes = append(r.changes, c) }) },
		OnMessages:     func(m []chat.Message) { r.lock(func() { r.messages = append(r.messages, m...) }) },
		OnNotify:       func(m chat.Message) { r.lock(func() { r.notified = append(r.notified, m) }) },
		OnMemberCount:  func(n int) { r.lock(func() { r.counts = append(r.counts, n) }) },
		OnPresence:     func(s presence.Snapshot) { r.lock(func() { r.presence = append(r.presence, s) }) },
		OnReconcile:    func(res reconcile.Result) { r.lock(func() { r.results = append(r.results, res) }) },
		OnError:        func(err error) { r.lock(func() { r.errs = append(r.errs, err) }) },
	}
}

func (r *recorder) lock(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn()
}

func (r *recorder) videoChanges() []playback.VideoChange {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]playback.VideoChange(nil), r.changes...)
}

type stubProber struct {
	mu  sync.Mutex
	got []string
	d   float64
}

func (p *stubProber) Duration(ctx context.Context, url string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.got = append(p.got, url)
	return p.d, nil
}

type harness struct {
	c      *Client
	push   *fakePush
	req    *fakeRequester
	player *fakePlayer
	rec    *recorder
}

func testSync() config.Sync {
	cfg := config.Default().Sync
	for _, d := range []*time.Duration{
		&cfg.PlaybackInterval, &cfg.ChatInterval, &cfg.MemberCountInterval,
		&cfg.MemberListInterval, &cfg.HeartbeatInterval,
	} {
		*d = time.Hour
	}
	cfg.VideoCheckDelay = 10 * time.Millisecond
	return cfg
}

func newHarness(t *testing.T, role session.Role, opts ...func(*Options)) *harness {
	t.Helper()
	sess, err := session.New("room01", role, string(role)+"-1", "tok")
	require.NoError(t, err)

	h := &harness{
		push:   newFakePush(),
		req:    newFakeRequester(),
		player: &fakePlayer{obs: reconcile.Observation{State: reconcile.Paused, Duration: 300, Ready: true}},
		rec:    &recorder{},
	}
	o := Options{Sync: testSync(), Hooks: h.rec.hooks()}
	for _, fn := range opts {
		fn(&o)
	}
	h.c = New(sess, h.push, h.req, h.player, o)
	h.c.bind(context.Background())
	t.Cleanup(h.c.Close)
	return h
}

func always() bool { return true }

func syncBody(url, videoType string, at float64, playing bool) map[string]interface{} {
	return map[string]interface{}{
		"video_url":    url,
		"video_type":   videoType,
		"current_time": at,
		"is_playing":   playing,
		"last_sync":    "2026-10-15T10:00:00",
	}
}

func systemMessage(id int64, body string) protocol.ChatMessage {
	return protocol.ChatMessage{ID: id, UserName: "System", Message: body, Time: "10:00", Type: protocol.MessageTypeSystem}
}

func userMessage(id int64, name, body string) protocol.ChatMessage {
	return protocol.ChatMessage{ID: id, UserName: name, Message: body, Time: "10:00", Type: protocol.MessageTypeUser}
}

const (
	videoA = "https://www.youtube.com/watch?v=dQw4w9WgXcQ"
	videoB = "https://youtu.be/9bZkp7q19f0"
)

func TestNewRegistersRoomJoinOnConnect(t *testing.T) {
	h := newHarness(t, session.Viewer)

	assert.Equal(t, []sentEvent{{protocol.KindJoinRoom, protocol.RoomPayload{RoomCode: "ROOM01"}}}, h.push.onConnect)
}

func TestVideoChangeAppliedOncePerEvent(t *testing.T) {
	h := newHarness(t, session.Viewer)
	ctx := context.Background()

	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{
		VideoURL: videoB, VideoType: "youtube", ChangedBy: "host-1", EventID: 42,
	})
	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{
		VideoURL: videoB, VideoType: "youtube", ChangedBy: "host-1", EventID: 42,
	})

	h.req.set("/messages", []protocol.ChatMessage{systemMessage(42, "Ann loaded a new YouTube video")})
	require.NoError(t, h.c.pollChat(ctx, always))
	h.req.set("/video-sync", syncBody(videoB, "youtube", 0, false))
	require.NoError(t, h.c.syncPlayback(ctx, always))
	time.Sleep(30 * time.Millisecond)

	changes := h.rec.videoChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, videoB, changes[0].VideoURL)
	assert.Equal(t, "host-1", changes[0].ChangedBy)
	assert.Equal(t, 1, h.req.called("GET /room/ROOM01/video-sync"), "the chat notice for an applied event triggers no extra check")
}

func TestMissedPushRecoveredFromChatNotice(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/video-sync", syncBody("/uploads/movie.mp4", "local", 0, false))
	h.req.set("/messages", []protocol.ChatMessage{systemMessage(43, "Ann uploaded video movie.mp4")})

	require.NoError(t, h.c.pollChat(context.Background(), always))

	require.Eventually(t, func() bool { return len(h.rec.videoChanges()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, protocol.VideoTypeLocal, h.rec.videoChanges()[0].VideoType)

	require.NoError(t, h.c.pollChat(context.Background(), always))
	require.NoError(t, h.c.syncPlayback(context.Background(), always))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.rec.videoChanges(), 1)
}

func TestCooldownIgnoresStalePoll(t *testing.T) {
	h := newHarness(t, session.Viewer)
	now := time.Unix(1_700_000_000, 0)
	h.c.now = func() time.Time { return now }

	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{VideoURL: videoB, VideoType: "youtube", EventID: 7})
	h.req.set("/video-sync", syncBody(videoA, "youtube", 3, true))

	now = now.Add(time.Second)
	require.NoError(t, h.c.syncPlayback(context.Background(), always))
	assert.Len(t, h.rec.videoChanges(), 1, "a poll still carrying the old video is ignored")

	now = now.Add(5 * time.Second)
	require.NoError(t, h.c.syncPlayback(context.Background(), always))
	changes := h.rec.videoChanges()
	require.Len(t, changes, 2)
	assert.Equal(t, videoA, changes[1].VideoURL)
}

func TestPollDetectsVideoChangeWithoutPush(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/video-sync", syncBody(videoA, "youtube", 12, true))

	require.NoError(t, h.c.syncPlayback(context.Background(), always))
	require.NoError(t, h.c.syncPlayback(context.Background(), always))

	assert.Len(t, h.rec.videoChanges(), 1)
	state := h.c.Playback()
	assert.Equal(t, videoA, state.VideoURL)
	assert.Equal(t, 12.0, state.CurrentTime)
	assert.True(t, state.IsPlaying)
}

func TestViewerFollowsControlUpdates(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.player.obs = reconcile.Observation{Time: 10, State: reconcile.Paused, Duration: 300, Ready: true}

	h.push.deliver(t, protocol.KindVideoControlUpdate, protocol.VideoControlUpdatePayload{
		Action: "play", Time: 30, ControlledBy: "host-1",
	})

	assert.Equal(t, []string{"seek(30.0)", "play()"}, h.player.Calls())
	require.Len(t, h.rec.results, 1)
	assert.InDelta(t, 20.0, h.rec.results[0].Drift, 1e-9)
	assert.True(t, h.c.Playback().IsPlaying)
}

func TestStaleSyncResultIsDropped(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/video-sync", syncBody(videoA, "youtube", 50, true))

	require.NoError(t, h.c.syncPlayback(context.Background(), func() bool { return false }))

	assert.Empty(t, h.rec.videoChanges())
	assert.Empty(t, h.player.Calls())
	assert.Empty(t, h.c.Playback().VideoURL)
}

func TestMalformedSyncIsNoOp(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/video-sync", map[string]interface{}{"video_url": videoA, "video_type": "youtube"})

	err := h.c.syncPlayback(context.Background(), always)

	assert.True(t, transport.IsMalformed(err))
	assert.Empty(t, h.rec.videoChanges())
	assert.Empty(t, h.player.Calls())
}

func TestHostIgnoresControlUpdatesAndNeverReconciles(t *testing.T) {
	h := newHarness(t, session.Host)
	h.req.set("/video-sync", syncBody(videoA, "youtube", 90, true))
	h.c.currentVideo = videoA

	h.push.deliver(t, protocol.KindVideoControlUpdate, protocol.VideoControlUpdatePayload{Action: "seek", Time: 200})
	require.NoError(t, h.c.syncPlayback(context.Background(), always))

	assert.Empty(t, h.player.Calls())
	assert.Empty(t, h.rec.results)
}

func TestViewerCannotControl(t *testing.T) {
	h := newHarness(t, session.Viewer)

	assert.ErrorIs(t, h.c.Play(1), control.ErrUnauthorizedControl)
	assert.ErrorIs(t, h.c.Seek(2), control.ErrUnauthorizedControl)
	assert.ErrorIs(t, h.c.Load(videoA, "youtube"), control.ErrUnauthorizedControl)
	assert.Empty(t, h.push.kinds())
	assert.Empty(t, h.rec.videoChanges())
}

func TestHostLoadAppliesLocallyOnce(t *testing.T) {
	h := newHarness(t, session.Host)

	require.NoError(t, h.c.Load(videoB, "youtube"))
	h.c.emitter.Wait()

	assert.Contains(t, h.push.kinds(), protocol.KindChangeVideo)
	assert.Equal(t, 1, h.req.called("POST /room/ROOM01/video-control"))
	changes := h.rec.videoChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, "host-1", changes[0].ChangedBy)

	h.req.set("/messages", []protocol.ChatMessage{systemMessage(9, "host loaded a new YouTube video")})
	h.req.set("/video-sync", syncBody(videoB, "youtube", 0, false))
	require.NoError(t, h.c.pollChat(context.Background(), always))
	time.Sleep(30 * time.Millisecond)
	assert.Len(t, h.rec.videoChanges(), 1)
}

func TestHostHeartbeat(t *testing.T) {
	h := newHarness(t, session.Host)

	h.player.obs = reconcile.Observation{Time: 0, State: reconcile.Playing, Ready: true}
	require.NoError(t, h.c.heartbeat(context.Background(), always))
	h.player.obs = reconcile.Observation{Time: 61, State: reconcile.Paused, Ready: true}
	require.NoError(t, h.c.heartbeat(context.Background(), always))
	h.c.emitter.Wait()
	assert.Empty(t, h.push.kinds())

	h.player.obs = reconcile.Observation{Time: 61, State: reconcile.Playing, Ready: true}
	require.NoError(t, h.c.heartbeat(context.Background(), always))
	h.c.emitter.Wait()
	assert.Equal(t, []string{protocol.KindVideoControl}, h.push.kinds())
}

func TestChatNotificationThrottled(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.c.SetChatVisible(false)
	ctx := context.Background()

	h.req.set("/messages", []protocol.ChatMessage{userMessage(1, "Ann", "hi")})
	require.NoError(t, h.c.pollChat(ctx, always))
	h.req.set("/messages", []protocol.ChatMessage{userMessage(2, "Bo", "hello")})
	require.NoError(t, h.c.pollChat(ctx, always))

	assert.Equal(t, 2, h.c.Unread())
	require.Len(t, h.rec.notified, 1)
	assert.Equal(t, "hi", h.rec.notified[0].Body)

	h.c.SetChatVisible(true)
	assert.Zero(t, h.c.Unread())
	assert.Len(t, h.rec.messages, 2)
}

func TestChatNotificationSkipsSystemAndVisible(t *testing.T) {
	h := newHarness(t, session.Viewer)
	ctx := context.Background()

	h.req.set("/messages", []protocol.ChatMessage{userMessage(1, "Ann", "hi")})
	require.NoError(t, h.c.pollChat(ctx, always))

	h.c.SetChatVisible(false)
	h.req.set("/messages", []protocol.ChatMessage{userMessage(2, "Ann", "brb"), systemMessage(3, "Bo joined the room")})
	require.NoError(t, h.c.pollChat(ctx, always))

	assert.Empty(t, h.rec.notified)
	assert.Equal(t, 2, h.c.Unread())
}

func TestMemberCountReportsChanges(t *testing.T) {
	h := newHarness(t, session.Viewer)
	ctx := context.Background()

	for _, n := range []int{3, 3, 4} {
		h.req.set("/member-count", map[string]interface{}{"success": true, "count": n})
		require.NoError(t, h.c.pollMemberCount(ctx, always))
	}

	assert.Equal(t, []int{3, 4}, h.rec.counts)
	assert.Equal(t, 4, h.c.Presence().MemberCount)
}

func TestMemberListReplaced(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/members", map[string]interface{}{"success": true, "members": []protocol.Member{
		{ID: "u1", DisplayName: "Ann", Role: "host"},
		{ID: "u2", DisplayName: "Bo", Role: "member"},
	}})

	require.NoError(t, h.c.pollMembers(context.Background(), always))

	require.Len(t, h.rec.presence, 1)
	assert.Equal(t, []presence.Member{
		{DisplayName: "Ann", Role: session.Host},
		{DisplayName: "Bo", Role: session.Viewer},
	}, h.c.Presence().Members)
}

func TestLocalHLSDurationProbed(t *testing.T) {
	prober := &stubProber{d: 5400}
	h := newHarness(t, session.Viewer, func(o *Options) {
		o.Prober = prober
		o.MediaBaseURL = "http://media.local/"
	})

	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{
		VideoURL: "/hls/movie/index.m3u8", VideoType: "local", EventID: 5,
	})

	require.Eventually(t, func() bool { return len(h.rec.videoChanges()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 5400.0, h.rec.videoChanges()[0].Duration)
	assert.Equal(t, []string{"http://media.local/hls/movie/index.m3u8"}, prober.got)
}

func TestSendMessageDeliversOnce(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/send-message", userMessage(11, "viewer", "hello"))

	m, err := h.c.SendMessage(context.Background(), "  hello ")
	require.NoError(t, err)
	assert.Equal(t, int64(11), m.ID)

	h.req.set("/messages", []protocol.ChatMessage{userMessage(11, "viewer", "hello")})
	require.NoError(t, h.c.pollChat(context.Background(), always))
	assert.Len(t, h.rec.messages, 1)

	_, err = h.c.SendMessage(context.Background(), "   ")
	assert.ErrorIs(t, err, chat.ErrEmptyMessage)
}

func TestRunStartsAndLeavesOnCancel(t *testing.T) {
	sess, err := session.New("ROOM01", session.Viewer, "viewer-1", "tok")
	require.NoError(t, err)
	push := newFakePush()
	req := newFakeRequester()
	req.set("/video-sync", syncBody(videoA, "youtube", 0, false))
	c := New(sess, push, req, &fakePlayer{}, Options{Sync: testSync()})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	require.Eventually(t, func() bool { return c.loop.Runs(syncloop.Playback) == 1 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, []string{protocol.KindLeaveRoom}, push.kinds())
	assert.Equal(t, syncloop.Suspended, c.loop.State())
	c.Close()
	assert.Len(t, push.kinds(), 1)
}

func TestCreateAndJoinRoom(t *testing.T) {
	req := newFakeRequester()
	req.set("/room/create", protocol.JoinResponse{RoomCode: "ABC123", UserID: "u1", Token: "t1", Role: "host"})
	req.set("/join", protocol.JoinResponse{RoomCode: "ABC123", UserID: "u2", Token: "t2", Role: "viewer"})

	host, err := CreateRoom(context.Background(), req, "Ann")
	require.NoError(t, err)
	assert.True(t, host.IsHost())

	viewer, err := JoinRoom(context.Background(), req, " abc123 ", "Bo")
	require.NoError(t, err)
	assert.Equal(t, session.Viewer, viewer.Role())
	assert.Equal(t, 1, req.called("POST /room/ABC123/join"))

	_, err = JoinRoom(context.Background(), req, " ", "Bo")
	assert.ErrorIs(t, err, session.ErrMissingRoom)

	assert.Equal(t, "wss://watch.example/ws/rooms/ABC123?token=t2", PushURL("https://watch.example/", viewer))
}

func TestSameVideoReloadAppliedPerEvent(t *testing.T) {
	h := newHarness(t, session.Viewer)

	for _, id := range []int64{42, 43, 42} {
		h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{
			VideoURL: videoB, VideoType: "youtube", ChangedBy: "host-1", EventID: id,
		})
	}

	changes := h.rec.videoChanges()
	require.Len(t, changes, 2, "a later event for the same url reloads, an older one does not")
	assert.Equal(t, videoB, changes[1].VideoURL)
}

func TestPushAfterPollDetectedChangeIsNotRepeated(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/video-sync", syncBody(videoA, "youtube", 0, false))

	require.NoError(t, h.c.syncPlayback(context.Background(), always))
	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{VideoURL: videoA, VideoType: "youtube", EventID: 42})
	assert.Len(t, h.rec.videoChanges(), 1, "the push confirms the change the poll already applied")

	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{VideoURL: videoA, VideoType: "youtube", EventID: 43})
	assert.Len(t, h.rec.videoChanges(), 2)
}

func TestChatNoticeDuringCooldownLeavesEventToPush(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.req.set("/video-sync", syncBody(videoA, "youtube", 0, false))

	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{VideoURL: videoA, VideoType: "youtube", EventID: 42})
	h.req.set("/messages", []protocol.ChatMessage{systemMessage(43, "Ann loaded a new YouTube video")})
	require.NoError(t, h.c.pollChat(context.Background(), always))
	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, h.req.called("GET /room/ROOM01/video-sync"), "no check runs during the cooldown")

	h.push.deliver(t, protocol.KindVideoChanged, protocol.VideoChangedPayload{VideoURL: videoB, VideoType: "youtube", EventID: 43})

	changes := h.rec.videoChanges()
	require.Len(t, changes, 2)
	assert.Equal(t, videoB, changes[1].VideoURL)
}

func TestUnknownControlActionIgnored(t *testing.T) {
	h := newHarness(t, session.Viewer)
	h.player.obs = reconcile.Observation{Time: 75, State: reconcile.Playing, Duration: 300, Ready: true}
	shadow := playback.State{VideoURL: videoA, VideoType: "youtube", CurrentTime: 75, IsPlaying: true}
	h.c.shadow = shadow

	h.push.deliver(t, protocol.KindVideoControlUpdate, protocol.VideoControlUpdatePayload{
		Action: "rewind", Time: 0, ControlledBy: "host-1",
	})

	assert.Empty(t, h.player.Calls())
	assert.Empty(t, h.rec.results)
	assert.Equal(t, shadow, h.c.Playback())
}

func TestHostReloadsSameVideo(t *testing.T) {
	h := newHarness(t, session.Host)

	require.NoError(t, h.c.Load(videoB, "youtube"))
	require.NoError(t, h.c.Load(videoB, "youtube"))
	h.c.emitter.Wait()

	assert.Len(t, h.rec.videoChanges(), 2)
	assert.Equal(t, 2, h.req.called("POST /room/ROOM01/video-control"))
}

func TestCloseRejectsLaterControls(t *testing.T) {
	h := newHarness(t, session.Host)

	h.c.Close()

	assert.ErrorIs(t, h.c.Play(1), control.ErrEmitterClosed)
	assert.Equal(t, []string{protocol.KindLeaveRoom}, h.push.kinds(), "nothing is sent after leave_room")
}
