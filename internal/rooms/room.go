package rooms

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"watchsync/internal/media"
	"watchsync/internal/protocol"
)

var (
	ErrUnauthorizedControl = errors.New("only host can control playback")
	ErrInvalidAction       = errors.New("invalid action")
	ErrEmptyMessage        = errors.New("message cannot be empty")
	ErrEmptyVideoURL       = errors.New("video url is required")
)

const timeLayout = "15:04"

// Conn is the write side of a push connection. Both the gorilla and the
// hertz websocket connections satisfy it.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type Member struct {
	ID          string
	DisplayName string
	Token       string
	Role        string
	JoinedAt    time.Time
}

func (m *Member) IsHost() bool { return m.Role == protocol.RoleHost }

type entry struct {
	msg     protocol.ChatMessage
	created time.Time
}

type Room struct {
	code   string
	hostID string

	videoURL    string
	videoType   string
	currentTime float64
	isPlaying   bool
	lastSync    time.Time
	videoEvent  int64
	videoLoad   string

	nextID     int64
	log        []entry
	members    map[string]*Member
	order      []string
	tokenIndex map[string]string
	conns      map[*Participant]struct{}
	mu         sync.RWMutex
}

// Participant is one live push connection of a member.
type Participant struct {
	Member *Member
	room   *Room
	conn   Conn
	send   chan []byte
	joined bool
	mu     sync.Mutex
	once   sync.Once
}

func NewRoom(code string, now time.Time) *Room {
	return &Room{
		code:       code,
		videoType:  protocol.VideoTypeNone,
		lastSync:   now,
		members:    make(map[string]*Member),
		tokenIndex: make(map[string]string),
		conns:      make(map[*Participant]struct{}),
	}
}

func (r *Room) Code() string { return r.code }

// AddMember registers a member and records a join notice in the log.
func (r *Room) AddMember(m *Member, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.members[m.ID] = m
	r.order = append(r.order, m.ID)
	r.tokenIndex[m.Token] = m.ID
	if m.IsHost() {
		r.hostID = m.ID
	}
	r.appendLocked("", m.DisplayName+" joined the room", protocol.MessageTypeSystem, now)
}

// RemoveMember drops a member. It reports whether the room is now empty.
func (r *Room) RemoveMember(memberID string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.members[memberID]
	if !ok {
		return len(r.members) == 0
	}
	delete(r.members, memberID)
	delete(r.tokenIndex, m.Token)
	for i, id := range r.order {
		if id == memberID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.appendLocked("", m.DisplayName+" left the room", protocol.MessageTypeSystem, now)
	return len(r.members) == 0
}

func (r *Room) FindByToken(token string) (*Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	memberID, ok := r.tokenIndex[token]
	if !ok {
		return nil, ErrInvalidToken
	}
	m, ok := r.members[memberID]
	if !ok {
		return nil, ErrParticipantNotFound
	}
	return m, nil
}

// VideoSync reports the playback state, advancing the position by the
// wall-clock time since the last sync while playing.
func (r *Room) VideoSync(now time.Time) protocol.VideoSync {
	r.mu.RLock()
	defer r.mu.RUnlock()

	current := r.currentTime
	if r.isPlaying {
		current += now.Sub(r.lastSync).Seconds()
	}
	url, vtype, playing := r.videoURL, r.videoType, r.isPlaying
	lastSync := r.lastSync.UTC().Format(protocol.LastSyncLayout)
	return protocol.VideoSync{
		VideoURL:    &url,
		VideoType:   &vtype,
		CurrentTime: &current,
		IsPlaying:   &playing,
		LastSync:    &lastSync,
	}
}

// ApplyControl executes a playback command from memberID.
func (r *Room) ApplyControl(memberID string, req protocol.VideoControlRequest, now time.Time) error {
	if req.Action == protocol.ActionLoadYouTube {
		url := strings.TrimSpace(req.URL)
		if _, err := media.ExtractYouTubeID(url); err != nil {
			return err
		}
		_, err := r.ChangeVideo(memberID, url, protocol.VideoTypeYouTube, req.LoadID, now)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorizeLocked(memberID); err != nil {
		return err
	}
	switch req.Action {
	case protocol.ActionPlay:
		r.isPlaying = true
	case protocol.ActionPause:
		r.isPlaying = false
	case protocol.ActionSeek, protocol.ActionHeartbeat:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidAction, req.Action)
	}
	r.currentTime = req.Time
	r.lastSync = now
	return nil
}

// ChangeVideo switches the room to a new video and returns the id of the
// log entry that announced it. A repeated loadID is the second copy of a
// load already recorded and returns the same id. Without a loadID the
// current URL is treated as that second copy.
func (r *Room) ChangeVideo(memberID, url, videoType, loadID string, now time.Time) (int64, error) {
	if url == "" {
		return 0, ErrEmptyVideoURL
	}
	videoType = media.NormalizeVideoType(videoType)

	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.authorizeLocked(memberID); err != nil {
		return 0, err
	}
	if r.videoEvent != 0 {
		if loadID != "" && loadID == r.videoLoad {
			return r.videoEvent, nil
		}
		if loadID == "" && url == r.videoURL {
			return r.videoEvent, nil
		}
	}

	r.videoURL = url
	r.videoType = videoType
	r.currentTime = 0
	r.isPlaying = false
	r.lastSync = now

	name := r.members[memberID].DisplayName
	notice := name + " loaded a new YouTube video"
	if videoType == protocol.VideoTypeLocal {
		notice = name + " uploaded video " + baseName(url)
	}
	r.videoLoad = loadID
	r.videoEvent = r.appendLocked("", notice, protocol.MessageTypeSystem, now).ID
	return r.videoEvent, nil
}

func (r *Room) authorizeLocked(memberID string) error {
	m, ok := r.members[memberID]
	if !ok || !m.IsHost() {
		return ErrUnauthorizedControl
	}
	return nil
}

func (r *Room) AppendMessage(memberID, text string, now time.Time) (protocol.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return protocol.ChatMessage{}, ErrEmptyMessage
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.members[memberID]
	if !ok {
		return protocol.ChatMessage{}, ErrParticipantNotFound
	}
	return r.appendLocked(m.DisplayName, text, protocol.MessageTypeUser, now), nil
}

func (r *Room) appendLocked(sender, text, kind string, now time.Time) protocol.ChatMessage {
	r.nextID++
	if sender == "" {
		sender = "System"
	}
	msg := protocol.ChatMessage{
		ID:       r.nextID,
		UserName: sender,
		Message:  text,
		Time:     now.Format(timeLayout),
		Type:     kind,
	}
	r.log = append(r.log, entry{msg: msg, created: now})
	return msg
}

// MessagesAfter returns log entries with an id above afterID, oldest first.
func (r *Room) MessagesAfter(afterID int64) []protocol.ChatMessage {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.ChatMessage, 0)
	for _, e := range r.log {
		if e.msg.ID > afterID {
			out = append(out, e.msg)
		}
	}
	return out
}

func (r *Room) Members() []protocol.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]protocol.Member, 0, len(r.order))
	for _, id := range r.order {
		m := r.members[id]
		out = append(out, protocol.Member{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Username:    strings.ToLower(strings.ReplaceAll(m.DisplayName, " ", "")),
			Role:        m.Role,
			JoinedAt:    m.JoinedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

func (r *Room) MemberCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Attach binds a push connection to member. The returned participant
// receives broadcasts once it has sent join_room.
func (r *Room) Attach(m *Member, conn Conn) *Participant {
	p := &Participant{
		Member: m,
		room:   r,
		conn:   conn,
		send:   make(chan []byte, 16),
	}
	r.mu.Lock()
	r.conns[p] = struct{}{}
	r.mu.Unlock()
	return p
}

func (r *Room) Detach(p *Participant) {
	r.mu.Lock()
	_, ok := r.conns[p]
	delete(r.conns, p)
	r.mu.Unlock()
	if ok {
		p.once.Do(func() { close(p.send) })
	}
}

// Deliver queues data for every joined connection except those of
// excludeID. Slow connections drop the event.
func (r *Room) Deliver(data []byte, excludeID string) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for p := range r.conns {
		if p.Member.ID == excludeID || !p.Joined() {
			continue
		}
		select {
		case p.send <- data:
		default:
		}
	}
}

func (p *Participant) setJoined(joined bool) {
	p.mu.Lock()
	p.joined = joined
	p.mu.Unlock()
}

func (p *Participant) Joined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joined
}

// SendLoop writes queued events to the connection until the participant
// is detached or a write fails.
func (p *Participant) SendLoop(messageType int) {
	defer p.Close()
	for msg := range p.send {
		if err := p.conn.WriteMessage(messageType, msg); err != nil {
			break
		}
	}
}

func (p *Participant) Close() {
	_ = p.conn.Close()
}

// Send queues an envelope for this connection only.
func (p *Participant) Send(envelope protocol.Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return
	}
	p.room.mu.RLock()
	defer p.room.mu.RUnlock()
	if _, ok := p.room.conns[p]; !ok {
		return
	}
	select {
	case p.send <- data:
	default:
	}
}

func baseName(url string) string {
	if i := strings.LastIndexByte(url, '/'); i >= 0 {
		return url[i+1:]
	}
	return url
}
