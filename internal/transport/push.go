package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
)

type PushOptions struct {
	ReconnectMin time.Duration
	ReconnectMax time.Duration
	PingPeriod   time.Duration
	SendBuffer   int
}

func (o PushOptions) withDefaults() PushOptions {
	if o.ReconnectMin <= 0 {
		o.ReconnectMin = 500 * time.Millisecond
	}
	if o.ReconnectMax < o.ReconnectMin {
		o.ReconnectMax = 20 * o.ReconnectMin
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= pongWait {
		o.PingPeriod = (pongWait * 9) / 10
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 32
	}
	return o
}

// Handler receives the raw data of one inbound event.
type Handler func(data json.RawMessage)

// PushClient is a WebSocket push channel that redials on its own. Events
// sent while no connection is up are dropped; the poll path covers them.
type PushClient struct {
	url    string
	header http.Header
	dialer *websocket.Dialer
	opts   PushOptions
	log    zerolog.Logger

	mu        sync.RWMutex
	handlers  map[string]Handler
	onConnect []protocol.Envelope
	conn      *pushConn
	connects  int
}

type pushConn struct {
	ws   *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *pushConn) stop() {
	c.once.Do(func() { close(c.done) })
}

func (c *pushConn) trySend(data []byte) error {
	select {
	case <-c.done:
		return websocket.ErrCloseSent
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func NewPushClient(url string, opts PushOptions) *PushClient {
	return &PushClient{
		url:      url,
		header:   http.Header{},
		dialer:   websocket.DefaultDialer,
		opts:     opts.withDefaults(),
		log:      log.With().Str("module", "push").Logger(),
		handlers: make(map[string]Handler),
	}
}

// On registers the handler for an inbound event kind.
func (p *PushClient) On(kind string, h Handler) {
	p.mu.Lock()
	p.handlers[kind] = h
	p.mu.Unlock()
}

// OnConnect queues an event to send first on every (re)connect.
func (p *PushClient) OnConnect(kind string, payload interface{}) {
	p.mu.Lock()
	p.onConnect = append(p.onConnect, protocol.Envelope{Kind: kind, Data: payload})
	p.mu.Unlock()
}

func (p *PushClient) Connected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.conn != nil
}

// Connects returns how many times a connection was established.
func (p *PushClient) Connects() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connects
}

func (p *PushClient) SendEvent(kind string, payload interface{}) {
	data, err := json.Marshal(protocol.Envelope{Kind: kind, Data: payload})
	if err != nil {
		p.log.Warn().Err(err).Str("kind", kind).Msg("encode push event")
		return
	}
	p.mu.RLock()
	conn := p.conn
	p.mu.RUnlock()
	if conn == nil {
		p.log.Debug().Str("kind", kind).Msg("push disconnected, event dropped")
		return
	}
	if err := conn.trySend(data); err != nil {
		p.log.Debug().Err(err).Str("kind", kind).Msg("push event dropped")
	}
}

// Run dials and redials until ctx is done.
func (p *PushClient) Run(ctx context.Context) {
	backoff := p.opts.ReconnectMin
	for {
		ws, _, err := p.dialer.DialContext(ctx, p.url, p.header)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.log.Warn().Err(err).Dur("retry_in", backoff).Msg("push dial failed")
			if !sleep(ctx, backoff) {
				return
			}
			backoff *= 2
			if backoff > p.opts.ReconnectMax {
				backoff = p.opts.ReconnectMax
			}
			continue
		}

		backoff = p.opts.ReconnectMin
		p.serve(ctx, ws)
		if ctx.Err() != nil {
			return
		}
		p.log.Info().Msg("push connection lost, reconnecting")
		if !sleep(ctx, backoff) {
			return
		}
	}
}

func (p *PushClient) serve(ctx context.Context, ws *websocket.Conn) {
	conn := &pushConn{
		ws:   ws,
		send: make(chan []byte, p.opts.SendBuffer),
		done: make(chan struct{}),
	}

	p.mu.Lock()
	for _, env := range p.onConnect {
		if data, err := json.Marshal(env); err == nil {
			_ = conn.trySend(data)
		}
	}
	p.conn = conn
	p.connects++
	p.mu.Unlock()
	p.log.Info().Str("url", p.url).Msg("push connected")

	writerDone := make(chan struct{})
	go func() {
		p.writePump(ctx, conn)
		close(writerDone)
	}()

	p.readPump(conn)

	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
	}
	p.mu.Unlock()
	conn.stop()
	<-writerDone
}

func (p *PushClient) readPump(conn *pushConn) {
	ws := conn.ws
	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				p.log.Warn().Err(err).Msg("push read error")
			}
			return
		}
		var inbound protocol.InboundEnvelope
		if err := json.Unmarshal(data, &inbound); err != nil {
			p.log.Warn().Err(err).Msg("push event undecodable")
			continue
		}
		p.dispatch(inbound)
	}
}

func (p *PushClient) dispatch(inbound protocol.InboundEnvelope) {
	p.mu.RLock()
	h := p.handlers[inbound.Kind]
	p.mu.RUnlock()

	if h != nil {
		h(inbound.Data)
		return
	}
	if inbound.Kind == protocol.KindError {
		var e protocol.ErrorPayload
		_ = json.Unmarshal(inbound.Data, &e)
		p.log.Warn().Str("code", e.Code).Str("message", e.Message).Msg("push error from server")
		return
	}
	p.log.Debug().Str("kind", inbound.Kind).Msg("push event without handler")
}

// writePump owns the socket's write side and closes it. On ctx cancel it
// flushes what is queued, sends a close frame and returns.
func (p *PushClient) writePump(ctx context.Context, conn *pushConn) {
	ticker := time.NewTicker(p.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.ws.Close()
	}()

	write := func(data []byte) bool {
		_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.ws.WriteMessage(websocket.TextMessage, data); err != nil {
			p.log.Warn().Err(err).Msg("push write error")
			return false
		}
		return true
	}

	for {
		select {
		case <-conn.done:
			return
		case <-ctx.Done():
			for len(conn.send) > 0 {
				if !write(<-conn.send) {
					return
				}
			}
			_ = conn.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			return
		case data := <-conn.send:
			if !write(data) {
				return
			}
		case <-ticker.C:
			_ = conn.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
