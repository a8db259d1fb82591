package client

import (
	"context"
	"strings"
	"time"

	"watchsync/internal/chat"
	"watchsync/internal/dedup"
	"watchsync/internal/media"
	"watchsync/internal/playback"
	"watchsync/internal/presence"
	"watchsync/internal/protocol"
	"watchsync/internal/reconcile"
	"watchsync/internal/transport"
)

func (c *Client) fetchPlayback(ctx context.Context) (playback.State, error) {
	ep := transport.Get(protocol.VideoSyncPath(c.sess.RoomCode()))
	var wire protocol.VideoSync
	if err := c.req.Request(ctx, ep, nil, &wire); err != nil {
		return playback.State{}, err
	}
	state, err := playback.FromVideoSync(wire)
	if err != nil {
		return playback.State{}, &transport.MalformedError{Endpoint: ep, Reason: err.Error(), Err: err}
	}
	return state, nil
}

// syncPlayback pulls the authoritative state, picks up a video change the
// push channel missed and, for viewers, corrects the local player.
func (c *Client) syncPlayback(ctx context.Context, fresh func() bool) error {
	state, err := c.fetchPlayback(ctx)
	if err != nil {
		return err
	}
	if !fresh() {
		return nil
	}

	c.mu.Lock()
	changed := state.VideoURL != "" && state.VideoURL != c.currentVideo && !c.coolingDownLocked()
	c.mu.Unlock()
	if changed {
		c.applyVideoChange(playback.VideoChange{VideoURL: state.VideoURL, VideoType: state.VideoType})
	}

	c.mu.Lock()
	c.shadow = state
	c.mu.Unlock()
	if c.sess.IsHost() {
		return nil
	}
	c.reconcile(state)
	return nil
}

func (c *Client) pollChat(ctx context.Context, fresh func() bool) error {
	msgs, err := c.chat.Fetch(ctx)
	if err != nil {
		return err
	}
	if !fresh() {
		return nil
	}
	delivered := c.chat.Tracker().Advance(msgs)
	if len(delivered) == 0 {
		return nil
	}
	if c.hooks.OnMessages != nil {
		c.hooks.OnMessages(delivered)
	}
	for _, m := range delivered {
		if isVideoNotice(m) && c.pendingNotice(dedup.Key(m.ID)) {
			c.scheduleVideoCheck()
		}
	}

	latest := delivered[len(delivered)-1]
	if c.chat.Tracker().Unread() > 0 && latest.Kind != chat.System && c.hooks.OnNotify != nil {
		c.notify.Do(func() { c.hooks.OnNotify(latest) })
	}
	return nil
}

func (c *Client) pollMemberCount(ctx context.Context, fresh func() bool) error {
	n, err := presence.FetchCount(ctx, c.req, c.sess.RoomCode())
	if err != nil {
		return err
	}
	if !fresh() {
		return nil
	}
	if c.presence.SetCount(n) && c.hooks.OnMemberCount != nil {
		c.hooks.OnMemberCount(n)
	}
	return nil
}

func (c *Client) pollMembers(ctx context.Context, fresh func() bool) error {
	members, err := presence.FetchMembers(ctx, c.req, c.sess.RoomCode())
	if err != nil {
		return err
	}
	if !fresh() {
		return nil
	}
	c.presence.Replace(members)
	if c.hooks.OnPresence != nil {
		c.hooks.OnPresence(c.presence.Snapshot())
	}
	return nil
}

func (c *Client) heartbeat(ctx context.Context, fresh func() bool) error {
	obs := c.player.Observe()
	c.emitter.Heartbeat(obs.Time, obs.State == reconcile.Playing)
	return nil
}

// coolingDownLocked reports whether a video change was applied recently
// enough that state-based checks should hold off.
func (c *Client) coolingDownLocked() bool {
	return !c.lastVideoCheck.IsZero() && c.now().Sub(c.lastVideoCheck) < c.cfg.VideoCheckCooldown
}

// scheduleVideoCheck fetches the room state shortly after a video notice in
// chat, for the case where the push event never arrived. Nothing is marked
// here, so a skipped check leaves the event to the push path.
func (c *Client) scheduleVideoCheck() {
	c.mu.Lock()
	skip := c.coolingDownLocked()
	ctx := c.ctx
	c.mu.Unlock()
	if skip || ctx == nil || ctx.Err() != nil {
		return
	}
	c.goBackground(func() {
		timer := time.NewTimer(c.cfg.VideoCheckDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		state, err := c.fetchPlayback(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.log.Warn().Err(err).Msg("video check failed")
			}
			return
		}
		if state.VideoURL == "" {
			return
		}
		c.applyVideoChange(playback.VideoChange{VideoURL: state.VideoURL, VideoType: state.VideoType})
	})
}

// pendingNotice reports whether a video notice announces an event this
// session has not applied yet.
func (c *Client) pendingNotice(key dedup.Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return key > c.currentEvent && !c.ledger.HasProcessed(key)
}

// applyVideoChange switches the local view to a new video at most once
// per event. Event keys only grow, so a key at or below the current one is
// stale; a newer key applies even when the URL repeats. A keyless change
// only applies when the URL is new.
func (c *Client) applyVideoChange(change playback.VideoChange) {
	change.VideoType = media.NormalizeVideoType(change.VideoType)
	if change.VideoURL == "" {
		return
	}

	c.mu.Lock()
	if change.Key.Valid() {
		if change.Key <= c.currentEvent || !c.ledger.CheckAndMark(change.Key) {
			c.mu.Unlock()
			c.log.Debug().Stringer("key", change.Key).Msg("video change already applied")
			return
		}
		c.currentEvent = change.Key
		if !c.confirmed && change.VideoURL == c.currentVideo {
			// Already switched by a poll or our own load; this is its event.
			c.confirmed = true
			c.mu.Unlock()
			return
		}
		c.confirmed = true
	} else {
		if change.VideoURL == c.currentVideo {
			c.mu.Unlock()
			return
		}
		c.confirmed = false
	}
	ctx := c.switchVideoLocked(change)
	c.mu.Unlock()

	c.announceVideo(ctx, change)
}

func (c *Client) switchVideoLocked(change playback.VideoChange) context.Context {
	c.currentVideo = change.VideoURL
	c.lastVideoCheck = c.now()
	c.shadow = c.shadow.Apply(playback.Command{
		Action:    playback.Load,
		VideoURL:  change.VideoURL,
		VideoType: change.VideoType,
		Issuer:    change.ChangedBy,
	})
	return c.ctx
}

// announceVideo tells the UI about a switch that already happened, after
// probing the duration of local HLS media.
func (c *Client) announceVideo(ctx context.Context, change playback.VideoChange) {
	c.reconciler.Hold()
	c.log.Info().
		Str("url", change.VideoURL).
		Str("type", change.VideoType).
		Str("changed_by", change.ChangedBy).
		Stringer("key", change.Key).
		Msg("video changed")

	if c.prober == nil || change.VideoType != protocol.VideoTypeLocal || !media.IsHLS(change.VideoURL) || ctx == nil || ctx.Err() != nil {
		c.emitVideoChanged(change)
		return
	}
	c.goBackground(func() {
		pctx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
		d, err := c.prober.Duration(pctx, c.mediaURL(change.VideoURL))
		if err != nil {
			c.log.Warn().Err(err).Str("url", change.VideoURL).Msg("duration probe failed")
		} else {
			change.Duration = d
		}
		if ctx.Err() != nil {
			return
		}
		c.emitVideoChanged(change)
	})
}

func (c *Client) emitVideoChanged(change playback.VideoChange) {
	if c.hooks.OnVideoChanged != nil {
		c.hooks.OnVideoChanged(change)
	}
}

func (c *Client) mediaURL(u string) string {
	if strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://") || c.mediaBase == "" {
		return u
	}
	return c.mediaBase + "/" + strings.TrimLeft(u, "/")
}
