package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/playback"
	"watchsync/internal/reconcile"
)

// streamLength stands in for media whose length the headless player
// cannot learn, such as YouTube videos.
const streamLength = 24 * time.Hour

// headlessPlayer is a wall-clock player with no output. It lets the
// client run from a terminal and logs every correction it receives.
type headlessPlayer struct {
	log zerolog.Logger
	now func() time.Time

	mu       sync.Mutex
	video    string
	state    reconcile.PlayerState
	position float64
	since    time.Time
	duration float64
}

func newHeadlessPlayer() *headlessPlayer {
	return &headlessPlayer{
		log:   log.With().Str("module", "player").Logger(),
		now:   time.Now,
		state: reconcile.Unstarted,
	}
}

func (p *headlessPlayer) Observe() reconcile.Observation {
	p.mu.Lock()
	defer p.mu.Unlock()
	return reconcile.Observation{
		Time:     p.positionLocked(),
		State:    p.state,
		Duration: p.duration,
		Ready:    p.video != "",
	}
}

func (p *headlessPlayer) Seek(t float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = t
	p.since = p.now()
	p.log.Info().Float64("time", t).Msg("seek")
}

func (p *headlessPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.positionLocked()
	p.since = p.now()
	p.state = reconcile.Playing
	p.log.Info().Float64("time", p.position).Msg("play")
}

func (p *headlessPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.position = p.positionLocked()
	p.state = reconcile.Paused
	p.log.Info().Float64("time", p.position).Msg("pause")
}

// Load cues a new video at the start.
func (p *headlessPlayer) Load(change playback.VideoChange) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.video = change.VideoURL
	p.state = reconcile.Cued
	p.position = 0
	p.since = p.now()
	p.duration = change.Duration
	if p.duration <= 0 {
		p.duration = streamLength.Seconds()
	}
	p.log.Info().
		Str("url", change.VideoURL).
		Str("type", change.VideoType).
		Str("by", change.ChangedBy).
		Float64("duration", p.duration).
		Msg("video loaded")
}

func (p *headlessPlayer) positionLocked() float64 {
	pos := p.position
	if p.state == reconcile.Playing {
		pos += p.now().Sub(p.since).Seconds()
	}
	if p.duration > 0 && pos > p.duration {
		pos = p.duration
	}
	return pos
}

func (p *headlessPlayer) position() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.positionLocked()
}
