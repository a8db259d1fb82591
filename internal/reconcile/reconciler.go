// Package reconcile aligns a viewer's local player with the authoritative
// playback state.
package reconcile

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"watchsync/internal/playback"
	"watchsync/internal/session"
)

type ActionKind int

const (
	SeekAction ActionKind = iota
	PlayAction
	PauseAction
)

func (k ActionKind) String() string {
	switch k {
	case SeekAction:
		return "seek"
	case PlayAction:
		return "play"
	case PauseAction:
		return "pause"
	}
	return "unknown"
}

type Action struct {
	Kind ActionKind
	Time float64
}

type SkipReason string

const (
	NotSkipped   SkipReason = ""
	SkipHost     SkipReason = "host"
	SkipHidden   SkipReason = "hidden"
	SkipSettling SkipReason = "settling"
	SkipNotReady SkipReason = "not_ready"
)

type Result struct {
	Actions []Action
	Skipped SkipReason
	Drift   float64
}

type Config struct {
	DriftThreshold float64
	SettleWindow   time.Duration
}

// Plan decides the corrective actions for one observation. Seek, when
// present, always comes first.
func Plan(local Observation, auth playback.State, threshold float64) []Action {
	var actions []Action
	drift := math.Abs(local.Time - auth.CurrentTime)
	if drift > threshold && local.Duration > 0 {
		actions = append(actions, Action{Kind: SeekAction, Time: auth.CurrentTime})
	}
	switch {
	case auth.IsPlaying && local.stopped():
		actions = append(actions, Action{Kind: PlayAction})
	case !auth.IsPlaying && local.running():
		actions = append(actions, Action{Kind: PauseAction})
	}
	return actions
}

type Reconciler struct {
	sess   session.Session
	player Player
	cfg    Config
	now    func() time.Time
	log    zerolog.Logger

	mu          sync.Mutex
	settleUntil time.Time
	hidden      bool
}

func New(sess session.Session, player Player, cfg Config) *Reconciler {
	return &Reconciler{
		sess:   sess,
		player: player,
		cfg:    cfg,
		now:    time.Now,
		log: log.With().
			Str("module", "reconcile").
			Str("room", sess.RoomCode()).
			Logger(),
	}
}

// WithClock swaps the time source.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

func (r *Reconciler) SetVisible(visible bool) {
	r.mu.Lock()
	r.hidden = !visible
	r.mu.Unlock()
}

// Hold opens the settle window, suppressing corrections of local changes
// that have not echoed back yet.
func (r *Reconciler) Hold() {
	r.mu.Lock()
	r.settleUntil = r.now().Add(r.cfg.SettleWindow)
	r.mu.Unlock()
}

func (r *Reconciler) Settling() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.now().Before(r.settleUntil)
}

func (r *Reconciler) Reconcile(auth playback.State) Result {
	if r.sess.IsHost() {
		return Result{Skipped: SkipHost}
	}

	r.mu.Lock()
	now := r.now()
	if r.hidden {
		r.mu.Unlock()
		return Result{Skipped: SkipHidden}
	}
	if now.Before(r.settleUntil) {
		r.mu.Unlock()
		r.log.Debug().Msg("skipping reconcile, previous correction settling")
		return Result{Skipped: SkipSettling}
	}

	obs := r.player.Observe()
	res := Result{Drift: math.Abs(obs.Time - auth.CurrentTime)}
	if !obs.Ready {
		r.mu.Unlock()
		r.log.Debug().Msg("player not ready, reconcile deferred")
		res.Skipped = SkipNotReady
		return res
	}

	res.Actions = Plan(obs, auth, r.cfg.DriftThreshold)
	if len(res.Actions) > 0 {
		r.settleUntil = now.Add(r.cfg.SettleWindow)
	}
	r.mu.Unlock()

	for _, a := range res.Actions {
		switch a.Kind {
		case SeekAction:
			r.player.Seek(a.Time)
		case PlayAction:
			r.player.Play()
		case PauseAction:
			r.player.Pause()
		}
		r.log.Debug().
			Str("action", a.Kind.String()).
			Float64("target", auth.CurrentTime).
			Float64("drift", res.Drift).
			Str("local_state", obs.State.String()).
			Msg("reconcile")
	}
	return res
}
