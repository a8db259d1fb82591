// Package syncloop schedules the session's periodic work. Each task runs
// on its own timer while the surface is visible and is cancelled as a
// group when it is hidden or the session ends.
package syncloop

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Purpose string

const (
	Playback    Purpose = "playback"
	Chat        Purpose = "chat"
	MemberCount Purpose = "member_count"
	MemberList  Purpose = "member_list"
	Heartbeat   Purpose = "heartbeat"
)

// RunFunc performs one cycle. fresh reports whether the loop is still in
// the activation the run started in; results must be dropped once it
// returns false.
type RunFunc func(ctx context.Context, fresh func() bool) error

type Task struct {
	Purpose  Purpose
	Interval time.Duration
	// CatchUp runs the task immediately each time the loop becomes active.
	CatchUp bool
	Run     RunFunc
}

type State int

const (
	Suspended State = iota
	Active
)

func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "suspended"
}

type task struct {
	Task
	runs atomic.Int64

	// guarded by Loop.mu
	inflight bool
	// deferred is the generation whose catch-up found a run still out.
	deferred uint64
}

type Loop struct {
	log   zerolog.Logger
	tasks []*task

	mu      sync.Mutex
	base    context.Context
	state   State
	gen     uint64
	stopped bool
	cancel  context.CancelFunc

	tickers sync.WaitGroup
	runs    sync.WaitGroup
}

func New(tasks ...Task) *Loop {
	l := &Loop{log: log.With().Str("module", "syncloop").Logger()}
	for _, t := range tasks {
		l.tasks = append(l.tasks, &task{Task: t})
	}
	return l
}

// Start binds the loop to ctx and activates it. Suspending never aborts a
// run; its result is dropped through fresh. Runs use ctx, which only the
// owner cancels on teardown.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	l.base = ctx
	l.mu.Unlock()
	l.SetVisible(true)
}

// SetVisible moves the loop between Active and Suspended.
func (l *Loop) SetVisible(visible bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || l.base == nil {
		return
	}
	switch {
	case visible && l.state == Suspended:
		l.activateLocked()
	case !visible && l.state == Active:
		l.suspendLocked()
	}
}

func (l *Loop) activateLocked() {
	l.gen++
	l.state = Active
	ctx, cancel := context.WithCancel(l.base)
	l.cancel = cancel
	gen := l.gen
	for _, t := range l.tasks {
		l.tickers.Add(1)
		go l.tick(ctx, t, gen)
	}
	for _, t := range l.tasks {
		if t.CatchUp {
			l.catchUpLocked(t, gen)
		}
	}
	l.log.Debug().Uint64("generation", gen).Msg("sync loop active")
}

func (l *Loop) suspendLocked() {
	l.gen++
	l.state = Suspended
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
	l.log.Debug().Uint64("generation", l.gen).Msg("sync loop suspended")
}

func (l *Loop) tick(ctx context.Context, t *task, gen uint64) {
	defer l.tickers.Done()
	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.mu.Lock()
			l.fireLocked(t, gen)
			l.mu.Unlock()
		}
	}
}

// catchUpLocked fires t for a new activation. A run left over from an
// earlier activation is not waited on here; the catch-up starts as soon as
// it returns.
func (l *Loop) catchUpLocked(t *task, gen uint64) {
	if t.inflight {
		t.deferred = gen
		l.log.Debug().Str("task", string(t.Purpose)).Msg("catch-up deferred until the previous run returns")
		return
	}
	l.fireLocked(t, gen)
}

// fireLocked starts one run of t unless its previous run is still out.
func (l *Loop) fireLocked(t *task, gen uint64) {
	if l.stopped || l.gen != gen {
		return
	}
	if t.inflight {
		l.log.Debug().Str("task", string(t.Purpose)).Msg("previous run in flight, tick skipped")
		return
	}
	t.inflight = true
	l.runs.Add(1)
	t.runs.Add(1)
	ctx := l.base
	go func() {
		defer l.runs.Done()
		defer l.finish(t)
		if err := t.Run(ctx, func() bool { return l.current(gen) }); err != nil {
			l.log.Warn().Err(err).Str("task", string(t.Purpose)).Msg("sync task failed")
		}
	}()
}

// finish releases t and starts a catch-up that was waiting on this run.
func (l *Loop) finish(t *task) {
	l.mu.Lock()
	defer l.mu.Unlock()
	t.inflight = false
	if gen := t.deferred; gen != 0 {
		t.deferred = 0
		l.fireLocked(t, gen)
	}
}

func (l *Loop) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.stopped && l.gen == gen
}

// Trigger runs the task for p now, outside its schedule. It reports false
// when the loop is not active, the task is unknown or already running.
func (l *Loop) Trigger(p Purpose) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Active {
		return false
	}
	for _, t := range l.tasks {
		if t.Purpose == p {
			if t.inflight {
				return false
			}
			l.fireLocked(t, l.gen)
			return true
		}
	}
	return false
}

func (l *Loop) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Loop) Generation() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen
}

// Runs returns how many runs of p have started.
func (l *Loop) Runs(p Purpose) int64 {
	for _, t := range l.tasks {
		if t.Purpose == p {
			return t.runs.Load()
		}
	}
	return 0
}

// Stop cancels every timer and waits for timers and in-flight runs.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	if l.state == Active {
		l.suspendLocked()
	}
	l.stopped = true
	l.mu.Unlock()

	l.tickers.Wait()
	l.runs.Wait()
}
