package reconcile

// PlayerState mirrors the states a browser or YouTube player reports.
type PlayerState int

const (
	Unstarted PlayerState = iota
	Playing
	Paused
	Buffering
	Ended
	Cued
)

func (s PlayerState) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Buffering:
		return "buffering"
	case Ended:
		return "ended"
	case Cued:
		return "cued"
	default:
		return "unknown"
	}
}

// Observation is a point-in-time read of the local player.
type Observation struct {
	Time     float64
	State    PlayerState
	Duration float64
	// Ready is false until the player has enough data to seek.
	Ready bool
}

func (o Observation) stopped() bool {
	switch o.State {
	case Paused, Ended, Unstarted, Cued:
		return true
	}
	return false
}

func (o Observation) running() bool {
	return o.State == Playing || o.State == Buffering
}

// Player is the local media surface the reconciler corrects.
type Player interface {
	Observe() Observation
	Seek(t float64)
	Play()
	Pause()
}
