package pipeline

import "github.com/jonboulle/clockwork"

// clock drives message pacing and conversion timestamps. Tests swap in a
// fake via SetClock.
var clock = clockwork.NewRealClock()

// SetClock swaps the time source of the poller. Pass nil to reset to real time.
func SetClock(c clockwork.Clock) {
	if c == nil {
		clock = clockwork.NewRealClock()
		return
	}
	clock = c
}
