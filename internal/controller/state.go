package controller

import "time"

// State tracks the scale-down cooldown. It is in-memory only: a controller
// restart forgets the last scale-down, which at worst allows one early
// scale-down after a restart. Accepted tradeoff; do not persist this.
type State struct {
	currentReplicas int32
	lastScaleDown   time.Time
	now             func() time.Time
}

func NewState() *State {
	return &State{now: time.Now}
}

func (s *State) CurrentReplicas() int32 { return s.currentReplicas }

func (s *State) SetCurrentReplicas(n int32) { s.currentReplicas = n }

// CanScaleDown reports whether the cooldown since the last scale-down has
// elapsed. A fresh state can always scale down.
func (s *State) CanScaleDown(delay time.Duration) bool {
	if s.lastScaleDown.IsZero() {
		return true
	}
	return s.now().Sub(s.lastScaleDown) >= delay
}

func (s *State) RecordScaleDown() {
	s.lastScaleDown = s.now()
}

// ShouldScale returns the replica count to apply, or (0, false) when no
// action should be taken. Scale-ups are immediate; scale-downs only pass
// once the cooldown has elapsed.
func (s *State) ShouldScale(desired int32, scaleDownDelay time.Duration) (int32, bool) {
	if desired == s.currentReplicas {
		return 0, false
	}
	if desired > s.currentReplicas {
		return desired, true
	}
	if s.CanScaleDown(scaleDownDelay) {
		return desired, true
	}
	return 0, false
}
