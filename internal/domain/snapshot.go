package domain

import (
	"reflect"
	"time"

	"onhass/internal/api"
)

// Snapshot is the reconciled per-connector view produced by one poll cycle.
type Snapshot struct {
	Taken      time.Time
	Connectors map[int]*api.Session
}

// ActiveCount returns the number of connectors with a live charging session.
func (s *Snapshot) ActiveCount() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, sess := range s.Connectors {
		if !sess.Passive {
			n++
		}
	}
	return n
}

// Changed returns true if cur differs from prev, ignoring the capture
// timestamp so an unchanged poll result does not retrigger a transmit.
func Changed(prev, cur *Snapshot) bool {
	if prev == nil && cur == nil {
		return false
	}
	if prev == nil || cur == nil {
		return true
	}
	return !reflect.DeepEqual(prev.Connectors, cur.Connectors)
}
