package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"onhass/internal/api"
)

func snap(taken time.Time, power float64) *Snapshot {
	return &Snapshot{
		Taken: taken,
		Connectors: map[int]*api.Session{
			42: {
				Connector:    api.Connector{ID: 42, Status: api.Status{Title: "Charging"}},
				Measurements: api.Measurements{Power: power},
			},
		},
	}
}

func TestChangedIgnoresTimestamp(t *testing.T) {
	a := snap(time.Unix(100, 0), 7.4)
	b := snap(time.Unix(200, 0), 7.4)
	assert.False(t, Changed(a, b))
}

func TestChangedDetectsDataChange(t *testing.T) {
	a := snap(time.Unix(100, 0), 7.4)
	b := snap(time.Unix(100, 0), 7.5)
	assert.True(t, Changed(a, b))
}

func TestChangedNilHandling(t *testing.T) {
	s := snap(time.Unix(100, 0), 7.4)
	assert.False(t, Changed(nil, nil))
	assert.True(t, Changed(nil, s))
	assert.True(t, Changed(s, nil))
}

func TestActiveCountSkipsPassive(t *testing.T) {
	s := &Snapshot{Connectors: map[int]*api.Session{
		1: {Connector: api.Connector{ID: 1}},
		2: {Connector: api.Connector{ID: 2}, Passive: true},
	}}
	assert.Equal(t, 1, s.ActiveCount())
	assert.Equal(t, 0, (*Snapshot)(nil).ActiveCount())
}
