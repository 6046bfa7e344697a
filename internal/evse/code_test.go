package evse

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"onhass/internal/api"
)

func strPtr(s string) *string { return &s }

func TestCodeExplicitWins(t *testing.T) {
	s := &api.Session{
		ChargePoint: &api.ChargePoint{FriendlyCode: "3806"},
		Evse:        &api.Evse{FriendlyCode: "1"},
		Connector: api.Connector{
			ID:       42,
			Code:     "1",
			EvseCode: strPtr("3806-1-1"),
		},
	}
	assert.Equal(t, "3806-1-1", Code(s))
}

func TestCodeDerivedFromParts(t *testing.T) {
	s := &api.Session{
		ChargePoint: &api.ChargePoint{FriendlyCode: "3806"},
		Evse:        &api.Evse{FriendlyCode: "1"},
		Connector:   api.Connector{ID: 42, Code: "1"},
	}
	assert.Equal(t, "3806-1-1", Code(s))
}

func TestCodeLongFormChargePointCode(t *testing.T) {
	// Roaming-style charge point codes embed the short code as the final
	// dash segment.
	s := &api.Session{
		ChargePoint: &api.ChargePoint{FriendlyCode: "IS*ONP00281-3806"},
		Evse:        &api.Evse{FriendlyCode: "1"},
		Connector:   api.Connector{ID: 42, Code: "1"},
	}
	assert.Equal(t, "3806-1-1", Code(s))
}

func TestCodeEmptyExplicitFallsThrough(t *testing.T) {
	s := &api.Session{
		ChargePoint: &api.ChargePoint{FriendlyCode: "3806"},
		Evse:        &api.Evse{FriendlyCode: "2"},
		Connector: api.Connector{
			ID:       7,
			Code:     "1",
			EvseCode: strPtr(""),
		},
	}
	assert.Equal(t, "3806-2-1", Code(s))
}

func TestCodeUnknown(t *testing.T) {
	assert.Equal(t, Unknown, Code(nil))

	// Missing nested records.
	assert.Equal(t, Unknown, Code(&api.Session{Connector: api.Connector{ID: 1, Code: "1"}}))

	// Missing any part of the triple.
	s := &api.Session{
		ChargePoint: &api.ChargePoint{FriendlyCode: "3806"},
		Evse:        &api.Evse{},
		Connector:   api.Connector{ID: 1, Code: "1"},
	}
	assert.Equal(t, Unknown, Code(s))
}
