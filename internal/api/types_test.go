package api

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimestampUnmarshalZSuffix(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2025-07-01T12:30:00Z"`), &ts))
	assert.Equal(t, time.Date(2025, 7, 1, 12, 30, 0, 0, time.UTC), ts.Time.UTC())
}

func TestTimestampUnmarshalOffset(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2025-07-01T12:30:00+00:00"`), &ts))
	assert.Equal(t, time.Date(2025, 7, 1, 12, 30, 0, 0, time.UTC), ts.Time.UTC())
}

func TestTimestampUnmarshalEmpty(t *testing.T) {
	var ts Timestamp
	require.NoError(t, json.Unmarshal([]byte(`""`), &ts))
	assert.True(t, ts.IsZero())
}

func TestTimestampUnmarshalGarbage(t *testing.T) {
	var ts Timestamp
	assert.Error(t, json.Unmarshal([]byte(`"yesterday"`), &ts))
}

func TestPricePerUnit(t *testing.T) {
	price := 28.9
	s := &Session{
		Connector: Connector{
			Tariffs: []Tariff{{
				Powers: []TariffPower{{
					Times: []TariffTime{{
						Prices: []TariffPrice{{PricePerUnit: &price}},
					}},
				}},
			}},
		},
	}
	got, ok := s.PricePerUnit()
	assert.True(t, ok)
	assert.Equal(t, 28.9, got)
}

func TestPricePerUnitMissingLevels(t *testing.T) {
	cases := map[string]*Session{
		"nil session": nil,
		"no tariffs":  {},
		"no powers":   {Connector: Connector{Tariffs: []Tariff{{}}}},
		"no times": {Connector: Connector{Tariffs: []Tariff{{
			Powers: []TariffPower{{}},
		}}}},
		"no prices": {Connector: Connector{Tariffs: []Tariff{{
			Powers: []TariffPower{{Times: []TariffTime{{}}}},
		}}}},
		"nil price": {Connector: Connector{Tariffs: []Tariff{{
			Powers: []TariffPower{{Times: []TariffTime{{
				Prices: []TariffPrice{{}},
			}}}},
		}}}},
	}
	for name, s := range cases {
		_, ok := s.PricePerUnit()
		assert.False(t, ok, name)
	}
}

func TestSessionStartPrefersChargingFrom(t *testing.T) {
	charging := Timestamp{Time: time.Date(2025, 7, 1, 10, 5, 0, 0, time.UTC)}
	connected := Timestamp{Time: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)}

	s := &Session{ChargingSession: &ChargingSession{
		ChargingFrom:  &charging,
		ConnectedFrom: &connected,
	}}
	require.NotNil(t, s.SessionStart())
	assert.Equal(t, charging.Time, *s.SessionStart())

	s = &Session{ChargingSession: &ChargingSession{ConnectedFrom: &connected}}
	require.NotNil(t, s.SessionStart())
	assert.Equal(t, connected.Time, *s.SessionStart())

	assert.Nil(t, (&Session{}).SessionStart())
	assert.Nil(t, (*Session)(nil).SessionStart())
}

func TestHistoryEntryDuration(t *testing.T) {
	start := Timestamp{Time: time.Date(2025, 7, 1, 10, 0, 0, 0, time.UTC)}
	end := Timestamp{Time: time.Date(2025, 7, 1, 11, 30, 0, 0, time.UTC)}

	e := &HistoryEntry{StartTime: &start, EndTime: &end}
	assert.Equal(t, 90*time.Minute, e.Duration())

	assert.Equal(t, time.Duration(0), (&HistoryEntry{StartTime: &start}).Duration())
	assert.Equal(t, time.Duration(0), (*HistoryEntry)(nil).Duration())
}

func TestSessionUnmarshalActiveFeedShape(t *testing.T) {
	raw := `{
		"Location": {"Id": 9, "FriendlyName": "Home"},
		"ChargePoint": {"Id": 281, "FriendlyCode": "IS*ONP00281-3806"},
		"Evse": {"Id": 5, "FriendlyCode": "1"},
		"Connector": {
			"Id": 42,
			"Code": "1",
			"Status": {"Title": "Charging"},
			"NumberOfPhases": 3
		},
		"Measurements": {"Power": 7.4, "ActiveEnergyConsumed": 12.5},
		"ChargingSession": {"Id": 123456, "ChargingFrom": "2025-07-01T10:05:00Z"}
	}`

	var s Session
	require.NoError(t, json.Unmarshal([]byte(raw), &s))
	assert.Equal(t, 42, s.Connector.ID)
	assert.Equal(t, "Charging", s.StatusTitle())
	assert.Equal(t, 7.4, s.Measurements.Power)
	require.NotNil(t, s.ChargingSession)
	require.NotNil(t, s.ChargingSession.ID)
	assert.Equal(t, int64(123456), *s.ChargingSession.ID)
}
