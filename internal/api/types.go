package api

import (
	"encoding/json"
	"strings"
	"time"
)

// Timestamp handles the upstream ISO-8601 format. The API suffixes every
// timestamp with a bare "Z" which is normalized to a fixed offset before
// parsing.
type Timestamp struct {
	time.Time
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	if strings.HasSuffix(s, "Z") {
		s = strings.TrimSuffix(s, "Z") + "+00:00"
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	t.Time = parsed
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Format(time.RFC3339))
}

// Status is the connector status as reported by the API.
type Status struct {
	Title string `json:"Title"`
}

// Tariff nesting as delivered by the API. The effective price is the first
// element at each level; absence at any level means no price is known.
type Tariff struct {
	Powers []TariffPower `json:"Powers,omitempty"`
}

type TariffPower struct {
	Times []TariffTime `json:"Times,omitempty"`
}

type TariffTime struct {
	Prices []TariffPrice `json:"Prices,omitempty"`
}

type TariffPrice struct {
	PricePerUnit *float64 `json:"PricePerUnit,omitempty"`
}

// Connector is a single physical charging socket.
type Connector struct {
	ID             int      `json:"Id"`
	Code           string   `json:"Code,omitempty"`
	EvseCode       *string  `json:"EvseCode,omitempty"`
	Status         Status   `json:"Status"`
	Tariffs        []Tariff `json:"Tariffs,omitempty"`
	NumberOfPhases int      `json:"NumberOfPhases,omitempty"`
}

type Evse struct {
	ID           int         `json:"Id"`
	FriendlyCode string      `json:"FriendlyCode,omitempty"`
	Connectors   []Connector `json:"Connectors,omitempty"`
}

type ChargePoint struct {
	ID           int    `json:"Id"`
	FriendlyCode string `json:"FriendlyCode,omitempty"`
	Evses        []Evse `json:"Evses,omitempty"`
}

type Location struct {
	ID           int           `json:"Id"`
	FriendlyName string        `json:"FriendlyName,omitempty"`
	ChargePoints []ChargePoint `json:"ChargePoints,omitempty"`
}

type Measurements struct {
	Power                float64 `json:"Power"`
	ActiveEnergyConsumed float64 `json:"ActiveEnergyConsumed"`
}

// ChargingSession is the billing session attached to an active connector.
type ChargingSession struct {
	ID            *int64     `json:"Id,omitempty"`
	ChargingFrom  *Timestamp `json:"ChargingFrom,omitempty"`
	ConnectedFrom *Timestamp `json:"ConnectedFrom,omitempty"`
}

// Session is the per-connector record the reconciler works with. Active
// sessions come from the onlineData feed; passive ones are synthesized from
// the location status feed and carry zero measurements.
type Session struct {
	Location        *Location        `json:"Location,omitempty"`
	ChargePoint     *ChargePoint     `json:"ChargePoint,omitempty"`
	Evse            *Evse            `json:"Evse,omitempty"`
	Connector       Connector        `json:"Connector"`
	Measurements    Measurements     `json:"Measurements"`
	ChargingSession *ChargingSession `json:"ChargingSession,omitempty"`
	LastSessionData *HistoryEntry    `json:"LastSessionData,omitempty"`
	Passive         bool             `json:"-"`
}

// HistoryEntry is one completed charging session from the history feed.
type HistoryEntry struct {
	ConnectorID          int        `json:"ConnectorId"`
	TotalCost            float64    `json:"TotalCost"`
	ActiveEnergyConsumed float64    `json:"ActiveEnergyConsumed"`
	StartTime            *Timestamp `json:"StartTime,omitempty"`
	EndTime              *Timestamp `json:"EndTime,omitempty"`
}

// Duration returns the length of the completed session, or zero when either
// endpoint is missing.
func (h *HistoryEntry) Duration() time.Duration {
	if h == nil || h.StartTime == nil || h.EndTime == nil {
		return 0
	}
	return h.EndTime.Sub(h.StartTime.Time)
}

// StatusTitle returns the connector status title, "" when unknown.
func (s *Session) StatusTitle() string {
	if s == nil {
		return ""
	}
	return s.Connector.Status.Title
}

// PricePerUnit walks the tariff nesting and returns the first price found.
// A missing element at any level means no price is known.
func (s *Session) PricePerUnit() (float64, bool) {
	if s == nil || len(s.Connector.Tariffs) == 0 {
		return 0, false
	}
	powers := s.Connector.Tariffs[0].Powers
	if len(powers) == 0 {
		return 0, false
	}
	times := powers[0].Times
	if len(times) == 0 {
		return 0, false
	}
	prices := times[0].Prices
	if len(prices) == 0 || prices[0].PricePerUnit == nil {
		return 0, false
	}
	return *prices[0].PricePerUnit, true
}

// SessionStart returns when the current session began, preferring the moment
// charging started over the moment the cable was plugged in.
func (s *Session) SessionStart() *time.Time {
	if s == nil || s.ChargingSession == nil {
		return nil
	}
	if ts := s.ChargingSession.ChargingFrom; ts != nil {
		return &ts.Time
	}
	if ts := s.ChargingSession.ConnectedFrom; ts != nil {
		return &ts.Time
	}
	return nil
}
