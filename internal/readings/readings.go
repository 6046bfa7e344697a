// Package readings defines the per-connector values projected out of a
// reconciled session record. Each reading is one table entry with its Home
// Assistant metadata and an extractor; a nil extractor result means the
// reading has no current value.
package readings

import (
	"math"
	"time"

	"onhass/internal/api"
)

// Definition describes one reading.
type Definition struct {
	Key         string
	Name        string
	DeviceClass string
	Unit        string
	StateClass  string
	Icon        string
	Value       func(s *api.Session, now time.Time) interface{}
}

// All is the projection table for per-connector entities.
var All = []Definition{
	{
		Key:  "status",
		Name: "Status",
		Icon: "mdi:ev-station",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil {
				return "Disconnected"
			}
			if title := s.StatusTitle(); title != "" {
				return title
			}
			return "Unknown"
		},
	},
	{
		Key:         "power",
		Name:        "Power",
		DeviceClass: "power",
		Unit:        "kW",
		StateClass:  "measurement",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil {
				return 0.0
			}
			return s.Measurements.Power
		},
	},
	{
		Key:         "energy",
		Name:        "Energy",
		DeviceClass: "energy",
		Unit:        "kWh",
		StateClass:  "total_increasing",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil {
				return 0.0
			}
			return s.Measurements.ActiveEnergyConsumed
		},
	},
	{
		Key:         "last_communication",
		Name:        "Last Communication",
		DeviceClass: "timestamp",
		Value: func(_ *api.Session, now time.Time) interface{} {
			return now.Format(time.RFC3339)
		},
	},
	{
		Key:         "session_start",
		Name:        "Session Start",
		DeviceClass: "timestamp",
		Value: func(s *api.Session, _ time.Time) interface{} {
			start := s.SessionStart()
			if start == nil {
				return nil
			}
			return start.Format(time.RFC3339)
		},
	},
	{
		Key:         "price",
		Name:        "Price",
		DeviceClass: "monetary",
		Unit:        "ISK/kWh",
		Value: func(s *api.Session, _ time.Time) interface{} {
			price, ok := s.PricePerUnit()
			if !ok {
				return nil
			}
			return price
		},
	},
	{
		Key:         "current_session_cost",
		Name:        "Current Session Cost",
		DeviceClass: "monetary",
		Unit:        "ISK",
		Value: func(s *api.Session, _ time.Time) interface{} {
			price, ok := s.PricePerUnit()
			if !ok {
				return nil
			}
			return round2(s.Measurements.ActiveEnergyConsumed * price)
		},
	},
	{
		Key:         "current_session_duration",
		Name:        "Current Session Duration",
		DeviceClass: "duration",
		Unit:        "min",
		Value: func(s *api.Session, now time.Time) interface{} {
			start := s.SessionStart()
			if start == nil {
				return nil
			}
			return minutes(now.Sub(*start))
		},
	},
	{
		Key:         "last_session_cost",
		Name:        "Last Session Cost",
		DeviceClass: "monetary",
		Unit:        "ISK",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil || s.LastSessionData == nil {
				return nil
			}
			return s.LastSessionData.TotalCost
		},
	},
	{
		Key:         "last_session_energy",
		Name:        "Last Session Energy",
		DeviceClass: "energy",
		Unit:        "kWh",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil || s.LastSessionData == nil {
				return nil
			}
			return s.LastSessionData.ActiveEnergyConsumed
		},
	},
	{
		Key:         "last_session_end",
		Name:        "Last Session End",
		DeviceClass: "timestamp",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil || s.LastSessionData == nil || s.LastSessionData.EndTime == nil {
				return nil
			}
			return s.LastSessionData.EndTime.Format(time.RFC3339)
		},
	},
	{
		Key:         "last_session_duration",
		Name:        "Last Session Duration",
		DeviceClass: "duration",
		Unit:        "min",
		Value: func(s *api.Session, _ time.Time) interface{} {
			if s == nil || s.LastSessionData == nil {
				return nil
			}
			d := s.LastSessionData.Duration()
			if d <= 0 {
				return nil
			}
			return minutes(d)
		},
	},
}

func minutes(d time.Duration) float64 {
	return math.Round(d.Minutes()*10) / 10
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
