// Package evse derives the textual EVSE code that identifies a connector,
// used both for matching a configured charger and for command payloads.
package evse

import (
	"strings"

	"onhass/internal/api"
)

// Unknown is returned when a session record is missing the fields the
// derivation needs.
const Unknown = "unknown"

// Code resolves the EVSE code of a session record. Passive records usually
// carry it directly on the connector; active records require reconstruction
// from ChargePoint.FriendlyCode, Evse.FriendlyCode and Connector.Code. A
// long-form charge point code (e.g. "IS*ONP00281-3806") embeds the short code
// as its final dash segment, so only that segment is used.
func Code(s *api.Session) string {
	if s == nil {
		return Unknown
	}
	if s.Connector.EvseCode != nil && *s.Connector.EvseCode != "" {
		return *s.Connector.EvseCode
	}
	if s.ChargePoint == nil || s.Evse == nil {
		return Unknown
	}

	cpCode := s.ChargePoint.FriendlyCode
	evseCode := s.Evse.FriendlyCode
	connCode := s.Connector.Code
	if cpCode == "" || evseCode == "" || connCode == "" {
		return Unknown
	}
	if idx := strings.LastIndex(cpCode, "-"); idx >= 0 {
		cpCode = cpCode[idx+1:]
	}
	return cpCode + "-" + evseCode + "-" + connCode
}
