package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"onhass/internal/api"
	"onhass/internal/evse"
)

const (
	// stickyWindow is how long an optimistic command override masks the
	// polled state. Command acknowledgement does not guarantee the next poll
	// already reflects the new state, so the override bridges the
	// propagation delay through the charger's controller.
	stickyWindow = 30 * time.Second

	// powerOnThreshold is the measured power (kW) above which a connector
	// counts as charging even without a billing session or status.
	powerOnThreshold = 0.1
)

type override struct {
	on    bool
	setAt time.Time
}

// IsOn reports the switch state for a connector. An override younger than
// the sticky window wins; otherwise the real polled state decides.
func (m *Manager) IsOn(connectorID int) bool {
	m.mu.Lock()
	ov, hasOverride := m.overrides[connectorID]
	s := m.current[connectorID]
	now := m.now()
	m.mu.Unlock()

	if hasOverride && now.Sub(ov.setAt) < stickyWindow {
		return ov.on
	}
	return isCharging(s)
}

func isCharging(s *api.Session) bool {
	if s == nil {
		return false
	}
	if s.ChargingSession != nil && s.ChargingSession.ID != nil {
		return true
	}
	if strings.EqualFold(s.StatusTitle(), "charging") {
		return true
	}
	return s.Measurements.Power > powerOnThreshold
}

// TurnOn starts charging on the connector and sets a sticky override so the
// switch reflects user intent before the next poll confirms it.
func (m *Manager) TurnOn(ctx context.Context, connectorID int) error {
	m.mu.Lock()
	s := m.current[connectorID]
	m.mu.Unlock()
	if s == nil {
		return fmt.Errorf("cannot start charging: no session data for connector %d", connectorID)
	}

	code := evse.Code(s)
	m.logger.WithFields(logrus.Fields{
		"evse_code":    code,
		"connector_id": connectorID,
	}).Info("Starting charging")

	if err := m.client.StartCharging(ctx, code, connectorID); err != nil {
		return err
	}
	m.setOverride(connectorID, true)
	m.requestRefresh()
	return nil
}

// TurnOff stops charging. Without session data there is nothing to stop, so
// it no-ops rather than failing.
func (m *Manager) TurnOff(ctx context.Context, connectorID int) error {
	m.mu.Lock()
	s := m.current[connectorID]
	m.mu.Unlock()
	if s == nil || s.ChargePoint == nil {
		m.logger.WithField("connector_id", connectorID).Debug("No session data, nothing to stop")
		return nil
	}

	code := evse.Code(s)
	m.logger.WithFields(logrus.Fields{
		"evse_code":       code,
		"charge_point_id": s.ChargePoint.ID,
		"connector_id":    connectorID,
	}).Info("Stopping charging")

	if err := m.client.StopCharging(ctx, code, s.ChargePoint.ID, connectorID); err != nil {
		return err
	}
	m.setOverride(connectorID, false)
	m.requestRefresh()
	return nil
}

func (m *Manager) setOverride(connectorID int, on bool) {
	m.mu.Lock()
	m.overrides[connectorID] = override{on: on, setAt: m.now()}
	m.mu.Unlock()
}
