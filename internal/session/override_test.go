package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onhass/internal/api"
)

func managerWithSession(t *testing.T, fake *fakeClient, s *api.Session) *Manager {
	t.Helper()
	fake.online = []*api.Session{s}
	m := NewManager(fake, Options{}, testLogger())
	_, err := m.Poll(context.Background())
	require.NoError(t, err)
	return m
}

func TestIsOnFromBillingSession(t *testing.T) {
	id := int64(123)
	s := activeSession(42, "Occupied", 0)
	s.ChargingSession = &api.ChargingSession{ID: &id}

	m := managerWithSession(t, &fakeClient{}, s)
	assert.True(t, m.IsOn(42))
}

func TestIsOnFromStatus(t *testing.T) {
	m := managerWithSession(t, &fakeClient{}, activeSession(42, "Charging", 0))
	assert.True(t, m.IsOn(42))
}

func TestIsOnFromPower(t *testing.T) {
	m := managerWithSession(t, &fakeClient{}, activeSession(42, "Occupied", 7.4))
	assert.True(t, m.IsOn(42))

	// Trickle below the threshold does not count.
	m = managerWithSession(t, &fakeClient{}, activeSession(42, "Occupied", 0.05))
	assert.False(t, m.IsOn(42))
}

func TestIsOnUnknownConnector(t *testing.T) {
	m := NewManager(&fakeClient{}, Options{}, testLogger())
	assert.False(t, m.IsOn(42))
}

func TestTurnOnSetsStickyOverride(t *testing.T) {
	fake := &fakeClient{}
	m := managerWithSession(t, fake, activeSession(42, "Occupied", 0))

	base := time.Now()
	now := base
	m.now = func() time.Time { return now }

	require.NoError(t, m.TurnOn(context.Background(), 42))
	assert.Equal(t, 1, fake.startCalls)
	assert.Equal(t, "3806-1-1", fake.lastStartCode)

	// The polled state still says idle, but the override masks it.
	assert.True(t, m.IsOn(42))

	// Just inside the window the override still holds.
	now = base.Add(29 * time.Second)
	assert.True(t, m.IsOn(42))

	// Once the window expires the polled state decides again.
	now = base.Add(31 * time.Second)
	assert.False(t, m.IsOn(42))
}

func TestTurnOffOverrideMasksCharging(t *testing.T) {
	fake := &fakeClient{}
	m := managerWithSession(t, fake, activeSession(42, "Charging", 7.4))

	base := time.Now()
	m.now = func() time.Time { return base }

	require.NoError(t, m.TurnOff(context.Background(), 42))
	assert.Equal(t, 1, fake.stopCalls)
	assert.Equal(t, 281, fake.lastStopCPID)
	assert.Equal(t, 42, fake.lastStopConnector)

	assert.False(t, m.IsOn(42), "override hides the stale charging state")
}

func TestTurnOnWithoutSessionData(t *testing.T) {
	fake := &fakeClient{}
	m := NewManager(fake, Options{}, testLogger())

	err := m.TurnOn(context.Background(), 42)
	require.Error(t, err)
	assert.Equal(t, 0, fake.startCalls)
}

func TestTurnOffWithoutSessionDataIsNoop(t *testing.T) {
	fake := &fakeClient{}
	m := NewManager(fake, Options{}, testLogger())

	assert.NoError(t, m.TurnOff(context.Background(), 42))
	assert.Equal(t, 0, fake.stopCalls)
}

func TestTurnOnCommandFailureLeavesStateAlone(t *testing.T) {
	fake := &fakeClient{startErr: &api.CommandError{Description: "Connector occupied"}}
	m := managerWithSession(t, fake, activeSession(42, "Occupied", 0))

	err := m.TurnOn(context.Background(), 42)
	var cmdErr *api.CommandError
	require.True(t, errors.As(err, &cmdErr))
	assert.False(t, m.IsOn(42), "rejected command must not set an override")
}

func TestCommandsRequestEagerRefresh(t *testing.T) {
	fake := &fakeClient{}
	m := managerWithSession(t, fake, activeSession(42, "Occupied", 0))

	require.NoError(t, m.TurnOn(context.Background(), 42))
	select {
	case <-m.RefreshRequests():
	default:
		t.Fatal("expected a refresh request after a command")
	}
}
