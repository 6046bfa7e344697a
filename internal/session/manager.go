// Package session contains the reconciliation core: it merges the active
// session feed and the passive location feed into one per-connector view,
// keeps the last-session history cache warm, and tracks optimistic command
// overrides for the start/stop switch.
package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"onhass/internal/api"
	"onhass/internal/cache"
	"onhass/internal/evse"
)

// Client is the slice of the API gateway the manager consumes.
type Client interface {
	OnlineData(ctx context.Context) ([]*api.Session, error)
	LocationStatus(ctx context.Context, locationID int) (map[int]*api.Session, error)
	RecentSessions(ctx context.Context, limit int) ([]api.HistoryEntry, error)
	StartCharging(ctx context.Context, evseCode string, connectorID int) error
	StopCharging(ctx context.Context, evseCode string, chargePointID, connectorID int) error
}

// Idle passive connectors in one of these states are worth surfacing even
// without a configured target charger. "Available" and faulted connectors
// are dropped.
var interestingStatuses = map[string]struct{}{
	"occupied":       {},
	"preparing":      {},
	"suspended ev":   {},
	"suspended evse": {},
	"charging":       {},
}

// Options configures a Manager.
type Options struct {
	// LocationID is the home location whose passive status supplements the
	// active feed. Zero disables the passive fetch.
	LocationID int
	// TargetCode restricts the reconciled view to the one connector whose
	// resolved EVSE code matches. Empty keeps all reconciled connectors.
	TargetCode string
	// HistoryEvery is the refresh cadence of the history cache, in polls.
	HistoryEvery int
	// HistoryLimit is how many recent sessions one refresh fetches.
	HistoryLimit int
}

// Manager owns all mutable polling state: the current reconciled map, the
// poll counter, the history cache and the override table. Poll runs on the
// collector goroutine; TurnOn/TurnOff/IsOn are called from MQTT handler
// goroutines, so everything shared sits behind a mutex.
type Manager struct {
	client  Client
	logger  *logrus.Logger
	history *cache.History
	opts    Options

	mu        sync.Mutex
	current   map[int]*api.Session
	overrides map[int]override
	pollCount int

	refreshCh chan struct{}
	now       func() time.Time
}

// NewManager creates a Manager with sane cadence defaults (history refresh
// every 10th poll, 20 entries per refresh).
func NewManager(client Client, opts Options, logger *logrus.Logger) *Manager {
	if opts.HistoryEvery <= 0 {
		opts.HistoryEvery = 10
	}
	if opts.HistoryLimit <= 0 {
		opts.HistoryLimit = 20
	}
	return &Manager{
		client:    client,
		logger:    logger,
		history:   cache.NewHistory(logger),
		opts:      opts,
		current:   make(map[int]*api.Session),
		overrides: make(map[int]override),
		refreshCh: make(chan struct{}, 1),
		now:       time.Now,
	}
}

// RefreshRequests delivers a signal whenever a command wants the next poll to
// happen ahead of the regular interval.
func (m *Manager) RefreshRequests() <-chan struct{} { return m.refreshCh }

func (m *Manager) requestRefresh() {
	select {
	case m.refreshCh <- struct{}{}:
	default:
	}
}

// Poll runs one reconciliation cycle and returns the merged per-connector
// map. A failed active-session fetch aborts the whole cycle; the passive and
// history fetches degrade gracefully.
func (m *Manager) Poll(ctx context.Context) (map[int]*api.Session, error) {
	active, err := m.client.OnlineData(ctx)
	if err != nil {
		return nil, fmt.Errorf("active session fetch failed: %w", err)
	}

	dataMap := make(map[int]*api.Session)
	for _, s := range active {
		if s == nil || s.Connector.ID == 0 {
			continue
		}
		// Duplicate connector IDs are not expected upstream; last write wins.
		dataMap[s.Connector.ID] = s
	}

	if m.opts.LocationID != 0 {
		m.mergeLocation(ctx, dataMap)
	}

	if m.opts.TargetCode != "" {
		dataMap = m.filterTarget(dataMap)
	}

	m.refreshHistoryOnCadence(ctx)
	m.injectHistory(dataMap)

	m.mu.Lock()
	m.current = dataMap
	m.mu.Unlock()

	m.logger.WithField("connectors", len(dataMap)).Debug("Reconciliation cycle complete")
	return dataMap, nil
}

// Current returns a copy of the latest reconciled map.
func (m *Manager) Current() map[int]*api.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]*api.Session, len(m.current))
	for id, s := range m.current {
		out[id] = s
	}
	return out
}

// mergeLocation folds the passive location feed into dataMap. Connectors
// already present from the active feed are only enriched; idle connectors are
// added when they match the configured target code or carry an interesting
// status. A failed fetch logs and leaves dataMap as-is, since passive data is
// supplementary.
func (m *Manager) mergeLocation(ctx context.Context, dataMap map[int]*api.Session) {
	passive, err := m.client.LocationStatus(ctx, m.opts.LocationID)
	if err != nil {
		m.logger.WithError(err).WithField("location_id", m.opts.LocationID).
			Warn("Passive location fetch failed, continuing with active data only")
		return
	}

	for connID, ps := range passive {
		if activeSess, ok := dataMap[connID]; ok {
			enrich(activeSess, ps)
			continue
		}
		if m.shouldAddIdle(ps) {
			dataMap[connID] = ps
		}
	}
}

// enrich copies static metadata from a passive record onto the active record
// for the same connector. Existing active values are never overwritten.
func enrich(active, passive *api.Session) {
	if len(active.Connector.Tariffs) == 0 && len(passive.Connector.Tariffs) > 0 {
		active.Connector.Tariffs = passive.Connector.Tariffs
	}
	if active.Connector.NumberOfPhases == 0 && passive.Connector.NumberOfPhases != 0 {
		active.Connector.NumberOfPhases = passive.Connector.NumberOfPhases
	}
}

func (m *Manager) shouldAddIdle(s *api.Session) bool {
	if m.opts.TargetCode != "" {
		return evse.Code(s) == m.opts.TargetCode
	}
	status := strings.ToLower(s.StatusTitle())
	_, ok := interestingStatuses[status]
	return ok
}

func (m *Manager) filterTarget(dataMap map[int]*api.Session) map[int]*api.Session {
	filtered := make(map[int]*api.Session, 1)
	for id, s := range dataMap {
		code := evse.Code(s)
		if code == m.opts.TargetCode {
			filtered[id] = s
		} else {
			m.logger.WithFields(logrus.Fields{
				"evse_code": code,
				"target":    m.opts.TargetCode,
			}).Debug("Ignoring connector outside target charger")
		}
	}
	return filtered
}

// refreshHistoryOnCadence fetches recent sessions on the first poll and every
// HistoryEvery polls after that, to bound API load. A failed fetch keeps the
// cache untouched.
func (m *Manager) refreshHistoryOnCadence(ctx context.Context) {
	m.mu.Lock()
	m.pollCount++
	due := m.pollCount == 1 || m.pollCount%m.opts.HistoryEvery == 0
	m.mu.Unlock()
	if !due {
		return
	}

	entries, err := m.client.RecentSessions(ctx, m.opts.HistoryLimit)
	if err != nil {
		m.logger.WithError(err).Warn("History refresh failed, keeping cached entries")
		return
	}
	m.history.Update(entries)
}

// injectHistory attaches the cached last session to every connector in the
// map, regardless of refresh cadence, so history-derived readings stay
// populated between refreshes.
func (m *Manager) injectHistory(dataMap map[int]*api.Session) {
	for id, s := range dataMap {
		if entry, ok := m.history.Get(id); ok {
			e := entry
			s.LastSessionData = &e
		}
	}
}
