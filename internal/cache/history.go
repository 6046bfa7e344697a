package cache

import (
	"sync"

	"github.com/sirupsen/logrus"

	"onhass/internal/api"
)

// History keeps the most recently completed charging session per connector.
// It is refreshed on a fixed cadence by the session manager and read on every
// poll, so it must tolerate the two never overlapping:
//
//   - Within one refresh, only the first entry seen per connector is kept
//     (the feed is ordered newest first).
//   - A failed refresh leaves the previous entries untouched. Stale data is
//     preferred over missing data so history-derived sensors never go blank
//     on a transient API failure.
type History struct {
	mu      sync.RWMutex
	entries map[int]api.HistoryEntry
	logger  *logrus.Logger
}

// NewHistory returns an empty, ready-to-use history cache.
func NewHistory(logger *logrus.Logger) *History {
	return &History{
		entries: make(map[int]api.HistoryEntry),
		logger:  logger,
	}
}

// Update replaces the cache from a successful history fetch, keeping the
// first occurrence per connector.
func (h *History) Update(entries []api.HistoryEntry) {
	fresh := make(map[int]api.HistoryEntry, len(entries))
	for _, e := range entries {
		if e.ConnectorID == 0 {
			continue
		}
		if _, seen := fresh[e.ConnectorID]; seen {
			continue
		}
		fresh[e.ConnectorID] = e
	}

	h.mu.Lock()
	h.entries = fresh
	h.mu.Unlock()

	h.logger.WithField("connectors", len(fresh)).Debug("History cache refreshed")
}

// Get returns the cached last session for a connector.
func (h *History) Get(connectorID int) (api.HistoryEntry, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	e, ok := h.entries[connectorID]
	return e, ok
}

// Len returns the number of connectors with cached history.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
