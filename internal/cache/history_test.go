package cache

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"onhass/internal/api"
)

func testLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestHistoryFirstOccurrenceWins(t *testing.T) {
	h := NewHistory(testLogger())

	// Feed is newest first; the second entry for connector 42 is older and
	// must be ignored.
	h.Update([]api.HistoryEntry{
		{ConnectorID: 42, TotalCost: 850},
		{ConnectorID: 7, TotalCost: 120},
		{ConnectorID: 42, TotalCost: 400},
	})

	require.Equal(t, 2, h.Len())
	e, ok := h.Get(42)
	require.True(t, ok)
	assert.Equal(t, 850.0, e.TotalCost)
}

func TestHistorySkipsZeroConnector(t *testing.T) {
	h := NewHistory(testLogger())
	h.Update([]api.HistoryEntry{{ConnectorID: 0, TotalCost: 99}})
	assert.Equal(t, 0, h.Len())
}

func TestHistoryUpdateReplacesWholesale(t *testing.T) {
	h := NewHistory(testLogger())
	h.Update([]api.HistoryEntry{{ConnectorID: 42, TotalCost: 850}})
	h.Update([]api.HistoryEntry{{ConnectorID: 7, TotalCost: 120}})

	_, ok := h.Get(42)
	assert.False(t, ok, "connector 42 fell outside the fetch window")
	_, ok = h.Get(7)
	assert.True(t, ok)
}

func TestHistoryGetMissing(t *testing.T) {
	h := NewHistory(testLogger())
	_, ok := h.Get(1)
	assert.False(t, ok)
}
