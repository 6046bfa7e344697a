package config

import "time"

const (
	// DefaultPollInterval is the fixed polling cadence against the cloud API.
	DefaultPollInterval = 30 * time.Second

	// HistoryRefreshEvery bounds history-feed load: the last-session cache
	// refreshes only every Nth poll.
	HistoryRefreshEvery = 10

	// HistoryFetchLimit is how many recent sessions one refresh pulls.
	HistoryFetchLimit = 20
)

// GetDefaultConfig returns a configuration with sensible defaults.
func GetDefaultConfig() *Config {
	return &Config{
		DiscoveryPrefix:     "homeassistant",
		DeviceID:            "on_charger",
		Verbose:             false,
		APITimeout:          10,
		PollInterval:        DefaultPollInterval,
		ForceUpdateInterval: 10 * time.Minute,
	}
}
