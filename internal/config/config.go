package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all configuration options for the on-hass bridge.
type Config struct {
	// ON account credentials
	Email    string `json:"email"`
	Password string `json:"password"`

	// Optional charger targeting. EvseCode is the printed QR code of the
	// home charger (e.g. IS*ONP00281-3806-1-1); LocationID is resolved from
	// it at startup when not set explicitly.
	EvseCode   string `json:"evse_code"`
	LocationID int    `json:"location_id"`

	// MQTT configuration
	MQTTUrl         string `json:"mqtt_url"`         // supports ws, wss, mqtt, mqtts
	DiscoveryPrefix string `json:"discovery_prefix"` // Home Assistant discovery prefix
	DeviceID        string `json:"device_id"`

	// Application configuration
	Verbose     bool   `json:"verbose"`
	APITimeout  int    `json:"api_timeout"`  // seconds
	MetricsAddr string `json:"metrics_addr"` // empty disables the listener

	PollInterval        time.Duration `json:"poll_interval"`
	ForceUpdateInterval time.Duration `json:"force_update_interval"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Email == "" || c.Password == "" {
		return fmt.Errorf("email and password are required")
	}
	if c.DeviceID == "" {
		return fmt.Errorf("device ID is required")
	}

	if c.MQTTUrl != "" {
		if !strings.HasPrefix(c.MQTTUrl, "ws://") &&
			!strings.HasPrefix(c.MQTTUrl, "wss://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtt://") &&
			!strings.HasPrefix(c.MQTTUrl, "mqtts://") {
			return fmt.Errorf("MQTT URL must use supported protocol (ws://, wss://, mqtt://, or mqtts://)")
		}
	}

	if c.APITimeout <= 0 {
		c.APITimeout = 10
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return nil
}

// HasMQTT returns true if MQTT is configured.
func (c *Config) HasMQTT() bool {
	return c.MQTTUrl != ""
}

// GetAPITimeout returns the API timeout as a duration.
func (c *Config) GetAPITimeout() time.Duration {
	return time.Duration(c.APITimeout) * time.Second
}
