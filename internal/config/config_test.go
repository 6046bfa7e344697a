package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := GetDefaultConfig()
	cfg.Email = "user@example.is"
	cfg.Password = "hunter2"
	return cfg
}

func TestValidateRequiresCredentials(t *testing.T) {
	cfg := GetDefaultConfig()
	assert.Error(t, cfg.Validate())

	cfg.Email = "user@example.is"
	assert.Error(t, cfg.Validate())

	cfg.Password = "hunter2"
	assert.NoError(t, cfg.Validate())
}

func TestValidateRequiresDeviceID(t *testing.T) {
	cfg := validConfig()
	cfg.DeviceID = ""
	assert.Error(t, cfg.Validate())
}

func TestValidateMQTTScheme(t *testing.T) {
	cfg := validConfig()

	for _, url := range []string{"ws://broker:9001", "wss://broker", "mqtt://broker:1883", "mqtts://broker"} {
		cfg.MQTTUrl = url
		assert.NoError(t, cfg.Validate(), url)
	}

	cfg.MQTTUrl = "tcp://broker:1883"
	assert.Error(t, cfg.Validate())
}

func TestValidateAppliesDefaults(t *testing.T) {
	cfg := validConfig()
	cfg.APITimeout = 0
	cfg.PollInterval = 0
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.GetAPITimeout())
	assert.Equal(t, DefaultPollInterval, cfg.PollInterval)
}

func TestHasMQTT(t *testing.T) {
	cfg := validConfig()
	assert.False(t, cfg.HasMQTT())
	cfg.MQTTUrl = "mqtt://broker:1883"
	assert.True(t, cfg.HasMQTT())
}
