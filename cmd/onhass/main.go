package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"onhass/internal/api"
	"onhass/internal/app"
	"onhass/internal/config"
	"onhass/internal/mqtt"
	"onhass/internal/netutil"
	"onhass/internal/session"
	"onhass/internal/transmission"
)

// version is injected at build time via ldflags
var version = "dev"

func main() {
	cfg, debugMode := parseFlags()
	logger := setupLogger(cfg.Verbose || debugMode)

	if err := cfg.Validate(); err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	logger.WithFields(logrus.Fields{
		"version":   version,
		"device_id": cfg.DeviceID,
		"poll":      cfg.PollInterval,
	}).Info("Starting on-hass")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		logger.Info("Shutdown signal received")
		cancel()
	}()

	// Core clients ---------------------------------------------------------
	httpClient := netutil.NewHTTPClient(cfg.GetAPITimeout(), logger)
	client := api.NewClient(api.DefaultBaseURL, cfg.Email, cfg.Password, httpClient, logger)

	setupCtx, setupCancel := context.WithTimeout(ctx, 30*time.Second)
	defer setupCancel()

	if err := client.Login(setupCtx); err != nil {
		var authErr *api.AuthError
		if errors.As(err, &authErr) {
			logger.WithError(err).Fatal("Login rejected, check email and password")
		}
		logger.WithError(err).Fatal("Could not reach the ON API")
	}

	// A configured charger code is validated by resolving it to its
	// location; the location feed then supplements the active sessions.
	if cfg.EvseCode != "" && cfg.LocationID == 0 {
		locationID, err := client.ResolveEvseCode(setupCtx, cfg.EvseCode)
		if err != nil {
			logger.WithError(err).WithField("evse_code", cfg.EvseCode).Fatal("Could not resolve EVSE code")
		}
		cfg.LocationID = locationID
		logger.WithFields(logrus.Fields{
			"evse_code":   cfg.EvseCode,
			"location_id": locationID,
		}).Info("Resolved home charger location")
	}

	manager := session.NewManager(client, session.Options{
		LocationID:   cfg.LocationID,
		TargetCode:   cfg.EvseCode,
		HistoryEvery: config.HistoryRefreshEvery,
		HistoryLimit: config.HistoryFetchLimit,
	}, logger)

	// Debug path -----------------------------------------------------------
	if debugMode {
		runDebugMode(ctx, manager, logger)
		return
	}

	// Transmitter ----------------------------------------------------------
	var mqttTx *transmission.Transmitter
	if cfg.HasMQTT() {
		mqttClient, err := mqtt.NewClient(cfg.MQTTUrl, cfg.DeviceID, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create MQTT client")
		}
		defer mqttClient.Disconnect(250)
		mqttTx = transmission.NewTransmitter(mqttClient, cfg.DeviceID, cfg.DiscoveryPrefix, manager, logger)
		logger.Info("MQTT transmitter ready")
	} else {
		logger.Warn("No MQTT URL configured; data will only be logged")
	}

	// Run application ------------------------------------------------------
	app.Run(ctx, cfg, manager, mqttTx, logger)

	logger.Info("on-hass stopped")
}

// -----------------------------------------------------------------------------
// Helpers & Flags
// -----------------------------------------------------------------------------

func parseFlags() (*config.Config, bool) {
	cfg := config.GetDefaultConfig()

	showVersion := flag.Bool("version", false, "Show version and exit")
	debug := flag.Bool("debug", false, "Run one reconciliation cycle, print the result and exit")

	flag.StringVar(&cfg.Email, "email", getEnv("ON_HASS_EMAIL", cfg.Email), "ON account email")
	flag.StringVar(&cfg.Password, "password", getEnv("ON_HASS_PASSWORD", cfg.Password), "ON account password")
	flag.StringVar(&cfg.EvseCode, "evse-code", getEnv("ON_HASS_EVSE_CODE", cfg.EvseCode), "Home charger QR code (e.g. IS*ONP00281-3806-1-1)")
	flag.StringVar(&cfg.MQTTUrl, "mqtt-url", getEnv("ON_HASS_MQTT_URL", cfg.MQTTUrl), "MQTT URL")
	flag.StringVar(&cfg.DiscoveryPrefix, "discovery-prefix", getEnv("ON_HASS_DISCOVERY_PREFIX", cfg.DiscoveryPrefix), "HA discovery prefix")
	flag.StringVar(&cfg.DeviceID, "device-id", getEnv("ON_HASS_DEVICE_ID", cfg.DeviceID), "Device identifier")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", getEnv("ON_HASS_METRICS_ADDR", cfg.MetricsAddr), "Prometheus listen address (empty = disabled)")
	flag.BoolVar(&cfg.Verbose, "verbose", getEnv("ON_HASS_VERBOSE", "false") == "true", "Verbose logging")

	locationIDStr := flag.String("location-id", getEnv("ON_HASS_LOCATION_ID", ""), "Home location ID (overrides EVSE code resolution)")
	pollIntervalStr := flag.String("poll-interval", getEnv("ON_HASS_POLL_INTERVAL", ""), "Poll interval (e.g. 30s)")
	forceUpdateIntervalStr := flag.String("force-update-interval", getEnv("ON_HASS_FORCE_UPDATE_INTERVAL", ""), "Re-transmit all readings at this interval even if unchanged (0 = disabled)")

	flag.Parse()

	if *showVersion {
		fmt.Printf("on-hass %s\n", version)
		os.Exit(0)
	}

	if *locationIDStr != "" {
		if v, err := strconv.Atoi(*locationIDStr); err == nil && v > 0 {
			cfg.LocationID = v
		}
	}
	if *pollIntervalStr != "" {
		if d, err := time.ParseDuration(*pollIntervalStr); err == nil && d > 0 {
			cfg.PollInterval = d
		} else if v, err2 := strconv.Atoi(*pollIntervalStr); err2 == nil && v > 0 {
			cfg.PollInterval = time.Duration(v) * time.Second
		}
	}
	if *forceUpdateIntervalStr != "" {
		if d, err := time.ParseDuration(*forceUpdateIntervalStr); err == nil && d >= 0 {
			cfg.ForceUpdateInterval = d
		} else if v, err2 := strconv.Atoi(*forceUpdateIntervalStr); err2 == nil && v >= 0 {
			cfg.ForceUpdateInterval = time.Duration(v) * time.Second
		}
	}

	return cfg, *debug
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func setupLogger(verbose bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}

func runDebugMode(ctx context.Context, manager *session.Manager, logger *logrus.Logger) {
	connectors, err := manager.Poll(ctx)
	if err != nil {
		logger.WithError(err).Fatal("Debug poll failed")
	}
	if len(connectors) == 0 {
		logger.Info("No sessions found (car not plugged in?)")
		return
	}
	out, err := json.MarshalIndent(connectors, "", "  ")
	if err != nil {
		logger.WithError(err).Fatal("Failed to render reconciled view")
	}
	fmt.Println(string(out))
}
