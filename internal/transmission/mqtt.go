// Package transmission publishes the reconciled connector view to Home
// Assistant over MQTT discovery: one device per connector with the readings
// table as sensors plus a start/stop switch, and a global active-sessions
// counter.
package transmission

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"onhass/internal/api"
	"onhass/internal/domain"
	"onhass/internal/evse"
	"onhass/internal/metrics"
	"onhass/internal/mqtt"
	"onhass/internal/readings"
)

// Controller is the command surface the switch entities drive.
type Controller interface {
	IsOn(connectorID int) bool
	TurnOn(ctx context.Context, connectorID int) error
	TurnOff(ctx context.Context, connectorID int) error
}

const commandTimeout = 30 * time.Second

// Transmitter publishes snapshots and routes switch commands back to the
// session manager.
type Transmitter struct {
	client          *mqtt.Client
	deviceID        string
	discoveryPrefix string
	controller      Controller
	logger          *logrus.Logger

	published  map[string]bool // discovery configs already sent
	subscribed map[int]bool    // command topics already wired
	known      map[int]bool    // connectors that ever appeared
}

// HADiscoveryConfig represents a Home Assistant MQTT discovery configuration.
type HADiscoveryConfig struct {
	Name              string   `json:"name"`
	UniqueID          string   `json:"unique_id"`
	StateTopic        string   `json:"state_topic"`
	ValueTemplate     string   `json:"value_template,omitempty"`
	CommandTopic      string   `json:"command_topic,omitempty"`
	PayloadOn         string   `json:"payload_on,omitempty"`
	PayloadOff        string   `json:"payload_off,omitempty"`
	StateOn           string   `json:"state_on,omitempty"`
	StateOff          string   `json:"state_off,omitempty"`
	DeviceClass       string   `json:"device_class,omitempty"`
	UnitOfMeasurement string   `json:"unit_of_measurement,omitempty"`
	Device            HADevice `json:"device"`
	AvailabilityTopic string   `json:"availability_topic,omitempty"`
	Icon              string   `json:"icon,omitempty"`
	StateClass        string   `json:"state_class,omitempty"`
}

// HADevice represents the device information for Home Assistant.
type HADevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// NewTransmitter creates a new Home Assistant MQTT transmitter.
func NewTransmitter(client *mqtt.Client, deviceID, discoveryPrefix string, controller Controller, logger *logrus.Logger) *Transmitter {
	return &Transmitter{
		client:          client,
		deviceID:        deviceID,
		discoveryPrefix: discoveryPrefix,
		controller:      controller,
		logger:          logger,
		published:       make(map[string]bool),
		subscribed:      make(map[int]bool),
		known:           make(map[int]bool),
	}
}

func (t *Transmitter) baseTopic(connectorID int) string {
	return fmt.Sprintf("on_charger/%s/%d", t.deviceID, connectorID)
}

func (t *Transmitter) stateTopic(connectorID int) string {
	return t.baseTopic(connectorID) + "/state"
}

func (t *Transmitter) availabilityTopic(connectorID int) string {
	return t.baseTopic(connectorID) + "/availability"
}

func (t *Transmitter) commandTopic(connectorID int) string {
	return t.baseTopic(connectorID) + "/set"
}

// Transmit publishes discovery configs, state, and availability for every
// connector in the snapshot, marks vanished connectors unavailable, and
// updates the global session counter.
func (t *Transmitter) Transmit(snap *domain.Snapshot) error {
	if !t.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	for connID, s := range snap.Connectors {
		if err := t.ensureDiscovery(connID, s); err != nil {
			t.logger.WithError(err).WithField("connector_id", connID).Error("Failed to publish discovery config")
			continue
		}
		if err := t.publishState(connID, s, snap.Taken); err != nil {
			return err
		}
		if err := t.publishAvailability(connID, true); err != nil {
			return err
		}
		t.known[connID] = true
	}

	// Entities whose connector left the reconciled map become unavailable.
	for connID := range t.known {
		if _, ok := snap.Connectors[connID]; !ok {
			if err := t.publishAvailability(connID, false); err != nil {
				t.logger.WithError(err).WithField("connector_id", connID).Warn("Failed to publish offline availability")
			}
		}
	}

	if err := t.publishSessionCount(snap); err != nil {
		return err
	}

	t.logger.WithField("connectors", len(snap.Connectors)).Debug("Snapshot transmitted")
	return nil
}

// deviceFor builds the per-connector HA device, named after the location and
// the short charger code so neighboring chargers stay distinguishable.
func (t *Transmitter) deviceFor(connectorID int, s *api.Session) HADevice {
	locName := "Unknown"
	if s.Location != nil && s.Location.FriendlyName != "" {
		locName = s.Location.FriendlyName
	}
	cpCode := ""
	if s.ChargePoint != nil {
		cpCode = s.ChargePoint.FriendlyCode
	}

	name := fmt.Sprintf("ON %s", locName)
	if cpCode != "" {
		name = fmt.Sprintf("ON %s (%s)", locName, cpCode)
	}
	model := cpCode
	if model == "" {
		model = "EV Charger"
	}
	return HADevice{
		Identifiers:  []string{fmt.Sprintf("on_charger_%d", connectorID)},
		Name:         name,
		Model:        model,
		Manufacturer: "Etrel / ON",
	}
}

func (t *Transmitter) ensureDiscovery(connectorID int, s *api.Session) error {
	device := t.deviceFor(connectorID, s)

	for _, def := range readings.All {
		uniqueID := fmt.Sprintf("on_%s_%d_%s", t.deviceID, connectorID, def.Key)
		if t.published[uniqueID] {
			continue
		}

		tpl := fmt.Sprintf("{{ value_json.%s | default('unknown') }}", def.Key)
		if def.Unit != "" {
			tpl = fmt.Sprintf("{{ value_json.%s | default(0) }}", def.Key)
		}
		config := HADiscoveryConfig{
			Name:              def.Name,
			UniqueID:          uniqueID,
			StateTopic:        t.stateTopic(connectorID),
			ValueTemplate:     tpl,
			DeviceClass:       def.DeviceClass,
			UnitOfMeasurement: def.Unit,
			StateClass:        def.StateClass,
			Icon:              def.Icon,
			Device:            device,
			AvailabilityTopic: t.availabilityTopic(connectorID),
		}
		topic := fmt.Sprintf("%s/sensor/on_charger_%s_%d/%s/config", t.discoveryPrefix, t.deviceID, connectorID, def.Key)
		if err := t.publishConfigRaw(topic, config); err != nil {
			return err
		}
		t.published[uniqueID] = true
	}

	if err := t.ensureSwitchDiscovery(connectorID, device); err != nil {
		return err
	}
	return t.ensureCommandRoute(connectorID)
}

func (t *Transmitter) ensureSwitchDiscovery(connectorID int, device HADevice) error {
	uniqueID := fmt.Sprintf("on_%s_%d_charging", t.deviceID, connectorID)
	if t.published[uniqueID] {
		return nil
	}

	config := HADiscoveryConfig{
		Name:              "Charging",
		UniqueID:          uniqueID,
		StateTopic:        t.stateTopic(connectorID),
		ValueTemplate:     "{{ value_json.charging }}",
		CommandTopic:      t.commandTopic(connectorID),
		PayloadOn:         "ON",
		PayloadOff:        "OFF",
		StateOn:           "ON",
		StateOff:          "OFF",
		Icon:              "mdi:ev-plug-type2",
		Device:            device,
		AvailabilityTopic: t.availabilityTopic(connectorID),
	}
	topic := fmt.Sprintf("%s/switch/on_charger_%s_%d/charging/config", t.discoveryPrefix, t.deviceID, connectorID)
	if err := t.publishConfigRaw(topic, config); err != nil {
		return err
	}
	t.published[uniqueID] = true
	return nil
}

// ensureCommandRoute wires the switch command topic to the session manager.
func (t *Transmitter) ensureCommandRoute(connectorID int) error {
	if t.subscribed[connectorID] {
		return nil
	}

	handler := func(_ pahomqtt.Client, msg pahomqtt.Message) {
		payload := strings.ToUpper(strings.TrimSpace(string(msg.Payload())))
		ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
		defer cancel()

		var err error
		switch payload {
		case "ON":
			err = t.controller.TurnOn(ctx, connectorID)
		case "OFF":
			err = t.controller.TurnOff(ctx, connectorID)
		default:
			t.logger.WithField("payload", payload).Warn("Ignoring unknown switch command")
			return
		}
		if err != nil {
			metrics.CommandFailures.Inc()
			t.logger.WithError(err).WithField("connector_id", connectorID).Error("Switch command failed")
		}
	}

	if err := t.client.Subscribe(t.commandTopic(connectorID), handler); err != nil {
		return err
	}
	t.subscribed[connectorID] = true
	return nil
}

func (t *Transmitter) publishState(connectorID int, s *api.Session, taken time.Time) error {
	state := make(map[string]interface{}, len(readings.All)+2)
	for _, def := range readings.All {
		if v := def.Value(s, taken); v != nil {
			state[def.Key] = v
		}
	}
	state["evse_code"] = evse.Code(s)
	if t.controller.IsOn(connectorID) {
		state["charging"] = "ON"
	} else {
		state["charging"] = "OFF"
	}

	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to build state payload: %w", err)
	}
	return t.client.Publish(t.stateTopic(connectorID), payload, true)
}

func (t *Transmitter) publishAvailability(connectorID int, online bool) error {
	payload := "online"
	if !online {
		payload = "offline"
	}
	return t.client.Publish(t.availabilityTopic(connectorID), []byte(payload), true)
}

func (t *Transmitter) publishSessionCount(snap *domain.Snapshot) error {
	if !t.published["active_sessions"] {
		config := HADiscoveryConfig{
			Name:       "ON Active Sessions",
			UniqueID:   fmt.Sprintf("on_%s_active_sessions", t.deviceID),
			StateTopic: fmt.Sprintf("on_charger/%s/active_sessions", t.deviceID),
			Icon:       "mdi:car-electric",
			Device: HADevice{
				Identifiers:  []string{fmt.Sprintf("on_charger_%s", t.deviceID)},
				Name:         "ON Charging",
				Model:        "Cloud Bridge",
				Manufacturer: "Etrel / ON",
			},
		}
		topic := fmt.Sprintf("%s/sensor/on_charger_%s/active_sessions/config", t.discoveryPrefix, t.deviceID)
		if err := t.publishConfigRaw(topic, config); err != nil {
			return err
		}
		t.published["active_sessions"] = true
	}

	topic := fmt.Sprintf("on_charger/%s/active_sessions", t.deviceID)
	return t.client.Publish(topic, []byte(strconv.Itoa(snap.ActiveCount())), true)
}

func (t *Transmitter) publishConfigRaw(topic string, config interface{}) error {
	payload, err := json.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal discovery config: %w", err)
	}
	if err := t.client.Publish(topic, payload, true); err != nil {
		return fmt.Errorf("failed to publish discovery config to %s: %w", topic, err)
	}
	t.logger.WithField("topic", topic).Debug("Published discovery config")
	return nil
}
