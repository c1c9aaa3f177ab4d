package lighting

import (
	"encoding/json"
	"fmt"
)

// DiscoveryConfig controls Home Assistant MQTT discovery.
type DiscoveryConfig struct {
	// Enabled publishes one retained config message per device on connect.
	Enabled bool

	// NodeID prefixes unique IDs, e.g. "light_controller".
	NodeID string

	// DeviceID identifies the physical controller in Home Assistant.
	DeviceID string

	// DeviceName, Manufacturer and Model describe the controller.
	DeviceName   string
	Manufacturer string
	Model        string
}

// DefaultDiscoveryConfig matches the descriptors of the existing install.
func DefaultDiscoveryConfig() DiscoveryConfig {
	return DiscoveryConfig{
		Enabled:      true,
		NodeID:       "light_controller",
		DeviceID:     "light_controller_001",
		DeviceName:   "Light Controller",
		Manufacturer: "Custom Automation",
		Model:        "v1.0",
	}
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
}

type discoveryPayload struct {
	Name              string          `json:"name"`
	UniqueID          string          `json:"unique_id"`
	CommandTopic      string          `json:"command_topic"`
	StateTopic        string          `json:"state_topic"`
	PayloadOn         string          `json:"payload_on"`
	PayloadOff        string          `json:"payload_off"`
	Retain            bool            `json:"retain"`
	AvailabilityTopic string          `json:"availability_topic"`
	Device            discoveryDevice `json:"device"`
}

// buildDiscovery returns the config descriptor for one device.
func buildDiscovery(cfg DiscoveryConfig, topics Topics, d Device) discoveryPayload {
	return discoveryPayload{
		Name:              d.DisplayName(),
		UniqueID:          fmt.Sprintf("%s_%s", cfg.NodeID, d),
		CommandTopic:      topics.Command(d),
		StateTopic:        topics.State(d),
		PayloadOn:         string(ActionOn),
		PayloadOff:        string(ActionOff),
		Retain:            true,
		AvailabilityTopic: topics.Status(),
		Device: discoveryDevice{
			Identifiers:  []string{cfg.DeviceID},
			Name:         cfg.DeviceName,
			Manufacturer: cfg.Manufacturer,
			Model:        cfg.Model,
		},
	}
}

// publishDiscovery publishes a retained descriptor for every device.
// Failures are logged per device and do not stop the rest.
func (b *Bridge) publishDiscovery() {
	if !b.discovery.Enabled {
		return
	}

	published := 0
	for _, d := range allDevices {
		payload, err := json.Marshal(buildDiscovery(b.discovery, b.topics, d))
		if err != nil {
			b.logError("failed to marshal discovery config", "device", d, "error", err)
			continue
		}
		if err := b.bus.Publish(b.topics.Discovery(d), payload, b.qos, true); err != nil {
			b.logWarn("failed to publish discovery config", "device", d, "error", err)
			continue
		}
		published++
	}
	b.logInfo("published discovery configs", "count", published)
}
