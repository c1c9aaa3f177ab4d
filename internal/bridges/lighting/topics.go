package lighting

import "strings"

// Default topic roots.
const (
	DefaultTopicPrefix     = "home/light"
	DefaultDiscoveryPrefix = "homeassistant"
)

// Liveness payloads published on the status topic.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)

// Topics builds the MQTT topics used by the bridge.
//
//	<prefix>/<device>/set      inbound command
//	<prefix>/<device>/state    retained state
//	<prefix>/status            retained liveness, also the last will
//	<discovery>/light/<device>/config
type Topics struct {
	Prefix          string
	DiscoveryPrefix string
}

// DefaultTopics returns the standard "home/light" layout.
func DefaultTopics() Topics {
	return Topics{
		Prefix:          DefaultTopicPrefix,
		DiscoveryPrefix: DefaultDiscoveryPrefix,
	}
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return strings.TrimSuffix(t.Prefix, "/")
}

// CommandSubscribe returns the wildcard for all command topics.
func (t Topics) CommandSubscribe() string {
	return t.prefix() + "/+/set"
}

// Command returns the command topic for a device.
func (t Topics) Command(d Device) string {
	return t.prefix() + "/" + string(d) + "/set"
}

// State returns the state topic for a device.
func (t Topics) State(d Device) string {
	return t.prefix() + "/" + string(d) + "/state"
}

// Status returns the liveness topic.
func (t Topics) Status() string {
	return t.prefix() + "/status"
}

// Discovery returns the Home Assistant config topic for a device.
func (t Topics) Discovery(d Device) string {
	p := t.DiscoveryPrefix
	if p == "" {
		p = DefaultDiscoveryPrefix
	}
	return strings.TrimSuffix(p, "/") + "/light/" + string(d) + "/config"
}

// deviceFromTopic extracts the device segment from a command topic.
// The device is the second-to-last segment: home/light/<device>/set.
func deviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return "", false
	}
	return parts[len(parts)-2], true
}
