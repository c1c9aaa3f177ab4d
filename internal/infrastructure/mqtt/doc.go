// Package mqtt provides MQTT client connectivity for the light bridge.
//
// This package manages:
//   - Connection to the broker with caller-driven reconnection
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The broker is the home automation side of the bridge. Light commands
// arrive on it and light state plus bridge availability are published back.
//
//	Home Assistant ↔ MQTT Broker ↔ lightbridge ↔ Lighting Controller
//
// # Reconnection
//
// paho's built-in auto-reconnect is disabled. When the connection drops the
// OnDisconnect callback fires and the owner decides how often to call
// Reconnect, which makes exactly one attempt.
//
// # Security Considerations
//
//   - Enable TLS (cfg.Broker.TLS=true) when the broker is not on localhost
//   - Set the password via LIGHTBRIDGE_MQTT_PASSWORD, not in the config file
//
// # Usage
//
//	client := mqtt.New(cfg.MQTT, "home/light/status")
//	client.SetOnConnect(func() { /* subscribe, publish online */ })
//	client.SetOnDisconnect(func(err error) { /* schedule Reconnect */ })
//	if err := client.Connect(); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Disconnect(250)
//
//	err := client.Subscribe("home/light/+/set", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("command: %s = %s", topic, payload)
//	        return nil
//	    })
package mqtt
