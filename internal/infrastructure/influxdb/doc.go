// Package influxdb writes light state history to InfluxDB v2.
//
// Every state the bridge publishes is also written as a light_state point
// so switching patterns can be graphed over time. Writes are batched and
// non-blocking, and the integration is optional: Connect returns ErrDisabled
// when influxdb.enabled is false.
//
// Usage:
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // run without history
//	}
//	defer client.Close()
//
//	client.WriteLightState("entrance", "on", "command")
package influxdb
