package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// measurementLightState holds one point per observed light state change.
const measurementLightState = "light_state"

// WriteLightState records a light state change.
//
// The point is tagged by device and source ("command" or "status") and
// carries the state as a string plus a 0/1 integer for graphing.
//
//	light_state,device=entrance,source=command state="on",value=1i
func (c *Client) WriteLightState(device, state, source string) {
	value := 0
	if state == "on" {
		value = 1
	}

	c.WritePoint(measurementLightState,
		map[string]string{
			"device": device,
			"source": source,
		},
		map[string]interface{}{
			"state": state,
			"value": value,
		},
		time.Now(),
	)
}

// WritePoint writes a point with explicit tags, fields and timestamp.
// It is a no-op when the client is not connected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}, ts time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
