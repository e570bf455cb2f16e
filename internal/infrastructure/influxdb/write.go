package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementDoorTransition is the measurement written for each transition.
const MeasurementDoorTransition = "door_transition"

// WriteDoorTransition records a door moving from one state to another.
//
// Tags are device_id, name and state (the new state). Fields carry both
// states plus an "open" flag (1 unless the door is now closed) so a
// dashboard can graph door position over time.
func (c *Client) WriteDoorTransition(deviceID, name, from, to string, at time.Time) {
	open := 1
	if to == "closed" {
		open = 0
	}
	c.WritePoint(MeasurementDoorTransition,
		map[string]string{
			"device_id": deviceID,
			"name":      name,
			"state":     to,
		},
		map[string]any{
			"from": from,
			"to":   to,
			"open": open,
		},
		at,
	)
}

// WritePoint writes a point with the given timestamp. A zero timestamp is
// written as now. Points are dropped while disconnected.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, at time.Time) {
	if !c.IsConnected() {
		return
	}
	if at.IsZero() {
		at = time.Now()
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, at))
}
