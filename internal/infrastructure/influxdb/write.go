package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteEvent writes a single cloud event to the archive.
//
// This is the primary method for recording camera and sensor events.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - deviceSN: Serial number of the device that produced the event
//   - stationSN: Serial number of the hub the device reports through
//   - deviceName: Human-readable device name
//   - start: Event start time (used as the point timestamp)
//   - durationSeconds: Event duration in seconds
//
// Example:
//
//	client.WriteEvent("T8210N1234567890", "T8010N0987654321", "Front Door", start, 12)
func (c *Client) WriteEvent(deviceSN, stationSN, deviceName string, start time.Time, durationSeconds int64) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"events",
		map[string]string{
			"device_sn":  deviceSN,
			"station_sn": stationSN,
		},
		map[string]interface{}{
			"device_name":      deviceName,
			"duration_seconds": durationSeconds,
		},
		start,
	)

	c.writeAPI.WritePoint(point)
}

// WritePollStats writes bridge poll-cycle statistics.
//
// Used for monitoring HearthLink itself: how long cloud polls take
// and how much they return.
//
// Parameters:
//   - cycle: Poll cycle name (e.g., "directory", "events")
//   - durationMS: Cycle duration in milliseconds
//   - records: Number of records the cycle returned
func (c *Client) WritePollStats(cycle string, durationMS int64, records int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"poll_stats",
		map[string]string{
			"cycle": cycle,
		},
		map[string]interface{}{
			"duration_ms": durationMS,
			"records":     records,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

