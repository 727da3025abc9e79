// Package influxdb provides the time-series event archive for HearthLink.
//
// This package manages:
//   - Connection to InfluxDB v2 with token authentication
//   - Non-blocking batched writes of cloud events
//   - Poll-cycle statistics for monitoring the bridge itself
//   - Connection health monitoring
//
// # Write Semantics
//
// All writes are non-blocking. Points are buffered and flushed in
// batches on a timer; write failures surface asynchronously through
// the SetOnError callback. A slow or unreachable InfluxDB never
// stalls the poll loop.
//
// # Configuration
//
// The archive is optional and disabled by default:
//
//	influxdb:
//	  enabled: true
//	  url: "http://localhost:8086"
//	  org: "home"
//	  bucket: "hearthlink"
//	  batch_size: 100
//	  flush_interval: 10
//
// The token should be supplied via HEARTHLINK_INFLUXDB_TOKEN.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	client.WriteEvent("T8210N1234567890", "T8010N0987654321", "motion", start, end)
package influxdb
