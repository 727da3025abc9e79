// Package bridge runs HearthLink's poll loop.
//
// The bridge ties the cloud-facing services to the local
// infrastructure:
//
//	            ┌──────────────┐
//	 cloud ───▶ │ directory    │──▶ MQTT state topics (retained)
//	            │ history      │──▶ MQTT event topics + InfluxDB
//	            └──────────────┘
//	                   │
//	                   ▼
//	            SQLite snapshots (session, directory, event cursor)
//
// Two timers drive it: a directory refresh that mirrors devices and
// hubs, and an event poll that fetches history records newer than the
// persisted high-water mark. A subscription on the param/set command
// topic accepts parameter writes from local automation and forwards
// them to the cloud.
//
// MQTT and InfluxDB are both optional; the bridge degrades to a
// poll-and-persist loop when they are absent.
package bridge
