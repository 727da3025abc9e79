// Package mqtt provides MQTT client connectivity for HearthLink.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// HearthLink uses MQTT to mirror the vendor cloud onto a local message
// bus. Device and hub state, cloud events, and parameter write commands
// all flow through broker topics, so local automation never talks to
// the cloud directly.
//
//	Vendor Cloud <-> HearthLink <-> MQTT Broker <-> Local Automation
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to parameter write commands
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceParamSets(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish device state
//	topic := mqtt.Topics{}.DeviceState("T8210N1234567890")
//	client.PublishRetained(topic, stateJSON)
package mqtt
