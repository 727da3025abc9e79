package mqtt

import "fmt"

// Topic prefixes for the HearthLink topic hierarchy.
//
// All topics use the flat scheme: hearthlink/{category}/{serial}/{suffix}
const (
	// TopicPrefix is the base for all HearthLink topics.
	TopicPrefix = "hearthlink"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "hearthlink/system"
)

// Topics provides builders for HearthLink MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.DeviceState("T8210N1234567890")
//	// Returns: "hearthlink/device/T8210N1234567890/state"
type Topics struct{}

// DeviceState returns the topic for a device's mirrored state.
//
// Example: hearthlink/device/T8210N1234567890/state
func (Topics) DeviceState(serial string) string {
	return fmt.Sprintf("%s/device/%s/state", TopicPrefix, serial)
}

// DeviceParamSet returns the topic HearthLink subscribes to for
// parameter write commands addressed to a device.
//
// Example: hearthlink/device/T8210N1234567890/param/set
func (Topics) DeviceParamSet(serial string) string {
	return fmt.Sprintf("%s/device/%s/param/set", TopicPrefix, serial)
}

// HubState returns the topic for a hub's mirrored state.
//
// Example: hearthlink/hub/T8010N0987654321/state
func (Topics) HubState(serial string) string {
	return fmt.Sprintf("%s/hub/%s/state", TopicPrefix, serial)
}

// Event returns the topic for cloud events from a device.
//
// Example: hearthlink/event/T8210N1234567890
func (Topics) Event(serial string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, serial)
}

// SystemStatus returns the system status topic. The broker publishes
// the offline LWT here when HearthLink drops without a clean shutdown.
//
// Example: hearthlink/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceParamSets returns a pattern matching parameter write
// commands for every device.
//
// Pattern: hearthlink/device/+/param/set
func (Topics) AllDeviceParamSets() string {
	return fmt.Sprintf("%s/device/+/param/set", TopicPrefix)
}
