package param

import (
	"encoding/base64"
	"encoding/json"
)

// Type identifies a device parameter type on the wire.
type Type int

// Parameter types with non-trivial wire encodings. All other types are
// treated as opaque strings.
const (
	// TypeSnoozeMode is the camera/doorbell snooze configuration.
	TypeSnoozeMode Type = 1271

	// TypeMotionZones is the camera motion detection zone list.
	TypeMotionZones Type = 1204

	// TypeDoorbellNotification is the doorbell notification mode.
	TypeDoorbellNotification Type = 1710
)

// Decode converts a wire value to its structured form based on the
// parameter type.
//
// An empty wire value is returned unchanged. For snooze mode and motion
// zones the wire bytes are interpreted as ASCII text and parsed as JSON;
// the doorbell notification mode is parsed directly as JSON. A parse
// failure yields an empty string, never an error. All other types pass
// through unchanged.
func Decode(t Type, wire string) any {
	if wire == "" {
		return wire
	}

	switch t {
	case TypeSnoozeMode, TypeMotionZones:
		// Raw bytes as ASCII, then JSON. Deliberately no base64 step;
		// see the package documentation for the encode/decode asymmetry.
		var v any
		if err := json.Unmarshal([]byte(wire), &v); err != nil {
			return ""
		}
		return v
	case TypeDoorbellNotification:
		var v any
		if err := json.Unmarshal([]byte(wire), &v); err != nil {
			return ""
		}
		return v
	default:
		return wire
	}
}

// Encode converts a structured value to its wire representation based on
// the parameter type.
//
// Nil and empty-string values encode to an empty string for every type.
// Only those two count as empty: false and 0 are real settings and
// JSON-serialise like any other value. Non-empty values are
// JSON-serialised; snooze mode is additionally wrapped in base64. A
// value that cannot be JSON-serialised encodes to an empty string,
// matching Decode's recover-to-empty policy.
func Encode(t Type, value any) string {
	if value == nil {
		return ""
	}
	if s, ok := value.(string); ok && s == "" {
		return ""
	}

	data, err := json.Marshal(value)
	if err != nil {
		return ""
	}

	if t == TypeSnoozeMode {
		return base64.StdEncoding.EncodeToString(data)
	}
	return string(data)
}
