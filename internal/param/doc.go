// Package param translates device parameter values between their wire
// representation and their structured form.
//
// The vendor cloud transports every device parameter as a string. How that
// string is interpreted depends on the parameter type:
//
//   - Snooze mode and motion-zone lists carry a JSON document in the raw
//     bytes of the wire string.
//   - The doorbell notification mode carries plain JSON.
//   - Everything else is an opaque string and passes through untouched.
//
// Writes go in the opposite direction: values are JSON-serialised, and
// snooze mode is additionally base64-wrapped.
//
// # Known asymmetry
//
// The snooze-mode pipeline is intentionally asymmetric: Encode produces
// base64-wrapped JSON, but Decode parses the raw wire bytes as JSON without
// a base64 step. This mirrors the cloud API's observed behaviour exactly;
// "fixing" one side breaks round-trips against the real service.
//
// Decode never fails: a malformed wire value yields an empty string so a
// single corrupt parameter cannot poison a directory refresh.
package param
