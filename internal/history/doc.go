// Package history retrieves historical event records from the cloud.
//
// The API only answers bounded windows, so every query carries an
// explicit start and end time encoded as seconds since the epoch. The
// convenience All query emulates an unbounded lookup by fixing the
// window to the fifteen years before now.
//
// Records are consumed per call and never cached.
package history
