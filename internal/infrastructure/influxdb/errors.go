package influxdb

import "errors"

var (
	// ErrNotConnected means the archive client is not connected.
	ErrNotConnected = errors.New("influxdb: not connected")

	// ErrConnectionFailed means the initial ping did not succeed.
	ErrConnectionFailed = errors.New("influxdb: connection failed")

	// ErrDisabled means the event archive is turned off in config. The
	// caller treats this as "run without an archive", not a failure.
	ErrDisabled = errors.New("influxdb: disabled in configuration")
)
