package directory

import "errors"

// Sentinel errors for directory operations.
var (
	// ErrDeviceNotFound indicates the serial number is not in the mirror.
	ErrDeviceNotFound = errors.New("directory: device not found")

	// ErrHubNotFound indicates the serial number is not in the mirror.
	ErrHubNotFound = errors.New("directory: hub not found")

	// ErrParamNotFound indicates the device has no value for the
	// requested parameter type.
	ErrParamNotFound = errors.New("directory: parameter not found")
)
