package camera

import "errors"

// Sentinel errors, matched with errors.Is.

// Construction errors.
var (
	// ErrDeviceNotFound indicates no capture device is available.
	ErrDeviceNotFound = errors.New("no camera device found")

	// ErrUnsupportedPreset indicates the device cannot capture at the requested preset.
	ErrUnsupportedPreset = errors.New("session preset not supported")

	// ErrDeviceConfiguration indicates the device could not be locked or configured.
	ErrDeviceConfiguration = errors.New("device configuration failed")

	// ErrUnsupportedPixelFormat indicates no Format is registered for the pixel type.
	ErrUnsupportedPixelFormat = errors.New("pixel type has no registered format")
)

// Lifecycle errors.
var (
	// ErrSessionClosed indicates the session has been closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrNilHandler indicates Start was called without a frame handler.
	ErrNilHandler = errors.New("nil frame handler")
)
