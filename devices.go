package camera

import (
	"context"
	"fmt"
	"sync"
)

// DeviceInfo describes a video capture device.
type DeviceInfo struct {
	DeviceID string // Unique identifier for the device
	Label    string // Human-readable device name
}

// Device is an opened capture device.
type Device interface {
	// Info describes the device.
	Info() DeviceInfo

	// SupportsPreset reports whether the device can capture at preset.
	SupportsPreset(preset Preset) bool

	// LockForConfiguration acquires exclusive configuration access.
	LockForConfiguration() error

	// UnlockForConfiguration releases a successful LockForConfiguration.
	UnlockForConfiguration()

	// SetFocusMode changes the focus mode. The device must be locked.
	SetFocusMode(mode FocusMode) error
}

// CaptureConfig configures the capture session created for a Device.
type CaptureConfig struct {
	Preset            Preset      // Capture resolution
	PixelFormat       PixelFormat // Hardware pixel format of delivered buffers
	DiscardLateFrames bool        // Drop frames that arrive while the handler is still busy
}

// CaptureSession streams raw buffers from a device to its handler.
// The handler runs on a capture thread owned by the session; invocations
// never overlap.
type CaptureSession interface {
	// Start begins delivering buffers.
	Start() error

	// Stop halts delivery. When Stop returns the handler is not running.
	Stop() error

	// Close releases the session.
	Close() error
}

// DeviceProvider is implemented by platform-specific capture layers.
type DeviceProvider interface {
	// ListVideoDevices returns available video input devices.
	ListVideoDevices(ctx context.Context) ([]DeviceInfo, error)

	// OpenVideoDevice opens a video input device.
	OpenVideoDevice(ctx context.Context, deviceID string) (Device, error)

	// NewCaptureSession creates a stopped capture session on dev that calls
	// handler for every captured buffer.
	NewCaptureSession(ctx context.Context, dev Device, config CaptureConfig, handler RawBufferHandler) (CaptureSession, error)
}

// deviceRegistry holds the registered device provider.
type deviceRegistry struct {
	provider DeviceProvider
	mu       sync.RWMutex
}

var globalDeviceRegistry = &deviceRegistry{}

// RegisterDeviceProvider registers a platform-specific device provider.
func RegisterDeviceProvider(provider DeviceProvider) {
	globalDeviceRegistry.mu.Lock()
	defer globalDeviceRegistry.mu.Unlock()
	globalDeviceRegistry.provider = provider
}

// GetDeviceProvider returns the registered device provider.
func GetDeviceProvider() DeviceProvider {
	globalDeviceRegistry.mu.RLock()
	defer globalDeviceRegistry.mu.RUnlock()
	return globalDeviceRegistry.provider
}

// ListCameras returns the video devices of the registered provider.
func ListCameras(ctx context.Context) ([]DeviceInfo, error) {
	provider := GetDeviceProvider()
	if provider == nil {
		return nil, fmt.Errorf("no device provider registered: %w", ErrDeviceNotFound)
	}
	return provider.ListVideoDevices(ctx)
}

// openDevice opens deviceID, or the first listed device when deviceID is empty.
func openDevice(ctx context.Context, provider DeviceProvider, deviceID string) (Device, error) {
	if deviceID == "" {
		devices, err := provider.ListVideoDevices(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list video devices: %w", err)
		}
		if len(devices) == 0 {
			return nil, ErrDeviceNotFound
		}
		deviceID = devices[0].DeviceID
	}

	dev, err := provider.OpenVideoDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to open video device %q: %w", deviceID, err)
	}
	if dev == nil {
		return nil, fmt.Errorf("video device %q: %w", deviceID, ErrDeviceNotFound)
	}
	return dev, nil
}

// configureDevice applies the focus mode inside a configuration lock.
func configureDevice(dev Device, focus FocusMode) error {
	if err := dev.LockForConfiguration(); err != nil {
		return fmt.Errorf("%w: lock for configuration: %v", ErrDeviceConfiguration, err)
	}
	defer dev.UnlockForConfiguration()

	if err := dev.SetFocusMode(focus); err != nil {
		return fmt.Errorf("%w: focus mode %v: %v", ErrDeviceConfiguration, focus, err)
	}
	return nil
}
