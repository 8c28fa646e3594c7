//go:build darwin && !nodevices

package camera

import (
	"context"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAVFoundationAvailability(t *testing.T) {
	t.Logf("AVFoundation available: %v", IsAVFoundationAvailable())
	if !IsAVFoundationAvailable() {
		assert.Error(t, AVFoundationInitError())
	}
}

func TestAVFoundationWrapperRejectsForeignLibrary(t *testing.T) {
	lib := openLibc(t)

	err := bindNativeFuncs(lib, avfFuncs())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "camera_av_")

	assert.NotPanics(t, func() {
		_, err = loadNativeLibrary(libcPath(), avfABISymbol, avfABIVersion, avfFuncs())
	})
	assert.ErrorContains(t, err, avfABISymbol)
}

func TestAVFoundationProvider_ListVideoDevices(t *testing.T) {
	if !IsAVFoundationAvailable() {
		t.Skip("AVFoundation not available")
	}

	provider := NewAVFoundationProvider()
	devices, err := provider.ListVideoDevices(context.Background())
	require.NoError(t, err)

	t.Logf("Found %d video devices:", len(devices))
	for _, d := range devices {
		t.Logf("  - %s (%s)", d.Label, d.DeviceID)
	}
}

func TestAVFoundationProvider_OpenUnknownDevice(t *testing.T) {
	if !IsAVFoundationAvailable() {
		t.Skip("AVFoundation not available")
	}

	_, err := NewAVFoundationProvider().OpenVideoDevice(context.Background(), "no-such-device")
	assert.ErrorIs(t, err, ErrDeviceNotFound)
}

func TestAVFoundationProvider_Registration(t *testing.T) {
	provider := GetDeviceProvider()
	if provider == nil {
		t.Log("No device provider registered (AVFoundation library may not be available)")
		return
	}
	if _, ok := provider.(*AVFoundationProvider); !ok {
		t.Logf("Device provider is not AVFoundationProvider, got %T", provider)
	}
}

func TestAVFoundationProvider_Capture(t *testing.T) {
	if !IsAVFoundationAvailable() {
		t.Skip("AVFoundation not available")
	}
	devices, err := NewAVFoundationProvider().ListVideoDevices(context.Background())
	require.NoError(t, err)
	if len(devices) == 0 {
		t.Skip("no cameras")
	}

	loop := NewLoop()
	cfg := DefaultConfig()
	cfg.Provider = NewAVFoundationProvider()
	cfg.Dispatcher = loop

	session, err := NewSession[color.RGBA](context.Background(), cfg)
	if err != nil {
		t.Skipf("camera cannot be configured (permission?): %v", err)
	}
	defer session.Close()

	frames := 0
	require.NoError(t, session.Start(func(f *Frame[color.RGBA]) {
		f.Update(Negate)
		frames++
	}))

	deadline := time.Now().Add(3 * time.Second)
	for frames == 0 && time.Now().Before(deadline) {
		loop.RunPending()
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, session.Stop())
	t.Logf("Received %d frames", frames)
}
