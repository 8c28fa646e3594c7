//go:build darwin && !nodevices

package camera

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/ebitengine/purego"
)

// AVFoundation permission status values
const (
	AVAuthorizationStatusNotDetermined = 0
	AVAuthorizationStatusRestricted    = 1
	AVAuthorizationStatusDenied        = 2
	AVAuthorizationStatusAuthorized    = 3
)

var (
	avfOnce    sync.Once
	avfHandle  uintptr
	avfInitErr error
	avfLoaded  bool
)

// Native ABI of libcamera_avfoundation.dylib, version 1. Device IDs are
// AVCaptureDevice.uniqueID strings and presets are Preset.String() names.
// Strings returned by the library are freed with camera_av_free_string;
// int32 results are 0 on success unless noted.
const (
	avfLibName    = "libcamera_avfoundation.dylib"
	avfABISymbol  = "camera_av_abi_version"
	avfABIVersion = 1
)

var (
	// int32 camera_av_video_device_count(void)
	camAVVideoDeviceCount func() int32
	// char *camera_av_video_device_id(int32 index)
	camAVVideoDeviceID func(index int32) uintptr
	// char *camera_av_video_device_label(int32 index)
	camAVVideoDeviceLabel func(index int32) uintptr
	// void camera_av_free_string(char *s)
	camAVFreeString func(ptr uintptr)
	// int32 camera_av_camera_permission_status(void): AVAuthorizationStatus
	camAVCameraPermissionStatus func() int32
	// void camera_av_request_camera_permission(void)
	camAVRequestCameraPermission func()
	// int32 camera_av_device_supports_preset(const char *id, const char *preset): nonzero if supported
	camAVDeviceSupportsPreset func(deviceID, preset uintptr) int32
	// int32 camera_av_device_lock_for_configuration(const char *id)
	camAVDeviceLockForConfig func(deviceID uintptr) int32
	// void camera_av_device_unlock_for_configuration(const char *id)
	camAVDeviceUnlockForConfig func(deviceID uintptr)
	// int32 camera_av_device_set_focus_mode(const char *id, int32 mode): AVCaptureDevice.FocusMode
	camAVDeviceSetFocusMode func(deviceID uintptr, mode int32) int32
	// uint64 camera_av_video_capture_create(const char *id, const char *preset, uint32 ostype,
	//     int32 discard_late, callback cb, uintptr user_data): 0 on failure
	//
	// cb(CVPixelBufferRef buf, int64 timestamp_ns, uintptr user_data) runs on
	// the video data output's serial delegate queue.
	camAVVideoCaptureCreate func(deviceID, preset uintptr, pixelFormat uint32, discardLate int32, callback, userData uintptr) uint64
	// int32 camera_av_video_capture_start(uint64 handle)
	camAVVideoCaptureStart func(handle uint64) int32
	// int32 camera_av_video_capture_stop(uint64 handle): returns after the last callback
	camAVVideoCaptureStop func(handle uint64) int32
	// void camera_av_video_capture_destroy(uint64 handle)
	camAVVideoCaptureDestroy func(handle uint64)
	// const char *camera_av_get_error(void)
	camAVGetError func() uintptr

	// CVPixelBuffer accessors, valid inside the frame callback only
	camAVPixelBufferLock        func(buf uintptr) int32
	camAVPixelBufferUnlock      func(buf uintptr) int32
	camAVPixelBufferWidth       func(buf uintptr) int32
	camAVPixelBufferHeight      func(buf uintptr) int32
	camAVPixelBufferFormat      func(buf uintptr) uint32
	camAVPixelBufferIsPlanar    func(buf uintptr) int32
	camAVPixelBufferPlaneCount  func(buf uintptr) int32
	camAVPixelBufferBaseAddress func(buf uintptr, plane int32) uintptr
	camAVPixelBufferBytesPerRow func(buf uintptr, plane int32) int32
	camAVPixelBufferPlaneHeight func(buf uintptr, plane int32) int32
)

func avfFuncs() []nativeFunc {
	return []nativeFunc{
		{"camera_av_video_device_count", &camAVVideoDeviceCount},
		{"camera_av_video_device_id", &camAVVideoDeviceID},
		{"camera_av_video_device_label", &camAVVideoDeviceLabel},
		{"camera_av_free_string", &camAVFreeString},
		{"camera_av_camera_permission_status", &camAVCameraPermissionStatus},
		{"camera_av_request_camera_permission", &camAVRequestCameraPermission},
		{"camera_av_device_supports_preset", &camAVDeviceSupportsPreset},
		{"camera_av_device_lock_for_configuration", &camAVDeviceLockForConfig},
		{"camera_av_device_unlock_for_configuration", &camAVDeviceUnlockForConfig},
		{"camera_av_device_set_focus_mode", &camAVDeviceSetFocusMode},
		{"camera_av_video_capture_create", &camAVVideoCaptureCreate},
		{"camera_av_video_capture_start", &camAVVideoCaptureStart},
		{"camera_av_video_capture_stop", &camAVVideoCaptureStop},
		{"camera_av_video_capture_destroy", &camAVVideoCaptureDestroy},
		{"camera_av_get_error", &camAVGetError},
		{"camera_av_pixel_buffer_lock", &camAVPixelBufferLock},
		{"camera_av_pixel_buffer_unlock", &camAVPixelBufferUnlock},
		{"camera_av_pixel_buffer_width", &camAVPixelBufferWidth},
		{"camera_av_pixel_buffer_height", &camAVPixelBufferHeight},
		{"camera_av_pixel_buffer_format", &camAVPixelBufferFormat},
		{"camera_av_pixel_buffer_is_planar", &camAVPixelBufferIsPlanar},
		{"camera_av_pixel_buffer_plane_count", &camAVPixelBufferPlaneCount},
		{"camera_av_pixel_buffer_base_address", &camAVPixelBufferBaseAddress},
		{"camera_av_pixel_buffer_bytes_per_row", &camAVPixelBufferBytesPerRow},
		{"camera_av_pixel_buffer_plane_height", &camAVPixelBufferPlaneHeight},
	}
}

func initAVFoundation() {
	avfOnce.Do(func() {
		libPath := findLibrary(avfLibName)
		if libPath == "" {
			avfInitErr = fmt.Errorf("%s not found", avfLibName)
			return
		}

		handle, err := loadNativeLibrary(libPath, avfABISymbol, avfABIVersion, avfFuncs())
		if err != nil {
			avfInitErr = err
			return
		}
		avfHandle = handle
		avfLoaded = true
	})
}

// IsAVFoundationAvailable returns true if the AVFoundation wrapper library is available.
func IsAVFoundationAvailable() bool {
	initAVFoundation()
	return avfLoaded
}

// AVFoundationInitError reports why the wrapper library could not be loaded.
func AVFoundationInitError() error {
	initAVFoundation()
	return avfInitErr
}

// CameraPermissionStatus returns the current camera permission status.
func CameraPermissionStatus() int {
	initAVFoundation()
	if !avfLoaded {
		return AVAuthorizationStatusNotDetermined
	}
	return int(camAVCameraPermissionStatus())
}

// RequestCameraPermission requests camera permission (async).
func RequestCameraPermission() {
	initAVFoundation()
	if avfLoaded {
		camAVRequestCameraPermission()
	}
}

func avLastError() error {
	errPtr := camAVGetError()
	if errPtr == 0 {
		return errors.New("unknown error")
	}
	return errors.New(goStringFromPtr(errPtr))
}

// AVFoundationProvider implements DeviceProvider using macOS AVFoundation via purego.
type AVFoundationProvider struct {
	mu sync.RWMutex
}

// NewAVFoundationProvider creates a new AVFoundation-based device provider.
func NewAVFoundationProvider() *AVFoundationProvider {
	initAVFoundation()
	return &AVFoundationProvider{}
}

// ListVideoDevices returns available video input devices (cameras).
func (p *AVFoundationProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	if !avfLoaded {
		return nil, fmt.Errorf("AVFoundation not available: %v", avfInitErr)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	count := camAVVideoDeviceCount()
	devices := make([]DeviceInfo, 0, count)

	for i := int32(0); i < count; i++ {
		idPtr := camAVVideoDeviceID(i)
		labelPtr := camAVVideoDeviceLabel(i)

		if idPtr != 0 && labelPtr != 0 {
			devices = append(devices, DeviceInfo{
				DeviceID: goStringFromPtr(idPtr),
				Label:    goStringFromPtr(labelPtr),
			})
		}
		if idPtr != 0 {
			camAVFreeString(idPtr)
		}
		if labelPtr != 0 {
			camAVFreeString(labelPtr)
		}
	}

	return devices, nil
}

// OpenVideoDevice opens a video capture device.
func (p *AVFoundationProvider) OpenVideoDevice(ctx context.Context, deviceID string) (Device, error) {
	if !avfLoaded {
		return nil, fmt.Errorf("AVFoundation not available: %v", avfInitErr)
	}

	switch camAVCameraPermissionStatus() {
	case AVAuthorizationStatusNotDetermined:
		camAVRequestCameraPermission()
		return nil, fmt.Errorf("camera permission not yet determined, please grant permission and try again")
	case AVAuthorizationStatusDenied, AVAuthorizationStatusRestricted:
		return nil, fmt.Errorf("camera permission denied")
	}

	devices, err := p.ListVideoDevices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return &avDevice{info: d, id: cString(deviceID)}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
}

// avDevice is an AVCaptureDevice identified by its unique ID.
type avDevice struct {
	info DeviceInfo
	id   []byte // NUL-terminated device ID
}

func (d *avDevice) Info() DeviceInfo { return d.info }

func (d *avDevice) SupportsPreset(preset Preset) bool {
	name := cString(preset.String())
	ok := camAVDeviceSupportsPreset(cStringPtr(d.id), cStringPtr(name)) != 0
	runtime.KeepAlive(name)
	runtime.KeepAlive(d.id)
	return ok
}

func (d *avDevice) LockForConfiguration() error {
	defer runtime.KeepAlive(d.id)
	if camAVDeviceLockForConfig(cStringPtr(d.id)) != 0 {
		return avLastError()
	}
	return nil
}

func (d *avDevice) UnlockForConfiguration() {
	camAVDeviceUnlockForConfig(cStringPtr(d.id))
	runtime.KeepAlive(d.id)
}

func (d *avDevice) SetFocusMode(mode FocusMode) error {
	defer runtime.KeepAlive(d.id)
	if camAVDeviceSetFocusMode(cStringPtr(d.id), avFocusMode(mode)) != 0 {
		return avLastError()
	}
	return nil
}

// avFocusMode maps to AVCaptureDevice.FocusMode raw values.
func avFocusMode(mode FocusMode) int32 {
	switch mode {
	case FocusModeLocked:
		return 0
	case FocusModeAutoFocus:
		return 1
	default:
		return 2
	}
}

// Global callback state for purego
var (
	avCapturesMu     sync.RWMutex
	avCaptures       = make(map[uintptr]*avCapture)
	avCaptureCounter uintptr
	frameCallback    uintptr
	callbackOnce     sync.Once
)

// initFrameCallback initializes the purego callback once
func initFrameCallback() {
	callbackOnce.Do(func() {
		frameCallback = purego.NewCallback(avFrameCallbackHandler)
	})
}

// avFrameCallbackHandler runs on the AVCaptureVideoDataOutput delegate queue.
func avFrameCallbackHandler(pixelBuffer uintptr, timestampNs int64, userData uintptr) {
	avCapturesMu.RLock()
	capture, ok := avCaptures[userData]
	avCapturesMu.RUnlock()

	if !ok || capture == nil || !capture.running.Load() {
		return
	}

	capture.buf.ref = pixelBuffer
	capture.buf.timestamp = timestampNs
	capture.handler(&capture.buf)
	capture.buf.ref = 0
}

// avPixelBuffer is a RawBuffer over a CVPixelBuffer that is only valid
// during the frame callback.
type avPixelBuffer struct {
	ref       uintptr
	timestamp int64
}

func (b *avPixelBuffer) Width() int  { return int(camAVPixelBufferWidth(b.ref)) }
func (b *avPixelBuffer) Height() int { return int(camAVPixelBufferHeight(b.ref)) }

func (b *avPixelBuffer) PixelFormat() PixelFormat {
	return PixelFormatFromFourCC(camAVPixelBufferFormat(b.ref))
}

func (b *avPixelBuffer) Planar() bool { return camAVPixelBufferIsPlanar(b.ref) != 0 }

func (b *avPixelBuffer) PlaneCount() int {
	if !b.Planar() {
		return 1
	}
	return int(camAVPixelBufferPlaneCount(b.ref))
}

// Plane returns plane i; for packed buffers plane 0 is the base address.
func (b *avPixelBuffer) Plane(i int) []byte {
	base := camAVPixelBufferBaseAddress(b.ref, int32(i))
	n := b.Stride(i) * int(camAVPixelBufferPlaneHeight(b.ref, int32(i)))
	return bytesAt(base, n)
}

func (b *avPixelBuffer) Stride(i int) int {
	return int(camAVPixelBufferBytesPerRow(b.ref, int32(i)))
}

func (b *avPixelBuffer) Timestamp() int64 { return b.timestamp }

func (b *avPixelBuffer) Lock() {
	if camAVPixelBufferLock(b.ref) != 0 {
		panic(fmt.Sprintf("camera: CVPixelBufferLockBaseAddress failed: %v", avLastError()))
	}
}

func (b *avPixelBuffer) Unlock() {
	camAVPixelBufferUnlock(b.ref)
}

// avCapture is an AVCaptureSession with a video data output.
type avCapture struct {
	handle    uint64
	captureID uintptr
	handler   RawBufferHandler
	running   atomic.Bool
	buf       avPixelBuffer // Reused; callbacks are serialized
	mu        sync.Mutex
}

// NewCaptureSession implements DeviceProvider.
func (p *AVFoundationProvider) NewCaptureSession(ctx context.Context, dev Device, config CaptureConfig, handler RawBufferHandler) (CaptureSession, error) {
	if !avfLoaded {
		return nil, fmt.Errorf("AVFoundation not available: %v", avfInitErr)
	}
	d, ok := dev.(*avDevice)
	if !ok {
		return nil, fmt.Errorf("device %T does not belong to the AVFoundation provider", dev)
	}

	initFrameCallback()

	// Generate capture ID for callback routing
	avCapturesMu.Lock()
	avCaptureCounter++
	captureID := avCaptureCounter
	avCapturesMu.Unlock()

	var discard int32
	if config.DiscardLateFrames {
		discard = 1
	}
	preset := cString(config.Preset.String())
	handle := camAVVideoCaptureCreate(
		cStringPtr(d.id),
		cStringPtr(preset),
		config.PixelFormat.FourCC(),
		discard,
		frameCallback,
		captureID,
	)
	runtime.KeepAlive(preset)
	runtime.KeepAlive(d.id)

	if handle == 0 {
		return nil, fmt.Errorf("failed to create video capture: %v", avLastError())
	}

	c := &avCapture{
		handle:    handle,
		captureID: captureID,
		handler:   handler,
	}

	avCapturesMu.Lock()
	avCaptures[captureID] = c
	avCapturesMu.Unlock()

	return c, nil
}

func (c *avCapture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 {
		return errors.New("capture closed")
	}
	c.running.Store(true)
	if camAVVideoCaptureStart(c.handle) != 0 {
		c.running.Store(false)
		return fmt.Errorf("failed to start video capture: %v", avLastError())
	}
	return nil
}

// Stop stops the session; stopRunning returns after the delegate queue has
// delivered its last frame.
func (c *avCapture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 || !c.running.Load() {
		return nil
	}
	c.running.Store(false)
	if camAVVideoCaptureStop(c.handle) != 0 {
		return fmt.Errorf("failed to stop video capture: %v", avLastError())
	}
	return nil
}

func (c *avCapture) Close() error {
	err := c.Stop()

	c.mu.Lock()
	if c.handle != 0 {
		camAVVideoCaptureDestroy(c.handle)
		c.handle = 0
	}
	c.mu.Unlock()

	// Remove from active captures
	avCapturesMu.Lock()
	delete(avCaptures, c.captureID)
	avCapturesMu.Unlock()

	return err
}

func init() {
	// Only register on Darwin
	if runtime.GOOS == "darwin" {
		initAVFoundation()
		if avfLoaded {
			RegisterDeviceProvider(NewAVFoundationProvider())
		}
	}
}
