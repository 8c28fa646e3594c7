//go:build linux && !nodevices

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

var (
	// V4L2 library state
	v4l2Once    sync.Once
	v4l2Handle  uintptr
	v4l2InitErr error
	v4l2Loaded  bool
)

// Native ABI of libcamera_v4l2.so, version 1. Strings returned by the
// library are freed with camera_v4l2_free_string; int32 results are 0 on
// success unless noted.
const (
	v4l2LibName    = "libcamera_v4l2.so"
	v4l2ABISymbol  = "camera_v4l2_abi_version"
	v4l2ABIVersion = 1
)

var (
	// int32 camera_v4l2_device_count(void)
	camV4L2DeviceCount func() int32
	// char *camera_v4l2_device_path(int32 index), e.g. "/dev/video0"
	camV4L2DevicePath func(index int32) uintptr
	// char *camera_v4l2_device_name(int32 index)
	camV4L2DeviceName func(index int32) uintptr
	// void camera_v4l2_free_string(char *s)
	camV4L2FreeString func(ptr uintptr)
	// int32 camera_v4l2_device_supports_size(const char *path, int32 w, int32 h, uint32 fourcc): nonzero if supported
	camV4L2DeviceSupportsSize func(devicePath uintptr, width, height int32, fourcc uint32) int32
	// int32 camera_v4l2_device_set_focus_mode(const char *path, int32 mode): mode is a FocusMode
	camV4L2DeviceSetFocusMode func(devicePath uintptr, mode int32) int32
	// uint64 camera_v4l2_capture_create(const char *path, int32 w, int32 h, uint32 fourcc,
	//     int32 drop_late, callback cb, uintptr user_data): 0 on failure
	//
	// cb(uintptr plane0, int32 stride0, uintptr plane1, int32 stride1,
	//    int32 width, int32 height, int32 planes, int64 timestamp_ns, uintptr user_data)
	// runs on the library's capture thread, never concurrently for one capture.
	camV4L2CaptureCreate func(devicePath uintptr, width, height int32, fourcc uint32, dropLate int32, callback, userData uintptr) uint64
	// int32 camera_v4l2_capture_start(uint64 handle)
	camV4L2CaptureStart func(handle uint64) int32
	// int32 camera_v4l2_capture_stop(uint64 handle): returns after the capture thread has exited
	camV4L2CaptureStop func(handle uint64) int32
	// void camera_v4l2_capture_destroy(uint64 handle)
	camV4L2CaptureDestroy func(handle uint64)
	// const char *camera_v4l2_get_error(void): last error on the calling thread
	camV4L2GetError func() uintptr
)

func v4l2Funcs() []nativeFunc {
	return []nativeFunc{
		{"camera_v4l2_device_count", &camV4L2DeviceCount},
		{"camera_v4l2_device_path", &camV4L2DevicePath},
		{"camera_v4l2_device_name", &camV4L2DeviceName},
		{"camera_v4l2_free_string", &camV4L2FreeString},
		{"camera_v4l2_device_supports_size", &camV4L2DeviceSupportsSize},
		{"camera_v4l2_device_set_focus_mode", &camV4L2DeviceSetFocusMode},
		{"camera_v4l2_capture_create", &camV4L2CaptureCreate},
		{"camera_v4l2_capture_start", &camV4L2CaptureStart},
		{"camera_v4l2_capture_stop", &camV4L2CaptureStop},
		{"camera_v4l2_capture_destroy", &camV4L2CaptureDestroy},
		{"camera_v4l2_get_error", &camV4L2GetError},
	}
}

func initV4L2() {
	v4l2Once.Do(func() {
		libPath := findLibrary(v4l2LibName)
		if libPath == "" {
			v4l2InitErr = fmt.Errorf("%s not found", v4l2LibName)
			return
		}

		handle, err := loadNativeLibrary(libPath, v4l2ABISymbol, v4l2ABIVersion, v4l2Funcs())
		if err != nil {
			v4l2InitErr = err
			return
		}
		v4l2Handle = handle
		v4l2Loaded = true
	})
}

// IsV4L2Available returns true if the V4L2 wrapper library is available.
func IsV4L2Available() bool {
	initV4L2()
	return v4l2Loaded
}

// V4L2InitError reports why the wrapper library could not be loaded.
func V4L2InitError() error {
	initV4L2()
	return v4l2InitErr
}

func v4l2LastError() error {
	errPtr := camV4L2GetError()
	if errPtr == 0 {
		return errors.New("unknown error")
	}
	return errors.New(goStringFromPtr(errPtr))
}

// LinuxDeviceProvider implements DeviceProvider using V4L2 via purego.
type LinuxDeviceProvider struct {
	mu sync.RWMutex
}

// NewLinuxDeviceProvider creates a new Linux-based device provider.
func NewLinuxDeviceProvider() *LinuxDeviceProvider {
	initV4L2()
	return &LinuxDeviceProvider{}
}

// ListVideoDevices returns available video input devices (cameras).
func (p *LinuxDeviceProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	if !v4l2Loaded {
		return nil, fmt.Errorf("V4L2 not available: %v", v4l2InitErr)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	count := camV4L2DeviceCount()
	devices := make([]DeviceInfo, 0, count)

	for i := int32(0); i < count; i++ {
		pathPtr := camV4L2DevicePath(i)
		namePtr := camV4L2DeviceName(i)

		if pathPtr != 0 && namePtr != 0 {
			devices = append(devices, DeviceInfo{
				DeviceID: goStringFromPtr(pathPtr),
				Label:    goStringFromPtr(namePtr),
			})
		}
		if pathPtr != 0 {
			camV4L2FreeString(pathPtr)
		}
		if namePtr != 0 {
			camV4L2FreeString(namePtr)
		}
	}

	return devices, nil
}

// OpenVideoDevice opens a V4L2 device node such as /dev/video0.
func (p *LinuxDeviceProvider) OpenVideoDevice(ctx context.Context, deviceID string) (Device, error) {
	devices, err := p.ListVideoDevices(ctx)
	if err != nil {
		return nil, err
	}
	for _, d := range devices {
		if d.DeviceID == deviceID {
			return &v4l2Device{info: d, path: cString(deviceID)}, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
}

// v4l2Device is a V4L2 device node. V4L2 has no configuration lock, so
// exclusive configuration is enforced in process.
type v4l2Device struct {
	info   DeviceInfo
	path   []byte // NUL-terminated device path
	mu     sync.Mutex
	locked bool
}

func (d *v4l2Device) Info() DeviceInfo { return d.info }

// SupportsPreset reports whether the device enumerates the preset size in
// any of the formats this package consumes.
func (d *v4l2Device) SupportsPreset(preset Preset) bool {
	w, h := preset.Dimensions()
	defer runtime.KeepAlive(d.path)
	for _, f := range []PixelFormat{PixelFormatNV12, PixelFormatBGRA32} {
		if camV4L2DeviceSupportsSize(cStringPtr(d.path), int32(w), int32(h), v4l2FourCC(f)) != 0 {
			return true
		}
	}
	return false
}

func (d *v4l2Device) LockForConfiguration() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.locked {
		return errors.New("device already locked for configuration")
	}
	d.locked = true
	return nil
}

func (d *v4l2Device) UnlockForConfiguration() {
	d.mu.Lock()
	d.locked = false
	d.mu.Unlock()
}

// SetFocusMode maps the mode onto V4L2_CID_FOCUS_AUTO and
// V4L2_CID_AUTO_FOCUS_START.
func (d *v4l2Device) SetFocusMode(mode FocusMode) error {
	d.mu.Lock()
	locked := d.locked
	d.mu.Unlock()
	if !locked {
		return errors.New("device not locked for configuration")
	}

	defer runtime.KeepAlive(d.path)
	if camV4L2DeviceSetFocusMode(cStringPtr(d.path), int32(mode)) != 0 {
		return v4l2LastError()
	}
	return nil
}

// v4l2FourCC returns the V4L2 pixel format code for f.
func v4l2FourCC(f PixelFormat) uint32 {
	le := func(a, b, c, d byte) uint32 {
		return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
	}
	switch f {
	case PixelFormatNV12:
		return le('N', 'V', '1', '2')
	case PixelFormatBGRA32:
		return le('A', 'R', '2', '4') // V4L2_PIX_FMT_ABGR32: B, G, R, A in memory
	case PixelFormatRGBA32:
		return le('A', 'B', '2', '4') // V4L2_PIX_FMT_RGBA32
	case PixelFormatI420:
		return le('Y', 'U', '1', '2')
	default:
		return 0
	}
}

// Active captures for callback routing
var (
	v4l2CapturesMu     sync.RWMutex
	v4l2Captures       = make(map[uintptr]*v4l2Capture)
	v4l2CaptureCounter uintptr
	v4l2Callback       uintptr
	v4l2CallbackOnce   sync.Once
)

func initV4L2Callback() {
	v4l2CallbackOnce.Do(func() {
		v4l2Callback = purego.NewCallback(v4l2FrameCallbackHandler)
	})
}

// v4l2FrameCallbackHandler runs on the wrapper's capture thread while the
// dequeued buffer is owned by user space.
func v4l2FrameCallbackHandler(
	plane0 uintptr, stride0 int32,
	plane1 uintptr, stride1 int32,
	width, height int32,
	planes int32,
	timestampNs int64,
	userData uintptr,
) {
	v4l2CapturesMu.RLock()
	capture, ok := v4l2Captures[userData]
	v4l2CapturesMu.RUnlock()

	if !ok || capture == nil || !capture.running.Load() {
		return
	}

	buf := &capture.buf
	buf.W = int(width)
	buf.H = int(height)
	buf.TimeNs = timestampNs
	buf.Strides[0] = int(stride0)
	buf.Planes[0] = bytesAt(plane0, int(stride0)*int(height))
	if planes > 1 {
		buf.Strides[1] = int(stride1)
		buf.Planes[1] = bytesAt(plane1, int(stride1)*((int(height)+1)/2))
	}

	capture.handler(buf)

	// The buffer is requeued to the driver after the callback.
	for i := range buf.Planes {
		buf.Planes[i] = nil
	}
}

// v4l2Capture streams a V4L2 device through the wrapper library.
type v4l2Capture struct {
	handle    uint64
	captureID uintptr
	handler   RawBufferHandler
	running   atomic.Bool
	buf       VideoFrame // Reused; callbacks are serialized
	mu        sync.Mutex
}

// NewCaptureSession implements DeviceProvider.
func (p *LinuxDeviceProvider) NewCaptureSession(ctx context.Context, dev Device, config CaptureConfig, handler RawBufferHandler) (CaptureSession, error) {
	if !v4l2Loaded {
		return nil, fmt.Errorf("V4L2 not available: %v", v4l2InitErr)
	}
	d, ok := dev.(*v4l2Device)
	if !ok {
		return nil, fmt.Errorf("device %T does not belong to the V4L2 provider", dev)
	}

	initV4L2Callback()

	v4l2CapturesMu.Lock()
	v4l2CaptureCounter++
	captureID := v4l2CaptureCounter
	v4l2CapturesMu.Unlock()

	var dropLate int32
	if config.DiscardLateFrames {
		dropLate = 1
	}
	w, h := config.Preset.Dimensions()
	handle := camV4L2CaptureCreate(
		cStringPtr(d.path),
		int32(w), int32(h),
		v4l2FourCC(config.PixelFormat),
		dropLate,
		v4l2Callback,
		captureID,
	)
	runtime.KeepAlive(d.path)

	if handle == 0 {
		return nil, fmt.Errorf("failed to create video capture: %v", v4l2LastError())
	}

	planes := config.PixelFormat.PlaneCount()
	c := &v4l2Capture{
		handle:    handle,
		captureID: captureID,
		handler:   handler,
		buf: VideoFrame{
			Planes:  make([][]byte, planes),
			Strides: make([]int, planes),
			Format:  config.PixelFormat,
		},
	}

	v4l2CapturesMu.Lock()
	v4l2Captures[captureID] = c
	v4l2CapturesMu.Unlock()

	return c, nil
}

func (c *v4l2Capture) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 {
		return errors.New("capture closed")
	}
	c.running.Store(true)
	if camV4L2CaptureStart(c.handle) != 0 {
		c.running.Store(false)
		return fmt.Errorf("failed to start video capture: %v", v4l2LastError())
	}
	return nil
}

// Stop joins the wrapper's capture thread before returning.
func (c *v4l2Capture) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handle == 0 || !c.running.Load() {
		return nil
	}
	c.running.Store(false)
	if camV4L2CaptureStop(c.handle) != 0 {
		return fmt.Errorf("failed to stop video capture: %v", v4l2LastError())
	}
	return nil
}

func (c *v4l2Capture) Close() error {
	err := c.Stop()

	c.mu.Lock()
	if c.handle != 0 {
		camV4L2CaptureDestroy(c.handle)
		c.handle = 0
	}
	c.mu.Unlock()

	v4l2CapturesMu.Lock()
	delete(v4l2Captures, c.captureID)
	v4l2CapturesMu.Unlock()

	return err
}

func init() {
	// Only register on Linux
	if runtime.GOOS == "linux" {
		initV4L2()
		if v4l2Loaded {
			RegisterDeviceProvider(NewLinuxDeviceProvider())
		}
	}
}
