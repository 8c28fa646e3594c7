package camera

import (
	"context"
	"errors"
	"fmt"
	"image/color"
	"math"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"time"
)

// PatternType defines the test pattern a simulated camera produces.
type PatternType int

const (
	PatternColorBars    PatternType = iota // SMPTE color bars
	PatternGradient                        // Horizontal gradient
	PatternCheckerboard                    // Checkerboard pattern
	PatternSolidColor                      // Solid color
	PatternNoise                           // Random noise
	PatternMovingBox                       // Moving box (animated)
)

func (p PatternType) String() string {
	switch p {
	case PatternColorBars:
		return "ColorBars"
	case PatternGradient:
		return "Gradient"
	case PatternCheckerboard:
		return "Checkerboard"
	case PatternSolidColor:
		return "SolidColor"
	case PatternNoise:
		return "Noise"
	case PatternMovingBox:
		return "MovingBox"
	default:
		return "Unknown"
	}
}

// SimulatedCameraConfig configures one simulated camera.
type SimulatedCameraConfig struct {
	DeviceID    string      // Device ID (default: "sim-<index>")
	Label       string      // Device label (default: "Simulated Camera <index>")
	Presets     []Preset    // Supported presets (default: all)
	FocusModes  []FocusMode // Supported focus modes (default: all)
	FPS         int         // Frames per second (default: 30)
	Pattern     PatternType // Pattern type (default: ColorBars)
	SolidColor  color.RGBA  // Color for PatternSolidColor
	CheckerSize int         // Size of each checker square (default: 32)
}

// SimulatedProvider is a DeviceProvider backed by synthetic cameras.
// It needs no hardware and is what tests and demos run against.
type SimulatedProvider struct {
	cameras []*SimulatedCamera
}

// NewSimulatedProvider creates a provider with the given cameras, or a
// single default camera when none are given.
func NewSimulatedProvider(configs ...SimulatedCameraConfig) *SimulatedProvider {
	if len(configs) == 0 {
		configs = []SimulatedCameraConfig{{}}
	}

	p := &SimulatedProvider{}
	for i, cfg := range configs {
		if cfg.DeviceID == "" {
			cfg.DeviceID = fmt.Sprintf("sim-%d", i)
		}
		if cfg.Label == "" {
			cfg.Label = fmt.Sprintf("Simulated Camera %d", i)
		}
		if cfg.FPS <= 0 {
			cfg.FPS = 30
		}
		if cfg.CheckerSize <= 0 {
			cfg.CheckerSize = 32
		}
		if len(cfg.Presets) == 0 {
			for preset := range presetInfo {
				cfg.Presets = append(cfg.Presets, Preset(preset))
			}
		}
		if len(cfg.FocusModes) == 0 {
			cfg.FocusModes = []FocusMode{FocusModeContinuousAutoFocus, FocusModeAutoFocus, FocusModeLocked}
		}
		p.cameras = append(p.cameras, &SimulatedCamera{config: cfg})
	}
	return p
}

// ListVideoDevices implements DeviceProvider.
func (p *SimulatedProvider) ListVideoDevices(ctx context.Context) ([]DeviceInfo, error) {
	devices := make([]DeviceInfo, 0, len(p.cameras))
	for _, c := range p.cameras {
		devices = append(devices, c.Info())
	}
	return devices, nil
}

// OpenVideoDevice implements DeviceProvider.
func (p *SimulatedProvider) OpenVideoDevice(ctx context.Context, deviceID string) (Device, error) {
	for _, c := range p.cameras {
		if c.config.DeviceID == deviceID {
			return c, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrDeviceNotFound, deviceID)
}

// NewCaptureSession implements DeviceProvider.
func (p *SimulatedProvider) NewCaptureSession(ctx context.Context, dev Device, config CaptureConfig, handler RawBufferHandler) (CaptureSession, error) {
	cam, ok := dev.(*SimulatedCamera)
	if !ok {
		return nil, fmt.Errorf("device %T does not belong to the simulated provider", dev)
	}
	if !cam.SupportsPreset(config.Preset) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPreset, config.Preset)
	}
	if handler == nil {
		return nil, errors.New("nil raw buffer handler")
	}

	width, height := config.Preset.Dimensions()
	switch config.PixelFormat {
	case PixelFormatBGRA32, PixelFormatNV12:
	default:
		return nil, fmt.Errorf("simulated camera cannot produce %v", config.PixelFormat)
	}

	return &SimulatedCapture{
		camera:        cam,
		config:        config,
		handler:       handler,
		frame:         NewVideoFrame(width, height, config.PixelFormat),
		frameDuration: time.Second / time.Duration(cam.config.FPS),
		rngState:      uint64(time.Now().UnixNano()) | 1,
	}, nil
}

// SimulatedCamera is a Device produced by SimulatedProvider.
type SimulatedCamera struct {
	config SimulatedCameraConfig

	mu     sync.Mutex
	locked bool
	focus  FocusMode
}

// Info implements Device.
func (c *SimulatedCamera) Info() DeviceInfo {
	return DeviceInfo{DeviceID: c.config.DeviceID, Label: c.config.Label}
}

// SupportsPreset implements Device.
func (c *SimulatedCamera) SupportsPreset(preset Preset) bool {
	return slices.Contains(c.config.Presets, preset)
}

// LockForConfiguration implements Device.
func (c *SimulatedCamera) LockForConfiguration() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.locked {
		return errors.New("device already locked for configuration")
	}
	c.locked = true
	return nil
}

// UnlockForConfiguration implements Device.
func (c *SimulatedCamera) UnlockForConfiguration() {
	c.mu.Lock()
	c.locked = false
	c.mu.Unlock()
}

// SetFocusMode implements Device.
func (c *SimulatedCamera) SetFocusMode(mode FocusMode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.locked {
		return errors.New("device not locked for configuration")
	}
	if !slices.Contains(c.config.FocusModes, mode) {
		return fmt.Errorf("focus mode %v not supported", mode)
	}
	c.focus = mode
	return nil
}

// FocusMode returns the focus mode last applied.
func (c *SimulatedCamera) FocusMode() FocusMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.focus
}

// ConfigurationLocked reports whether the device is locked for configuration.
func (c *SimulatedCamera) ConfigurationLocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.locked
}

// SimulatedCapture is the CaptureSession of a simulated camera. While
// running, a dedicated OS thread renders the pattern at the camera's frame
// rate and calls the handler.
type SimulatedCapture struct {
	camera        *SimulatedCamera
	config        CaptureConfig
	handler       RawBufferHandler
	frame         *VideoFrame
	frameDuration time.Duration

	// emitMu serializes handler invocations and guards the render state.
	emitMu     sync.Mutex
	frameCount uint64
	rngState   uint64
	startTime  time.Time

	running atomic.Bool
	cancel  context.CancelFunc
	doneCh  chan struct{}
	dropped atomic.Uint64
	emitted atomic.Uint64
}

// Start implements CaptureSession.
func (c *SimulatedCapture) Start() error {
	if c.running.Load() {
		return fmt.Errorf("capture already running")
	}

	var ctx context.Context
	ctx, c.cancel = context.WithCancel(context.Background())
	c.doneCh = make(chan struct{})
	c.emitMu.Lock()
	c.startTime = time.Now()
	c.emitMu.Unlock()
	c.running.Store(true)

	go c.captureLoop(ctx)

	return nil
}

// Stop implements CaptureSession. It waits for the capture thread to exit.
func (c *SimulatedCapture) Stop() error {
	if !c.running.Load() {
		return nil
	}

	c.running.Store(false)
	if c.cancel != nil {
		c.cancel()
	}
	if c.doneCh != nil {
		<-c.doneCh
	}
	return nil
}

// Close implements CaptureSession.
func (c *SimulatedCapture) Close() error {
	return c.Stop()
}

// Emitted returns the number of buffers handed to the handler.
func (c *SimulatedCapture) Emitted() uint64 {
	return c.emitted.Load()
}

// Dropped returns the number of late frames discarded.
func (c *SimulatedCapture) Dropped() uint64 {
	return c.dropped.Load()
}

// Emit renders one frame and passes it to the handler on the calling
// goroutine, regardless of whether the capture is running. When late frames
// are discarded and a previous frame is still being handled, the frame is
// dropped and Emit returns false.
func (c *SimulatedCapture) Emit() bool {
	if c.config.DiscardLateFrames {
		if !c.emitMu.TryLock() {
			c.dropped.Add(1)
			return false
		}
	} else {
		c.emitMu.Lock()
	}
	defer c.emitMu.Unlock()

	c.frameCount++
	c.render(c.frameCount)
	if !c.startTime.IsZero() {
		c.frame.TimeNs = time.Since(c.startTime).Nanoseconds()
	} else {
		c.frame.TimeNs = int64(c.frameCount) * c.frameDuration.Nanoseconds()
	}

	c.handler(c.frame)
	c.emitted.Add(1)
	return true
}

func (c *SimulatedCapture) captureLoop(ctx context.Context) {
	defer close(c.doneCh)

	// Hardware capture callbacks arrive on one dedicated thread.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	ticker := time.NewTicker(c.frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Emit()
		}
	}
}

// render draws the pattern into c.frame in the capture pixel format.
func (c *SimulatedCapture) render(frameNum uint64) {
	f := c.frame
	w, h := f.W, f.H

	switch f.Format {
	case PixelFormatBGRA32:
		plane, stride := f.Planes[0], f.Strides[0]
		for y := 0; y < h; y++ {
			row := plane[y*stride:]
			for x := 0; x < w; x++ {
				r, g, b := c.patternRGB(x, y, frameNum)
				row[x*4+0] = b
				row[x*4+1] = g
				row[x*4+2] = r
				row[x*4+3] = 0xff
			}
		}
	case PixelFormatNV12:
		yPlane, yStride := f.Planes[0], f.Strides[0]
		uvPlane, uvStride := f.Planes[1], f.Strides[1]
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				r, g, b := c.patternRGB(x, y, frameNum)
				yy, cb, cr := color.RGBToYCbCr(r, g, b)
				yPlane[y*yStride+x] = yy

				// CbCr subsampled 2x2
				if x%2 == 0 && y%2 == 0 {
					idx := (y/2)*uvStride + x
					uvPlane[idx] = cb
					uvPlane[idx+1] = cr
				}
			}
		}
	}
}

// SMPTE color bars (simplified 8-bar pattern)
var colorBarsRGB = [][3]uint8{
	{192, 192, 192}, // White (75%)
	{192, 192, 0},   // Yellow
	{0, 192, 192},   // Cyan
	{0, 192, 0},     // Green
	{192, 0, 192},   // Magenta
	{192, 0, 0},     // Red
	{0, 0, 192},     // Blue
	{16, 16, 16},    // Black
}

func (c *SimulatedCapture) patternRGB(x, y int, frameNum uint64) (r, g, b uint8) {
	cfg := c.camera.config
	w, h := c.frame.W, c.frame.H

	switch cfg.Pattern {
	case PatternGradient:
		v := uint8((x * 255) / w)
		return v, v, v
	case PatternCheckerboard:
		if ((x/cfg.CheckerSize)+(y/cfg.CheckerSize))%2 == 0 {
			return 235, 235, 235
		}
		return 16, 16, 16
	case PatternSolidColor:
		return cfg.SolidColor.R, cfg.SolidColor.G, cfg.SolidColor.B
	case PatternNoise:
		// xorshift64
		c.rngState ^= c.rngState << 13
		c.rngState ^= c.rngState >> 7
		c.rngState ^= c.rngState << 17
		v := uint8(c.rngState)
		return v, v, v
	case PatternMovingBox:
		// Box moves in a circle around the centre
		boxSize := 100
		radius := float64(min(w, h)) / 4
		angle := float64(frameNum) * 0.05 // Radians per frame
		boxX := w/2 + int(radius*math.Cos(angle)) - boxSize/2
		boxY := h/2 + int(radius*math.Sin(angle)) - boxSize/2
		if x >= boxX && x < boxX+boxSize && y >= boxY && y < boxY+boxSize {
			return 235, 235, 235
		}
		return 16, 16, 16
	default:
		barIdx := min(x/max(w/8, 1), 7)
		rgb := colorBarsRGB[barIdx]
		return rgb[0], rgb[1], rgb[2]
	}
}
