package camera

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Session.
type State int32

const (
	StateIdle    State = iota // Constructed or stopped
	StateRunning              // Capturing and delivering frames
	StateClosed               // Torn down; terminal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// FrameHandler consumes a delivered frame on the dispatcher's execution
// context. The frame may be modified in place but must not be retained after
// the handler returns: it goes back to the pool.
type FrameHandler[P any] func(frame *Frame[P])

// Config configures a Session.
type Config struct {
	Provider       DeviceProvider     // Capture layer (default: registered provider)
	DeviceID       string             // Device to open (default: first listed device)
	Preset         Preset             // Capture resolution (default: VGA 640x480)
	FocusMode      FocusMode          // Focus applied at construction (default: continuous autofocus)
	Dispatcher     Dispatcher         // Consumer context (default: MainLoop())
	MaxFreeFrames  int                // Idle frames kept by the pool (default: DefaultMaxFree)
	PrewarmFrames  int                // Frames allocated at construction (default: 0, lazy)
	KeepLateFrames bool               // Deliver frames that arrive late instead of discarding them
	Logger         logrus.FieldLogger // Logger (default: logrus standard logger)
}

// DefaultConfig returns a default session configuration.
func DefaultConfig() Config {
	return Config{
		Preset:        PresetVGA640x480,
		FocusMode:     FocusModeContinuousAutoFocus,
		MaxFreeFrames: DefaultMaxFree,
	}
}

// Stats is a snapshot of session counters.
type Stats struct {
	State     State
	Captured  uint64 // Raw buffers copied into frames
	Delivered uint64 // Frames handed to the handler
	Reclaimed uint64 // Frames returned to the pool without a handler
	Pool      PoolStats
}

// Session delivers frames of pixel type P from a capture device to a
// FrameHandler running on the configured Dispatcher.
type Session[P any] struct {
	id         string
	handle     uint64
	config     Config
	device     Device
	format     Format[P]
	dispatcher Dispatcher
	pool       *FramePool[P]
	bridge     *captureBridge[P]
	capture    CaptureSession
	log        logrus.FieldLogger

	mu      sync.Mutex
	state   State
	handler FrameHandler[P]

	captured  atomic.Uint64
	delivered atomic.Uint64
	reclaimed atomic.Uint64
}

// NewSession opens a capture device and prepares a stopped session using
// the Format registered for P.
func NewSession[P any](ctx context.Context, config Config) (*Session[P], error) {
	format, ok := LookupFormat[P]()
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPixelFormat, reflect.TypeOf((*P)(nil)).Elem())
	}
	return NewSessionWithFormat(ctx, config, format)
}

// NewSessionWithFormat is NewSession with an explicit Format.
//
// Construction either fully succeeds or leaves nothing behind: on error no
// capture session exists and no handle is registered.
func NewSessionWithFormat[P any](ctx context.Context, config Config, format Format[P]) (*Session[P], error) {
	if config.Dispatcher == nil {
		config.Dispatcher = MainLoop()
	}
	if config.MaxFreeFrames <= 0 {
		config.MaxFreeFrames = DefaultMaxFree
	}
	if config.Logger == nil {
		config.Logger = logrus.StandardLogger()
	}

	provider := config.Provider
	if provider == nil {
		provider = GetDeviceProvider()
	}
	if provider == nil {
		return nil, fmt.Errorf("no device provider registered: %w", ErrDeviceNotFound)
	}
	if !config.Preset.valid() {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedPreset, config.Preset)
	}

	dev, err := openDevice(ctx, provider, config.DeviceID)
	if err != nil {
		return nil, err
	}
	info := dev.Info()

	if !dev.SupportsPreset(config.Preset) {
		return nil, fmt.Errorf("%w: %v on %q", ErrUnsupportedPreset, config.Preset, info.Label)
	}
	if err := configureDevice(dev, config.FocusMode); err != nil {
		return nil, err
	}

	desc := format.Descriptor()
	id := uuid.NewString()
	s := &Session[P]{
		id:         id,
		config:     config,
		device:     dev,
		format:     format,
		dispatcher: config.Dispatcher,
		pool:       NewFramePool(desc.Fill, config.MaxFreeFrames),
		log: config.Logger.WithFields(logrus.Fields{
			"session": id,
			"device":  info.DeviceID,
		}),
	}
	s.handle = registerSession(s)
	s.bridge = newCaptureBridge[P](s.handle, s.log)

	capture, err := provider.NewCaptureSession(ctx, dev, CaptureConfig{
		Preset:            config.Preset,
		PixelFormat:       desc.PixelFormat,
		DiscardLateFrames: !config.KeepLateFrames,
	}, s.bridge.onRawBuffer)
	if err != nil {
		unregisterSession(s.handle)
		return nil, fmt.Errorf("failed to create capture session: %w", err)
	}
	s.capture = capture

	if config.PrewarmFrames > 0 {
		w, h := config.Preset.Dimensions()
		s.pool.Prewarm(w, h, config.PrewarmFrames)
	}

	s.log.WithFields(logrus.Fields{
		"function":     "NewSession",
		"label":        info.Label,
		"preset":       config.Preset.String(),
		"focus_mode":   config.FocusMode.String(),
		"pixel_format": desc.PixelFormat.String(),
	}).Info("Camera session created")

	return s, nil
}

// ID returns the unique session identifier.
func (s *Session[P]) ID() string {
	return s.id
}

// Device returns the device the session captures from.
func (s *Session[P]) Device() DeviceInfo {
	return s.device.Info()
}

// Config returns the effective session configuration.
func (s *Session[P]) Config() Config {
	return s.config
}

// State returns the current lifecycle state.
func (s *Session[P]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start registers handler and starts capturing. Starting a running session
// is a no-op and keeps the original handler.
func (s *Session[P]) Start(handler FrameHandler[P]) error {
	if handler == nil {
		return ErrNilHandler
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed:
		return ErrSessionClosed
	case StateRunning:
		return nil
	}

	s.handler = handler
	if err := s.capture.Start(); err != nil {
		s.handler = nil
		return fmt.Errorf("failed to start capture: %w", err)
	}
	s.state = StateRunning

	s.log.WithField("function", "Session.Start").Info("Camera session started")
	return nil
}

// Stop stops capturing and clears the handler. Stopping an idle or closed
// session is a no-op. Frames already dispatched are returned to the pool
// without reaching the handler.
func (s *Session[P]) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateRunning {
		return nil
	}

	err := s.capture.Stop()
	s.handler = nil
	s.state = StateIdle

	if err != nil {
		return fmt.Errorf("failed to stop capture: %w", err)
	}
	s.log.WithField("function", "Session.Stop").Info("Camera session stopped")
	return nil
}

// Close stops the session and releases the device and all pooled frames.
// Deliveries still queued on the dispatcher become no-ops. Close is
// idempotent.
func (s *Session[P]) Close() error {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return nil
	}

	var errs []error
	if s.state == StateRunning {
		if err := s.capture.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop capture: %w", err))
		}
	}
	s.handler = nil
	s.state = StateClosed
	s.mu.Unlock()

	unregisterSession(s.handle)
	s.pool.Close()

	if err := s.capture.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close capture: %w", err))
	}

	s.log.WithField("function", "Session.Close").Info("Camera session closed")
	return errors.Join(errs...)
}

// Stats returns a snapshot of the session counters.
func (s *Session[P]) Stats() Stats {
	return Stats{
		State:     s.State(),
		Captured:  s.captured.Load(),
		Delivered: s.delivered.Load(),
		Reclaimed: s.reclaimed.Load(),
		Pool:      s.pool.Stats(),
	}
}

func (s *Session[P]) currentHandler() FrameHandler[P] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handler
}

// Live sessions by handle. Capture callbacks and queued deliveries hold a
// handle rather than the session, so a closed session is never touched.
var (
	liveSessionsMu sync.RWMutex
	liveSessions   = make(map[uint64]any)
	sessionCounter uint64
)

func registerSession(s any) uint64 {
	liveSessionsMu.Lock()
	defer liveSessionsMu.Unlock()
	sessionCounter++
	liveSessions[sessionCounter] = s
	return sessionCounter
}

func unregisterSession(handle uint64) {
	liveSessionsMu.Lock()
	delete(liveSessions, handle)
	liveSessionsMu.Unlock()
}

func lookupSession[P any](handle uint64) (*Session[P], bool) {
	liveSessionsMu.RLock()
	v, ok := liveSessions[handle]
	liveSessionsMu.RUnlock()

	if !ok {
		return nil, false
	}
	s, ok := v.(*Session[P])
	return s, ok
}
