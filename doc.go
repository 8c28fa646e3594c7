// Package camera streams frames from a capture device to application code,
// backed by native capture wrappers (libcamera_*).
//
// Key pieces include:
//   - Frame, a fixed-size pixel buffer generic over its element type
//   - Format, the copy strategy from raw hardware buffers into frames
//   - FramePool, which recycles frames between capture and consumer
//   - Session, which owns a device and delivers frames to a FrameHandler
//   - Device providers: AVFoundation (darwin), V4L2 (linux), simulated
//
// # Architecture
//
//	capture thread: RawBuffer -> captureBridge.fill -> FramePool.Acquire + Format.Copy
//	consumer:       Dispatcher -> FrameHandler -> FramePool.Release
//
// The capture thread never waits for the consumer. Frames are handed over
// through a Dispatcher, by default MainLoop(), which the application drains
// from its main goroutine. A closed session turns queued deliveries into
// no-ops.
//
// # Pixel Types
//
// Two pixel types are registered:
//   - color.RGBA, copied from packed BGRA32 buffers
//   - color.Gray, copied from the luma plane of NV12 buffers
//
// Other types can be added with RegisterFormat.
//
// # Native Libraries
//
// Providers load libcamera_avfoundation.dylib or libcamera_v4l2.so through
// purego (CGO_ENABLED=0). Set CAMERA_LIB_PATH to the directory containing
// these libraries. When none is available no provider is registered and
// sessions need an explicit Config.Provider, such as NewSimulatedProvider().
//
// Each library exports an int32 <prefix>_abi_version function (camera_av_ or
// camera_v4l2_) that must return 1, plus the camera_av_* or camera_v4l2_*
// entry points listed next to the function pointers in the provider source.
// Every symbol is resolved before any is bound; a missing symbol or version
// mismatch leaves the provider unregistered and is reported through
// AVFoundationInitError or V4L2InitError.
//
// # Build Tags
//
//   - nodevices: disable native device capture support
package camera
