package camera

import (
	"fmt"
	"sync/atomic"
)

// RawBuffer is one frame of pixel data as delivered by the capture layer.
// Plane data is only valid between Lock and Unlock; callers must hold the
// lock for the whole duration of any access.
type RawBuffer interface {
	// Width returns the frame width in pixels.
	Width() int

	// Height returns the frame height in pixels.
	Height() int

	// PixelFormat returns the hardware pixel format.
	PixelFormat() PixelFormat

	// Planar reports whether the buffer stores separate planes.
	Planar() bool

	// PlaneCount returns the number of planes (1 for packed buffers).
	PlaneCount() int

	// Plane returns the bytes of plane i starting at its base address.
	Plane(i int) []byte

	// Stride returns the number of bytes per row of plane i.
	Stride(i int) int

	// Timestamp returns the capture timestamp in nanoseconds.
	Timestamp() int64

	// Lock pins the buffer memory read-only.
	Lock()

	// Unlock releases a previous Lock.
	Unlock()
}

// RawBufferHandler receives raw buffers on the capture thread.
type RawBufferHandler func(buf RawBuffer)

// VideoFrame is a RawBuffer backed by Go memory.
// It is what the simulated provider produces and what tests feed the bridge.
type VideoFrame struct {
	Planes  [][]byte    // Plane data (1-3 planes depending on format)
	Strides []int       // Stride for each plane in bytes
	W       int         // Frame width in pixels
	H       int         // Frame height in pixels
	Format  PixelFormat // Pixel format
	TimeNs  int64       // Capture timestamp in nanoseconds

	locks atomic.Int32
}

// NewVideoFrame allocates a tightly packed frame of the given format.
func NewVideoFrame(width, height int, format PixelFormat) *VideoFrame {
	f := &VideoFrame{W: width, H: height, Format: format}

	switch format {
	case PixelFormatBGRA32, PixelFormatRGBA32:
		f.Planes = [][]byte{make([]byte, width*height*4)}
		f.Strides = []int{width * 4}
	case PixelFormatNV12:
		// Y plane + interleaved CbCr at half resolution
		f.Planes = [][]byte{
			make([]byte, width*height),
			make([]byte, width*((height+1)/2)),
		}
		f.Strides = []int{width, width}
	case PixelFormatI420:
		uvSize := ((width + 1) / 2) * ((height + 1) / 2)
		f.Planes = [][]byte{
			make([]byte, width*height),
			make([]byte, uvSize),
			make([]byte, uvSize),
		}
		f.Strides = []int{width, (width + 1) / 2, (width + 1) / 2}
	default:
		panic(fmt.Sprintf("camera: cannot allocate %v frame", format))
	}

	return f
}

func (f *VideoFrame) Width() int               { return f.W }
func (f *VideoFrame) Height() int              { return f.H }
func (f *VideoFrame) PixelFormat() PixelFormat { return f.Format }
func (f *VideoFrame) Planar() bool             { return len(f.Planes) > 1 }
func (f *VideoFrame) PlaneCount() int          { return len(f.Planes) }
func (f *VideoFrame) Timestamp() int64         { return f.TimeNs }

func (f *VideoFrame) Plane(i int) []byte {
	return f.Planes[i]
}

func (f *VideoFrame) Stride(i int) int {
	return f.Strides[i]
}

// Lock implements RawBuffer. Go memory needs no pinning; the lock depth is
// tracked so unbalanced use can be detected.
func (f *VideoFrame) Lock() {
	f.locks.Add(1)
}

// Unlock implements RawBuffer.
func (f *VideoFrame) Unlock() {
	if f.locks.Add(-1) < 0 {
		panic("camera: VideoFrame unlocked more times than locked")
	}
}

// Locked reports whether the frame is currently locked.
func (f *VideoFrame) Locked() bool {
	return f.locks.Load() > 0
}

// Clone creates a deep copy of the video frame.
// Use this when you need to keep the frame data beyond its original lifetime.
func (f *VideoFrame) Clone() *VideoFrame {
	clone := &VideoFrame{
		Planes:  make([][]byte, len(f.Planes)),
		Strides: make([]int, len(f.Strides)),
		W:       f.W,
		H:       f.H,
		Format:  f.Format,
		TimeNs:  f.TimeNs,
	}
	copy(clone.Strides, f.Strides)
	for i, plane := range f.Planes {
		if plane != nil {
			clone.Planes[i] = make([]byte, len(plane))
			copy(clone.Planes[i], plane)
		}
	}
	return clone
}
