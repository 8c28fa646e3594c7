package camera

import (
	"fmt"
	"image"
	"image/color"
	"unsafe"
)

// Frame is a fixed-size rectangular pixel buffer. The backing storage holds
// exactly Width*Height elements and is never resized; frames handed out by a
// FramePool are reused across captures.
type Frame[P any] struct {
	Pix       []P   // Row-major pixels, len(Pix) == Width*Height
	Width     int   // Frame width in pixels
	Height    int   // Frame height in pixels
	Timestamp int64 // Capture timestamp in nanoseconds

	pool     *FramePool[P]
	inFlight bool // Guarded by pool.mu
}

// NewFrame creates a width x height frame with every pixel set to fill.
// It panics if either dimension is not positive.
func NewFrame[P any](width, height int, fill P) *Frame[P] {
	if width <= 0 || height <= 0 {
		panic(fmt.Sprintf("camera: invalid frame size %dx%d", width, height))
	}
	f := &Frame[P]{
		Pix:    make([]P, width*height),
		Width:  width,
		Height: height,
	}
	f.Fill(fill)
	return f
}

// Len returns the number of pixels in the frame.
func (f *Frame[P]) Len() int {
	return len(f.Pix)
}

// Index returns the linear index of (x, y). It panics if the coordinates
// fall outside the frame.
func (f *Frame[P]) Index(x, y int) int {
	if x < 0 || x >= f.Width || y < 0 || y >= f.Height {
		panic(fmt.Sprintf("camera: pixel (%d,%d) out of range for %dx%d frame", x, y, f.Width, f.Height))
	}
	return y*f.Width + x
}

// At returns the pixel at (x, y).
func (f *Frame[P]) At(x, y int) P {
	return f.Pix[f.Index(x, y)]
}

// Set stores p at (x, y).
func (f *Frame[P]) Set(x, y int, p P) {
	f.Pix[f.Index(x, y)] = p
}

// Fill sets every pixel to p.
func (f *Frame[P]) Fill(p P) {
	for i := range f.Pix {
		f.Pix[i] = p
	}
}

// Update applies fn to every pixel in row-major order, in place.
func (f *Frame[P]) Update(fn func(p *P)) {
	for i := range f.Pix {
		fn(&f.Pix[i])
	}
}

// Bytes returns the raw backing storage of the frame. The slice aliases
// Pix; writes through it are visible in the frame.
func (f *Frame[P]) Bytes() []byte {
	if len(f.Pix) == 0 {
		return nil
	}
	size := int(unsafe.Sizeof(f.Pix[0]))
	return unsafe.Slice((*byte)(unsafe.Pointer(&f.Pix[0])), len(f.Pix)*size)
}

// RGBAImage returns an *image.RGBA view of the frame without copying.
// The image is only valid while the frame is held by the caller.
func RGBAImage(f *Frame[color.RGBA]) *image.RGBA {
	return &image.RGBA{
		Pix:    f.Bytes(),
		Stride: f.Width * 4,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// GrayImage returns an *image.Gray view of the frame without copying.
// The image is only valid while the frame is held by the caller.
func GrayImage(f *Frame[color.Gray]) *image.Gray {
	return &image.Gray{
		Pix:    f.Bytes(),
		Stride: f.Width,
		Rect:   image.Rect(0, 0, f.Width, f.Height),
	}
}

// Negate inverts the colour channels of an RGBA pixel, leaving alpha.
func Negate(p *color.RGBA) {
	p.R = 255 - p.R
	p.G = 255 - p.G
	p.B = 255 - p.B
}
