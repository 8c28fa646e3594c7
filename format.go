package camera

import (
	"fmt"
	"image/color"
	"reflect"
	"sync"
)

// Descriptor is the static metadata of a pixel element type.
type Descriptor[P any] struct {
	Fill        P           // Initial value of freshly allocated frames
	PixelFormat PixelFormat // Hardware format the copy strategy consumes
	Planar      bool        // Whether that hardware format is planar
}

// Format converts raw hardware buffers into frames of pixel type P.
//
// Copy panics if src does not have the planarity or dimensions the format
// expects: that is a configuration error, not a runtime condition.
type Format[P any] interface {
	// Descriptor returns the format metadata.
	Descriptor() Descriptor[P]

	// Copy fills dst from src. dst must have the same dimensions as src and
	// src must be locked by the caller.
	Copy(dst *Frame[P], src RawBuffer)
}

// formatRegistry holds one Format per pixel element type.
type formatRegistry struct {
	formats map[reflect.Type]any
	mu      sync.RWMutex
}

var globalFormatRegistry = &formatRegistry{
	formats: make(map[reflect.Type]any),
}

// RegisterFormat registers the Format used for pixel type P, replacing any
// previous registration for P.
func RegisterFormat[P any](f Format[P]) {
	globalFormatRegistry.mu.Lock()
	defer globalFormatRegistry.mu.Unlock()
	globalFormatRegistry.formats[reflect.TypeOf((*P)(nil)).Elem()] = f
}

// LookupFormat returns the Format registered for pixel type P.
func LookupFormat[P any]() (Format[P], bool) {
	globalFormatRegistry.mu.RLock()
	v, ok := globalFormatRegistry.formats[reflect.TypeOf((*P)(nil)).Elem()]
	globalFormatRegistry.mu.RUnlock()

	if !ok {
		return nil, false
	}
	f, ok := v.(Format[P])
	return f, ok
}

// checkLayout enforces the preconditions shared by all copy strategies.
func checkLayout[P any](d Descriptor[P], dst *Frame[P], src RawBuffer) {
	if src.Planar() != d.Planar {
		panic(fmt.Sprintf("camera: raw buffer planar=%t, format requires planar=%t", src.Planar(), d.Planar))
	}
	if src.Width() != dst.Width || src.Height() != dst.Height {
		panic(fmt.Sprintf("camera: raw buffer is %dx%d, frame is %dx%d",
			src.Width(), src.Height(), dst.Width, dst.Height))
	}
}

// RGBAFormat produces color.RGBA frames from packed BGRA hardware buffers.
var RGBAFormat Format[color.RGBA] = rgbaFormat{}

type rgbaFormat struct{}

func (rgbaFormat) Descriptor() Descriptor[color.RGBA] {
	return Descriptor[color.RGBA]{
		Fill:        color.RGBA{A: 0xff},
		PixelFormat: PixelFormatBGRA32,
		Planar:      false,
	}
}

// Copy takes the first width*height*4 bytes from the base of plane 0 as-is,
// without skipping row padding, and writes channels directly in RGBA order.
// The result is bit-identical to a bulk copy followed by a red/blue swap.
func (f rgbaFormat) Copy(dst *Frame[color.RGBA], src RawBuffer) {
	checkLayout(f.Descriptor(), dst, src)

	out := dst.Bytes()
	swizzleBGRA(out, src.Plane(0)[:len(out)])
}

// swizzleBGRA copies BGRA pixels from src into dst as RGBA.
func swizzleBGRA(dst, src []byte) {
	for i := 0; i+3 < len(src); i += 4 {
		dst[i+0] = src[i+2]
		dst[i+1] = src[i+1]
		dst[i+2] = src[i+0]
		dst[i+3] = src[i+3]
	}
}

// GrayFormat produces color.Gray frames from the luma plane of full-range
// NV12 hardware buffers.
var GrayFormat Format[color.Gray] = grayFormat{}

type grayFormat struct{}

func (grayFormat) Descriptor() Descriptor[color.Gray] {
	return Descriptor[color.Gray]{
		Fill:        color.Gray{},
		PixelFormat: PixelFormatNV12,
		Planar:      true,
	}
}

// Copy takes the first width*height bytes of plane 0 verbatim.
func (f grayFormat) Copy(dst *Frame[color.Gray], src RawBuffer) {
	checkLayout(f.Descriptor(), dst, src)

	out := dst.Bytes()
	copy(out, src.Plane(0)[:len(out)])
}

func init() {
	RegisterFormat(RGBAFormat)
	RegisterFormat(GrayFormat)
}
