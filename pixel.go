package camera

// PixelFormat represents the pixel layout delivered by the capture hardware.
type PixelFormat int

const (
	PixelFormatUnknown PixelFormat = iota
	PixelFormatBGRA32              // Packed BGRA, 4 bytes per pixel
	PixelFormatRGBA32              // Packed RGBA, 4 bytes per pixel
	PixelFormatNV12                // YUV 4:2:0 bi-planar, full range (Y + interleaved CbCr)
	PixelFormatI420                // YUV 4:2:0 planar (Y + U + V)
)

func (p PixelFormat) String() string {
	switch p {
	case PixelFormatBGRA32:
		return "BGRA32"
	case PixelFormatRGBA32:
		return "RGBA32"
	case PixelFormatNV12:
		return "NV12"
	case PixelFormatI420:
		return "I420"
	default:
		return "Unknown"
	}
}

// PlaneCount returns the number of planes for this pixel format.
func (p PixelFormat) PlaneCount() int {
	switch p {
	case PixelFormatI420:
		return 3 // Y, U, V
	case PixelFormatNV12:
		return 2 // Y, CbCr
	case PixelFormatBGRA32, PixelFormatRGBA32:
		return 1 // Packed
	default:
		return 0
	}
}

// Planar reports whether the format stores components in separate planes.
func (p PixelFormat) Planar() bool {
	return p.PlaneCount() > 1
}

// FourCC returns the CoreVideo OSType code for the format, which is also
// what the native capture wrappers use to identify it.
func (p PixelFormat) FourCC() uint32 {
	switch p {
	case PixelFormatBGRA32:
		return fourCC('B', 'G', 'R', 'A')
	case PixelFormatRGBA32:
		return fourCC('R', 'G', 'B', 'A')
	case PixelFormatNV12:
		return fourCC('4', '2', '0', 'f')
	case PixelFormatI420:
		return fourCC('y', '4', '2', '0')
	default:
		return 0
	}
}

// PixelFormatFromFourCC maps an OSType code back to a PixelFormat.
func PixelFormatFromFourCC(code uint32) PixelFormat {
	for _, p := range []PixelFormat{PixelFormatBGRA32, PixelFormatRGBA32, PixelFormatNV12, PixelFormatI420} {
		if p.FourCC() == code {
			return p
		}
	}
	return PixelFormatUnknown
}

func fourCC(a, b, c, d byte) uint32 {
	return uint32(a)<<24 | uint32(b)<<16 | uint32(c)<<8 | uint32(d)
}

// Preset selects the capture resolution of a session.
type Preset int

const (
	PresetVGA640x480 Preset = iota
	PresetCIF352x288
	PresetHD1280x720
	PresetHD1920x1080
	PresetHD3840x2160
)

// presetInfo is indexed by Preset.
var presetInfo = [...]struct {
	name          string
	width, height int
}{
	PresetVGA640x480:  {"vga640x480", 640, 480},
	PresetCIF352x288:  {"cif352x288", 352, 288},
	PresetHD1280x720:  {"hd1280x720", 1280, 720},
	PresetHD1920x1080: {"hd1920x1080", 1920, 1080},
	PresetHD3840x2160: {"hd4K3840x2160", 3840, 2160},
}

func (p Preset) valid() bool {
	return p >= 0 && int(p) < len(presetInfo)
}

func (p Preset) String() string {
	if !p.valid() {
		return "unknown"
	}
	return presetInfo[p].name
}

// Dimensions returns the frame size produced by the preset.
func (p Preset) Dimensions() (width, height int) {
	if !p.valid() {
		return 0, 0
	}
	return presetInfo[p].width, presetInfo[p].height
}

// ParsePreset returns the preset with the given name.
func ParsePreset(name string) (Preset, bool) {
	for i, info := range presetInfo {
		if info.name == name {
			return Preset(i), true
		}
	}
	return 0, false
}

// FocusMode is the focus behaviour applied to the device at construction.
type FocusMode int

const (
	FocusModeContinuousAutoFocus FocusMode = iota
	FocusModeAutoFocus
	FocusModeLocked
)

func (m FocusMode) String() string {
	switch m {
	case FocusModeContinuousAutoFocus:
		return "continuous-autofocus"
	case FocusModeAutoFocus:
		return "autofocus"
	case FocusModeLocked:
		return "locked"
	default:
		return "unknown"
	}
}
