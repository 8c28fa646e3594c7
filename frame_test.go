package camera

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFrame(t *testing.T) {
	fill := color.RGBA{R: 1, G: 2, B: 3, A: 4}
	f := NewFrame(4, 3, fill)

	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 3, f.Height)
	assert.Equal(t, 12, f.Len())
	require.Len(t, f.Pix, 12)
	for i, p := range f.Pix {
		assert.Equal(t, fill, p, "pixel %d", i)
	}
}

func TestNewFrame_InvalidSize(t *testing.T) {
	tests := []struct {
		name          string
		width, height int
	}{
		{"zero width", 0, 10},
		{"zero height", 10, 0},
		{"negative", -1, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Panics(t, func() {
				NewFrame(tt.width, tt.height, color.Gray{})
			})
		})
	}
}

func TestFrame_IndexRowMajor(t *testing.T) {
	f := NewFrame(5, 4, color.Gray{})

	assert.Equal(t, 0, f.Index(0, 0))
	assert.Equal(t, 4, f.Index(4, 0))
	assert.Equal(t, 5, f.Index(0, 1))
	assert.Equal(t, 19, f.Index(4, 3))

	f.Set(2, 3, color.Gray{Y: 9})
	assert.Equal(t, color.Gray{Y: 9}, f.Pix[3*5+2])
	assert.Equal(t, color.Gray{Y: 9}, f.At(2, 3))
}

func TestFrame_IndexOutOfRange(t *testing.T) {
	f := NewFrame(5, 4, color.Gray{})

	for _, c := range [][2]int{{5, 0}, {0, 4}, {-1, 0}, {0, -1}} {
		assert.Panics(t, func() { f.Index(c[0], c[1]) }, "(%d,%d)", c[0], c[1])
	}
}

func TestFrame_Update(t *testing.T) {
	f := NewFrame(2, 2, color.RGBA{R: 10, G: 20, B: 30, A: 40})
	f.Update(Negate)

	for _, p := range f.Pix {
		assert.Equal(t, color.RGBA{R: 245, G: 235, B: 225, A: 40}, p)
	}

	// Negation is an involution.
	f.Update(Negate)
	assert.Equal(t, color.RGBA{R: 10, G: 20, B: 30, A: 40}, f.At(1, 1))
}

func TestFrame_BytesAliasesPix(t *testing.T) {
	f := NewFrame(2, 1, color.RGBA{})
	b := f.Bytes()
	require.Len(t, b, 8)

	b[4] = 7
	assert.Equal(t, uint8(7), f.At(1, 0).R)
}

func TestFrame_ImageViews(t *testing.T) {
	rgba := NewFrame(3, 2, color.RGBA{A: 0xff})
	rgba.Set(2, 1, color.RGBA{R: 200, A: 0xff})

	img := RGBAImage(rgba)
	assert.Equal(t, image.Rect(0, 0, 3, 2), img.Bounds())
	assert.Equal(t, color.RGBA{R: 200, A: 0xff}, img.RGBAAt(2, 1))

	gray := NewFrame(3, 2, color.Gray{})
	gray.Set(1, 1, color.Gray{Y: 77})
	gimg := GrayImage(gray)
	assert.Equal(t, color.Gray{Y: 77}, gimg.GrayAt(1, 1))

	// Writes through the view reach the frame.
	gimg.SetGray(0, 0, color.Gray{Y: 5})
	assert.Equal(t, color.Gray{Y: 5}, gray.At(0, 0))
}

func BenchmarkFrame_NegateVGA(b *testing.B) {
	f := NewFrame(640, 480, color.RGBA{R: 1, G: 2, B: 3, A: 0xff})
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		f.Update(Negate)
	}
}
