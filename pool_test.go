package camera

import (
	"image/color"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramePool_AcquireAllocatesFilled(t *testing.T) {
	pool := NewFramePool(color.RGBA{A: 0xff}, 2)

	f := pool.Acquire(4, 2)
	require.NotNil(t, f)
	assert.Equal(t, 4, f.Width)
	assert.Equal(t, 2, f.Height)
	assert.Equal(t, color.RGBA{A: 0xff}, f.At(3, 1))

	stats := pool.Stats()
	assert.Equal(t, 1, stats.InFlight)
	assert.Equal(t, 0, stats.Free)
	assert.Equal(t, uint64(1), stats.Allocations)
}

func TestFramePool_ReuseFIFO(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 2)

	a := pool.Acquire(2, 2)
	b := pool.Acquire(2, 2)
	pool.Release(a)
	pool.Release(b)

	// Oldest released frame comes back first.
	assert.Same(t, a, pool.Acquire(2, 2))
	assert.Same(t, b, pool.Acquire(2, 2))
	assert.Equal(t, uint64(2), pool.Stats().Allocations)
}

func TestFramePool_SteadyStateNoAllocation(t *testing.T) {
	pool := NewFramePool(color.Gray{}, DefaultMaxFree)

	for i := 0; i < 100; i++ {
		filling := pool.Acquire(8, 8)
		pool.Release(filling)
	}
	assert.Equal(t, uint64(1), pool.Stats().Allocations)
}

func TestFramePool_ReleasedFrameKeepsContents(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 1)

	f := pool.Acquire(2, 1)
	f.Set(1, 0, color.Gray{Y: 200})
	pool.Release(f)

	// Reused frames are not cleared; the copy overwrites every pixel.
	g := pool.Acquire(2, 1)
	assert.Equal(t, color.Gray{Y: 200}, g.At(1, 0))
}

func TestFramePool_MismatchedSizeDropped(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 2)

	small := pool.Acquire(2, 2)
	pool.Release(small)

	big := pool.Acquire(4, 4)
	assert.NotSame(t, small, big)
	assert.Equal(t, 4, big.Width)

	stats := pool.Stats()
	assert.Equal(t, 0, stats.Free, "stale frame should be dropped")
	assert.Equal(t, 1, stats.Allocated)
}

func TestFramePool_RetentionBound(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 2)

	frames := make([]*Frame[color.Gray], 5)
	for i := range frames {
		frames[i] = pool.Acquire(2, 2)
	}
	for _, f := range frames {
		pool.Release(f)
	}

	stats := pool.Stats()
	assert.Equal(t, 2, stats.Free)
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 2, stats.Allocated)
}

func TestFramePool_ReleaseMisuseIgnored(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 2)
	other := NewFramePool(color.Gray{}, 2)

	f := pool.Acquire(2, 2)

	pool.Release(nil)
	pool.Release(NewFrame(2, 2, color.Gray{}))
	pool.Release(other.Acquire(2, 2))
	assert.Equal(t, 1, pool.Stats().InFlight)

	pool.Release(f)
	pool.Release(f)
	stats := pool.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.Equal(t, 1, stats.Free, "double release must not duplicate the frame")
}

func TestFramePool_DefaultMaxFree(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 0)
	assert.Equal(t, DefaultMaxFree, pool.maxFree)
}

func TestFramePool_Prewarm(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 3)

	pool.Prewarm(4, 4, 2)
	stats := pool.Stats()
	assert.Equal(t, 2, stats.Free)
	assert.Equal(t, uint64(2), stats.Allocations)

	// Bounded by maxFree and idempotent.
	pool.Prewarm(4, 4, 10)
	pool.Prewarm(4, 4, 10)
	assert.Equal(t, 3, pool.Stats().Free)

	pool.Acquire(4, 4)
	assert.Equal(t, uint64(3), pool.Stats().Allocations)
}

func TestFramePool_Close(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 2)

	held := pool.Acquire(2, 2)
	pool.Release(pool.Acquire(2, 2))
	require.Equal(t, 1, pool.Stats().Free)

	pool.Close()
	assert.Equal(t, 0, pool.Stats().Free)

	pool.Release(held)
	stats := pool.Stats()
	assert.Equal(t, 0, stats.Free)
	assert.Equal(t, 0, stats.InFlight)

	pool.Prewarm(2, 2, 2)
	assert.Equal(t, 0, pool.Stats().Free)
}

func TestFramePool_ConcurrentAcquireRelease(t *testing.T) {
	pool := NewFramePool(color.Gray{}, 4)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				f := pool.Acquire(16, 16)
				f.Pix[0] = color.Gray{Y: uint8(i)}
				pool.Release(f)
			}
		}()
	}
	wg.Wait()

	stats := pool.Stats()
	assert.Equal(t, 0, stats.InFlight)
	assert.LessOrEqual(t, stats.Free, 4)
}

func BenchmarkFramePool_AcquireRelease(b *testing.B) {
	pool := NewFramePool(color.RGBA{}, DefaultMaxFree)
	pool.Prewarm(640, 480, DefaultMaxFree)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		pool.Release(pool.Acquire(640, 480))
	}
}
