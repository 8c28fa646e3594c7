package camera

import "sync"

// DefaultMaxFree is the number of idle frames a pool keeps by default.
// One frame is being filled while another is with the consumer.
const DefaultMaxFree = 2

// PoolStats is a snapshot of pool bookkeeping.
type PoolStats struct {
	Allocated   int    // Frames currently owned by the pool (free + in flight)
	Free        int    // Frames waiting for reuse
	InFlight    int    // Frames checked out and not yet released
	Allocations uint64 // Frames ever allocated
}

// FramePool recycles frames between the capture thread and the consumer.
//
// Acquire never blocks: when no free frame of the requested size exists a
// new one is allocated. Released frames are reused oldest first.
type FramePool[P any] struct {
	fill    P
	maxFree int

	mu          sync.Mutex
	free        []*Frame[P] // FIFO, oldest first
	inFlight    int
	allocations uint64
	closed      bool
}

// NewFramePool creates a pool whose new frames are filled with fill.
// maxFree bounds the number of idle frames retained; values <= 0 select
// DefaultMaxFree.
func NewFramePool[P any](fill P, maxFree int) *FramePool[P] {
	if maxFree <= 0 {
		maxFree = DefaultMaxFree
	}
	return &FramePool[P]{
		fill:    fill,
		maxFree: maxFree,
		free:    make([]*Frame[P], 0, maxFree),
	}
}

// Acquire returns a width x height frame checked out of the pool.
// Free frames of other sizes are dropped.
func (p *FramePool[P]) Acquire(width, height int) *Frame[P] {
	p.mu.Lock()
	defer p.mu.Unlock()

	for len(p.free) > 0 {
		f := p.free[0]
		n := copy(p.free, p.free[1:])
		p.free[n] = nil
		p.free = p.free[:n]
		if f.Width == width && f.Height == height {
			f.inFlight = true
			p.inFlight++
			return f
		}
	}

	f := p.newFrameLocked(width, height)
	f.inFlight = true
	p.inFlight++
	return f
}

// Release returns a frame obtained from Acquire. Releasing nil, a frame from
// another pool, a frame that is not checked out, or releasing after Close is
// ignored.
func (p *FramePool[P]) Release(f *Frame[P]) {
	if f == nil || f.pool != p {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !f.inFlight {
		return
	}
	f.inFlight = false
	p.inFlight--

	if p.closed || len(p.free) >= p.maxFree {
		return
	}
	p.free = append(p.free, f)
}

// Prewarm allocates free frames until n of the given size are available
// (bounded by the pool's retention limit).
func (p *FramePool[P]) Prewarm(width, height, n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	n = min(n, p.maxFree)
	have := 0
	for _, f := range p.free {
		if f.Width == width && f.Height == height {
			have++
		}
	}
	for ; have < n && len(p.free) < p.maxFree; have++ {
		p.free = append(p.free, p.newFrameLocked(width, height))
	}
}

// Stats returns a snapshot of the pool state.
func (p *FramePool[P]) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Allocated:   len(p.free) + p.inFlight,
		Free:        len(p.free),
		InFlight:    p.inFlight,
		Allocations: p.allocations,
	}
}

// Close drops all free frames. Frames still in flight are dropped when
// released.
func (p *FramePool[P]) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	clear(p.free)
	p.free = p.free[:0]
}

func (p *FramePool[P]) newFrameLocked(width, height int) *Frame[P] {
	f := NewFrame(width, height, p.fill)
	f.pool = p
	p.allocations++
	return f
}
