package camera

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// captureBridge connects a capture session to its Session. It runs on two
// contexts: onRawBuffer on the capture thread and deliver on the dispatcher.
// It holds the session handle only; both entry points resolve it first and
// do nothing once the session is closed.
type captureBridge[P any] struct {
	handle uint64
	log    logrus.FieldLogger

	// fillMu is held from pool acquisition until the copy completes, so at
	// most one frame is being filled even if arrivals overlap.
	fillMu sync.Mutex
}

func newCaptureBridge[P any](handle uint64, log logrus.FieldLogger) *captureBridge[P] {
	return &captureBridge[P]{
		handle: handle,
		log:    log,
	}
}

// onRawBuffer is the capture callback. It never waits for the consumer.
func (b *captureBridge[P]) onRawBuffer(raw RawBuffer) {
	s, ok := lookupSession[P](b.handle)
	if !ok {
		return
	}

	frame := b.fill(s, raw)
	s.captured.Add(1)

	s.dispatcher.Dispatch(func() {
		b.deliver(frame)
	})
}

// fill copies raw into a pooled frame. raw is locked for the duration of
// the copy and unlocked on every exit path.
func (b *captureBridge[P]) fill(s *Session[P], raw RawBuffer) *Frame[P] {
	b.fillMu.Lock()
	defer b.fillMu.Unlock()

	frame := s.pool.Acquire(raw.Width(), raw.Height())

	raw.Lock()
	defer raw.Unlock()

	s.format.Copy(frame, raw)
	frame.Timestamp = raw.Timestamp()
	return frame
}

// deliver runs on the dispatcher. The frame goes back to the pool whether
// or not a handler is registered.
func (b *captureBridge[P]) deliver(frame *Frame[P]) {
	s, ok := lookupSession[P](b.handle)
	if !ok {
		b.log.WithField("timestamp", frame.Timestamp).Trace("Dropping delivery for closed session")
		return
	}
	defer s.pool.Release(frame)

	handler := s.currentHandler()
	if handler == nil {
		s.reclaimed.Add(1)
		return
	}

	handler(frame)
	s.delivered.Add(1)
}
