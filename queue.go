package vidcomp

import (
	"sync/atomic"
	"time"
)

// DrainPolicy selects how the render context drains the frame queue when
// the decoder runs on a cooperating thread. The original backends hard-wired
// the policy to the platform; here it is an explicit, testable switch.
type DrainPolicy uint8

const (
	// DrainOne pops exactly one pending frame per rendered frame, so every
	// decoded frame is eventually shown at the cost of a small display
	// queue (the "no-skip" mode).
	DrainOne DrainPolicy = iota

	// DrainLatest drains the queue to the newest frame, dropping stale
	// entries entirely ("skip-to-latest"); lowest latency, frames may be
	// skipped.
	DrainLatest
)

// String returns a human-readable name for the policy.
func (p DrainPolicy) String() string {
	switch p {
	case DrainOne:
		return "drain-one"
	case DrainLatest:
		return "drain-latest"
	default:
		return "unknown"
	}
}

// queueWait bounds every blocking queue operation. Neither side of the
// handoff may stall longer than this; on timeout the producer drops the
// frame and the consumer renders without a new one.
const queueWait = 100 * time.Millisecond

// FrameQueue is a bounded single-producer/single-consumer frame handoff
// for platforms where the decoder pushes from its own thread rather than
// writing texture slots directly. Depth is SlotCount: the producer blocks
// (bounded) when the consumer falls two frames behind.
type FrameQueue struct {
	ch chan *YUVBuffer

	// dropped counts frames discarded by push timeouts and DrainLatest.
	dropped atomic.Uint64
}

// NewFrameQueue returns an empty queue of depth SlotCount.
func NewFrameQueue() *FrameQueue {
	return &FrameQueue{ch: make(chan *YUVBuffer, SlotCount)}
}

// Push enqueues a frame, blocking up to the bounded queue wait when the
// queue is full. On timeout the frame is dropped with a warning and Push
// returns false; the decoder simply moves on to the next frame.
func (q *FrameQueue) Push(frame *YUVBuffer) bool {
	select {
	case q.ch <- frame:
		return true
	default:
	}

	timer := time.NewTimer(queueWait)
	defer timer.Stop()
	select {
	case q.ch <- frame:
		return true
	case <-timer.C:
		q.dropped.Add(1)
		Logger().Warn("frame queue full, frame dropped",
			"frameIndex", frame.FrameIndex.Wire(),
			"wait", queueWait)
		return false
	}
}

// Pop dequeues according to the drain policy. With DrainOne it returns the
// oldest pending frame, waiting up to the bounded queue wait when empty.
// With DrainLatest it discards all but the newest pending frame and never
// waits. The ok result is false when no frame was available in time; the
// caller keeps rendering the previously acquired slot.
func (q *FrameQueue) Pop(policy DrainPolicy) (*YUVBuffer, bool) {
	switch policy {
	case DrainLatest:
		var latest *YUVBuffer
		for {
			select {
			case f := <-q.ch:
				if latest != nil {
					q.dropped.Add(1)
				}
				latest = f
			default:
				if latest == nil {
					return nil, false
				}
				return latest, true
			}
		}
	default: // DrainOne
		select {
		case f := <-q.ch:
			return f, true
		default:
		}
		timer := time.NewTimer(queueWait)
		defer timer.Stop()
		select {
		case f := <-q.ch:
			return f, true
		case <-timer.C:
			return nil, false
		}
	}
}

// TryPop dequeues the oldest pending frame without waiting.
func (q *FrameQueue) TryPop() (*YUVBuffer, bool) {
	select {
	case f := <-q.ch:
		return f, true
	default:
		return nil, false
	}
}

// Flush discards all pending frames. Called during ClearVideoTextures so a
// stream restart never replays stale frames.
func (q *FrameQueue) Flush() {
	for {
		select {
		case <-q.ch:
			q.dropped.Add(1)
		default:
			return
		}
	}
}

// Dropped returns the number of frames discarded so far.
func (q *FrameQueue) Dropped() uint64 { return q.dropped.Load() }
