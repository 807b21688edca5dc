package vidcomp

import (
	"errors"
	"sync/atomic"
)

// SlotCount is the number of video texture slots. Two is the minimum for
// safe double buffering: the decode context fills slot B while the render
// context samples slot A. The handoff protocol below is only lock-free by
// construction for a single producer and single consumer over two slots.
const SlotCount = 2

// Ring protocol errors.
var (
	// ErrFrameOutOfOrder is returned when a publish would move the
	// published frame index backwards. A published index must never be
	// older than any previously published index observed by the consumer;
	// violating this is a protocol bug in the caller, not a runtime
	// condition.
	ErrFrameOutOfOrder = errors.New("vidcomp: frame published out of order")

	// ErrFrameAbsent is returned when publishing a frame without an index.
	ErrFrameAbsent = errors.New("vidcomp: cannot publish absent frame")
)

// SlotRing coordinates the two-slot handoff between the decode/upload
// context (producer) and the render context (consumer).
//
// The producer owns writeIndex: it fills slot writeIndex, then calls
// Publish, which atomically exposes the slot and advances writeIndex.
// Publish must only be called after the slot's contents are fully written
// (GPU-complete), because the consumer may bind the slot immediately.
//
// The consumer calls Acquire at most once per rendered frame and holds the
// returned slot for all of that frame's draw calls. Because both indices
// only advance forward modulo SlotCount and publish happens strictly after
// the write completes, the two contexts can never touch the same slot
// simultaneously; no mutex is involved.
type SlotRing struct {
	// published holds the last fully written slot index, or
	// noSlotPublished. Written by the producer, read by the consumer.
	published atomic.Int64

	// frames holds the wire-encoded frame index per slot. Written by the
	// producer before the slot is published.
	frames [SlotCount]atomic.Uint64

	// writeIndex is the next slot the producer will fill. Producer-owned;
	// never read by the consumer.
	writeIndex int

	// lastPublished tracks the most recent published frame index for the
	// monotonicity check. Producer-owned.
	lastPublished FrameID
}

// noSlotPublished is the internal encoding of "nothing published yet".
// It never escapes the API: Acquire reports absence via its ok result.
const noSlotPublished = -1

// NewSlotRing returns a ring with no frame published.
func NewSlotRing() *SlotRing {
	r := &SlotRing{}
	r.Reset()
	return r
}

// Reset returns the ring to its initial "no frame published" state.
// Only the producer (or a quiesced teardown path) may call Reset.
func (r *SlotRing) Reset() {
	r.published.Store(noSlotPublished)
	for i := range r.frames {
		r.frames[i].Store(NoFrameSentinel)
	}
	r.writeIndex = 0
	r.lastPublished = FrameID{}
}

// WriteSlot returns the slot the producer must fill next. The producer has
// exclusive access to this slot until Publish is called.
func (r *SlotRing) WriteSlot() int { return r.writeIndex }

// Publish exposes the write slot to the consumer with the given frame
// index and advances the write index. Call only after the slot's contents
// are fully written.
//
// Publishing a frame index older than the previously published one fails
// with ErrFrameOutOfOrder and leaves the ring untouched.
func (r *SlotRing) Publish(id FrameID) error {
	index, ok := id.Index()
	if !ok {
		return ErrFrameAbsent
	}
	if last, ok := r.lastPublished.Index(); ok && index < last {
		return ErrFrameOutOfOrder
	}

	slot := r.writeIndex
	r.frames[slot].Store(index)
	// The frame index store above must be visible before the slot index:
	// atomic.Int64.Store provides the release ordering.
	r.published.Store(int64(slot))
	r.writeIndex = (slot + 1) % SlotCount
	r.lastPublished = id
	return nil
}

// Acquire returns the most recently published slot and its frame index.
// The ok result is false while no frame has been published (before the
// first frame, or after Reset). That is a defined steady state, not an error.
//
// The consumer must call Acquire at most once per rendered frame and use
// the returned slot for the whole frame; re-reading mid-frame could observe
// a newer slot and tear the frame pairing.
func (r *SlotRing) Acquire() (slot int, id FrameID, ok bool) {
	p := r.published.Load()
	if p == noSlotPublished {
		return 0, FrameID{}, false
	}
	slot = int(p)
	return slot, FrameIDFromWire(r.frames[slot].Load()), true
}
