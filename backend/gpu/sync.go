package gpu

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// Sync errors.
var (
	// ErrSignalTimeout is returned when a host wait on a timeline value
	// did not complete in time.
	ErrSignalTimeout = errors.New("gpu: timeline wait timed out")

	// ErrSignalDestroyed is returned when operating on a destroyed signal.
	ErrSignalDestroyed = errors.New("gpu: timeline signal has been destroyed")
)

// TimelineSignal is a monotonically increasing GPU synchronization counter
// coordinating copy-queue to render-queue dependencies. SignalOnSubmit
// atomically reserves the next value and attaches it as the submission's
// fence target; dependents wait on that value either host-side (WaitHost,
// an explicit stall used by teardown) or by scheduling their own submission
// behind it on the same queue.
//
// The counter never decreases. Destroy only after all GPU work referencing
// the signal has completed.
type TimelineSignal struct {
	device hal.Device
	fence  hal.Fence
	value  atomic.Uint64
}

// NewTimelineSignal creates a signal starting at zero.
func NewTimelineSignal(device hal.Device) (*TimelineSignal, error) {
	fence, err := device.CreateFence()
	if err != nil {
		return nil, fmt.Errorf("gpu: create timeline fence: %w", err)
	}
	return &TimelineSignal{device: device, fence: fence}, nil
}

// Value returns the most recently reserved signal value.
func (s *TimelineSignal) Value() uint64 { return s.value.Load() }

// SignalOnSubmit submits the command buffers with the next counter value
// as their completion signal and returns that value as the wait target for
// dependent work. Safe to call from the decode/upload context while the
// render context waits on earlier values.
func (s *TimelineSignal) SignalOnSubmit(queue hal.Queue, bufs []hal.CommandBuffer) (uint64, error) {
	if s.fence == nil {
		return 0, ErrSignalDestroyed
	}
	target := s.value.Add(1)
	if err := queue.Submit(bufs, s.fence, target); err != nil {
		return 0, fmt.Errorf("gpu: timeline submit: %w", err)
	}
	return target, nil
}

// WaitHost blocks the host until the counter reaches target or the timeout
// elapses. Use only where a stall is intended (teardown, slot reuse);
// steady-state frame pacing should rely on queue ordering instead.
func (s *TimelineSignal) WaitHost(target uint64, timeout time.Duration) error {
	if s.fence == nil {
		return ErrSignalDestroyed
	}
	done, err := s.device.Wait(s.fence, target, timeout)
	if err != nil {
		return fmt.Errorf("gpu: timeline wait: %w", err)
	}
	if !done {
		return fmt.Errorf("%w (target %d after %v)", ErrSignalTimeout, target, timeout)
	}
	return nil
}

// Destroy releases the fence. Idempotent.
func (s *TimelineSignal) Destroy() {
	if s.fence != nil {
		s.device.DestroyFence(s.fence)
		s.fence = nil
	}
}

// ExternalSignalExporter is the optional capability of sharing a timeline
// signal across devices or APIs through an OS-level handle: the exporting
// and importing sides then increment and wait on what is logically the
// same counter. Devices that support export implement this on their
// TimelineSignal wrapper; query with a type assertion.
type ExternalSignalExporter interface {
	// ExportSignalHandle returns an OS shareable handle for the signal.
	ExportSignalHandle() (ExternalHandle, error)
}
