package gpu

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/wgpu/hal"

	"github.com/xrbridge/vidcomp"
)

// Command buffer errors.
var (
	// ErrCmdBufferState is returned when a lifecycle method is called from
	// the wrong state. This is a contract violation in the caller: using a
	// command buffer out of state order is undefined behavior at the
	// driver level (GPU hang or corruption), so it is never downgraded to
	// a recoverable condition.
	ErrCmdBufferState = errors.New("gpu: command buffer used out of state order")

	// ErrFenceTimeout is returned when the completion fence did not signal
	// within the bounded retry budget. The GPU is presumed hung; callers
	// must propagate this up to session teardown rather than spin.
	ErrFenceTimeout = errors.New("gpu: fence wait exhausted retries, GPU presumed hung")
)

// cmdBufferState tracks the submit/wait/reset lifecycle.
type cmdBufferState uint8

const (
	cmdStateUndefined cmdBufferState = iota
	cmdStateInitialized
	cmdStateRecording
	cmdStateExecutable
	cmdStateExecuting
)

// String returns the state name for diagnostics.
func (s cmdBufferState) String() string {
	switch s {
	case cmdStateUndefined:
		return "Undefined"
	case cmdStateInitialized:
		return "Initialized"
	case cmdStateRecording:
		return "Recording"
	case cmdStateExecutable:
		return "Executable"
	case cmdStateExecuting:
		return "Executing"
	default:
		return fmt.Sprintf("cmdBufferState(%d)", uint8(s))
	}
}

// Fence wait bounds: five retries of one second each. A single missed
// deadline is logged and retried (transient scheduling hiccup); exhausting
// the budget is fatal.
const (
	fenceWaitTimeout = 1 * time.Second
	fenceWaitRetries = 5
)

// CmdBuffer wraps one hal command encoder plus its completion fence behind
// the strict lifecycle:
//
//	Undefined → Init → Initialized → Begin → Recording → End → Executable
//	Executable → Exec → Executing → Wait → Executable → Reset → Initialized
//
// Calling a transition from any other state fails with ErrCmdBufferState.
// Wait while Initialized is a no-op success (nothing in flight).
//
// CmdBuffer is not safe for concurrent use; each execution context owns
// its own instance.
type CmdBuffer struct {
	device hal.Device
	queue  hal.Queue
	label  string

	state      cmdBufferState
	encoder    hal.CommandEncoder
	buf        hal.CommandBuffer
	fence      hal.Fence
	fenceValue uint64
}

// NewCmdBuffer returns a command buffer in the Undefined state.
func NewCmdBuffer(label string) *CmdBuffer {
	return &CmdBuffer{label: label}
}

// State returns the current lifecycle state name for diagnostics.
func (cb *CmdBuffer) State() string { return cb.state.String() }

// stateError logs and returns the contract violation for op.
func (cb *CmdBuffer) stateError(op string) error {
	err := fmt.Errorf("%w: %s called while %s (%s)", ErrCmdBufferState, op, cb.state, cb.label)
	vidcomp.Logger().Error("command buffer contract violation",
		"op", op, "state", cb.state.String(), "label", cb.label)
	return err
}

// Init allocates the fence and binds the device and queue:
// Undefined → Initialized.
func (cb *CmdBuffer) Init(device hal.Device, queue hal.Queue) error {
	if cb.state != cmdStateUndefined {
		return cb.stateError("Init")
	}
	fence, err := device.CreateFence()
	if err != nil {
		return fmt.Errorf("gpu: create fence for %s: %w", cb.label, err)
	}
	cb.device = device
	cb.queue = queue
	cb.fence = fence
	cb.state = cmdStateInitialized
	return nil
}

// Begin opens a fresh encoder for recording: Initialized → Recording.
func (cb *CmdBuffer) Begin() error {
	if cb.state != cmdStateInitialized {
		return cb.stateError("Begin")
	}
	encoder, err := cb.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: cb.label,
	})
	if err != nil {
		return fmt.Errorf("gpu: create command encoder for %s: %w", cb.label, err)
	}
	if err := encoder.BeginEncoding(cb.label); err != nil {
		return fmt.Errorf("gpu: begin encoding %s: %w", cb.label, err)
	}
	cb.encoder = encoder
	cb.state = cmdStateRecording
	return nil
}

// Encoder returns the active encoder. Only valid while Recording.
func (cb *CmdBuffer) Encoder() (hal.CommandEncoder, error) {
	if cb.state != cmdStateRecording {
		return nil, cb.stateError("Encoder")
	}
	return cb.encoder, nil
}

// End closes recording: Recording → Executable.
func (cb *CmdBuffer) End() error {
	if cb.state != cmdStateRecording {
		return cb.stateError("End")
	}
	buf, err := cb.encoder.EndEncoding()
	if err != nil {
		cb.encoder.DiscardEncoding()
		cb.encoder = nil
		cb.state = cmdStateInitialized
		return fmt.Errorf("gpu: end encoding %s: %w", cb.label, err)
	}
	cb.buf = buf
	cb.encoder = nil
	cb.state = cmdStateExecutable
	return nil
}

// Exec submits the recorded buffer with a new fence target:
// Executable → Executing.
func (cb *CmdBuffer) Exec() error {
	if cb.state != cmdStateExecutable {
		return cb.stateError("Exec")
	}
	cb.fenceValue++
	if err := cb.queue.Submit([]hal.CommandBuffer{cb.buf}, cb.fence, cb.fenceValue); err != nil {
		return fmt.Errorf("gpu: submit %s: %w", cb.label, err)
	}
	cb.state = cmdStateExecuting
	return nil
}

// Wait blocks until the last Exec completes: Executing → Executable.
// Each missed deadline is logged as a warning and retried; exhausting the
// retry budget returns ErrFenceTimeout. Wait while Initialized is a no-op
// success.
func (cb *CmdBuffer) Wait() error {
	if cb.state == cmdStateInitialized {
		return nil
	}
	if cb.state != cmdStateExecuting {
		return cb.stateError("Wait")
	}
	for attempt := 1; attempt <= fenceWaitRetries; attempt++ {
		done, err := cb.device.Wait(cb.fence, cb.fenceValue, fenceWaitTimeout)
		if err != nil {
			return fmt.Errorf("gpu: fence wait for %s: %w", cb.label, err)
		}
		if done {
			cb.state = cmdStateExecutable
			return nil
		}
		vidcomp.Logger().Warn("fence wait timeout, retrying",
			"label", cb.label, "attempt", attempt, "target", cb.fenceValue)
	}
	return fmt.Errorf("%w (%s, target %d)", ErrFenceTimeout, cb.label, cb.fenceValue)
}

// Reset frees the executed buffer for re-recording:
// Executable → Initialized. Only legal after Wait observed completion.
func (cb *CmdBuffer) Reset() error {
	if cb.state != cmdStateExecutable {
		return cb.stateError("Reset")
	}
	if cb.buf != nil {
		cb.device.FreeCommandBuffer(cb.buf)
		cb.buf = nil
	}
	cb.state = cmdStateInitialized
	return nil
}

// Destroy waits out any in-flight work and releases the fence. Safe to
// call from any state; the command buffer ends Undefined.
func (cb *CmdBuffer) Destroy() {
	switch cb.state {
	case cmdStateExecuting:
		if err := cb.Wait(); err != nil {
			vidcomp.Logger().Warn("destroying command buffer with unfinished work",
				"label", cb.label, "err", err)
		}
	case cmdStateRecording:
		cb.encoder.DiscardEncoding()
		cb.encoder = nil
	}
	if cb.buf != nil {
		cb.device.FreeCommandBuffer(cb.buf)
		cb.buf = nil
	}
	if cb.fence != nil {
		cb.device.DestroyFence(cb.fence)
		cb.fence = nil
	}
	cb.state = cmdStateUndefined
}
