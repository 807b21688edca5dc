package software

import (
	"sync"

	"github.com/xrbridge/vidcomp"
	"github.com/xrbridge/vidcomp/backend"
)

// init registers the software backend on package import.
func init() {
	backend.Register(backend.BackendSoftware, func() backend.VideoBackend {
		return New()
	})
}

// Backend is the CPU video backend. It needs no device and is always
// available.
type Backend struct {
	mu          sync.Mutex
	initialized bool
}

// New creates a software backend.
func New() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return backend.BackendSoftware }

// Init marks the backend ready.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = true
	vidcomp.Logger().Info("software backend initialized")
	return nil
}

// Close resets the backend.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.initialized = false
}

// NewCompositor creates a CPU video compositor.
func (b *Backend) NewCompositor(opts ...vidcomp.Option) (vidcomp.VideoCompositor, error) {
	b.mu.Lock()
	ok := b.initialized
	b.mu.Unlock()
	if !ok {
		return nil, backend.ErrNotInitialized
	}
	return NewCompositor(opts...), nil
}
