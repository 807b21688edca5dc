package vidcomp

// Config holds compositor construction settings. Backends apply
// DefaultConfig first, then the caller's Options; everything here is also
// adjustable at runtime through the VideoCompositor setters.
type Config struct {
	// PassthroughMode is the initial blending policy.
	PassthroughMode PassthroughMode

	// BlendMode is the environment blend mode reported by the runtime.
	BlendMode BlendMode

	// DrainPolicy selects queue draining for queue-fed decode pipelines.
	DrainPolicy DrainPolicy

	// WaitNextFrame defers the command-buffer completion wait to the start
	// of the next frame instead of the submission point.
	WaitNextFrame bool

	// Mask and Blend tune the passthrough shader.
	Mask  MaskModeParams
	Blend BlendModeParams

	// VisibilityMask enables the stencil pre-pass gating draws to the
	// runtime-supplied visible area. When disabled the render target is
	// treated as fully visible.
	VisibilityMask bool
}

// DefaultConfig returns the settings every backend starts from.
func DefaultConfig() Config {
	return Config{
		PassthroughMode: PassthroughNone,
		BlendMode:       BlendModeOpaque,
		DrainPolicy:     DrainLatest,
		WaitNextFrame:   false,
		Mask:            DefaultMaskModeParams(),
		Blend:           DefaultBlendModeParams(),
		VisibilityMask:  false,
	}
}

// Option configures a compositor during creation.
type Option func(*Config)

// WithPassthroughMode sets the initial passthrough blending policy.
func WithPassthroughMode(mode PassthroughMode) Option {
	return func(c *Config) { c.PassthroughMode = mode }
}

// WithEnvironmentBlendMode sets the runtime's environment blend mode.
func WithEnvironmentBlendMode(mode BlendMode) Option {
	return func(c *Config) { c.BlendMode = mode }
}

// WithDrainPolicy selects the frame queue drain policy. DrainOne shows
// every decoded frame at the cost of queue latency; DrainLatest always
// skips to the newest frame.
func WithDrainPolicy(policy DrainPolicy) Option {
	return func(c *Config) { c.DrainPolicy = policy }
}

// WithCmdBufferWaitNextFrame defers the wait on the previous frame's GPU
// work until the next frame begins, trading memory pressure for
// host/GPU pipelining.
func WithCmdBufferWaitNextFrame(wait bool) Option {
	return func(c *Config) { c.WaitNextFrame = wait }
}

// WithMaskModeParams sets the key color and opacity for PassthroughMask.
func WithMaskModeParams(params MaskModeParams) Option {
	return func(c *Config) { c.Mask = params }
}

// WithBlendModeParams sets the opacity for PassthroughBlend.
func WithBlendModeParams(params BlendModeParams) Option {
	return func(c *Config) { c.Blend = params }
}

// WithVisibilityMask enables the stencil visibility-mask pre-pass.
func WithVisibilityMask(enabled bool) Option {
	return func(c *Config) { c.VisibilityMask = enabled }
}

// ApplyOptions builds a Config from defaults plus the given options.
func ApplyOptions(opts ...Option) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
