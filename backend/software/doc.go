// Package software is the CPU reference video backend. It implements the
// same compositing semantics as the GPU backend (dequantization, shader
// variant selection, passthrough blending, clear-color policy) with
// per-pixel arithmetic on image buffers, serving as the comparison target
// for backend-independent behavior and as a fallback where no device is
// available.
package software
