// Package registry holds the plugin contract every sampler implements and
// the runtime catalog of discovered, active plugins.
package registry

import "github.com/jmmontanana/phantom-monitoring-client/model"

// Sampler is the four-operation contract every plugin exposes (spec.md
// §4.1): initialize against a requested event list, sample once, serialize
// to JSON, and shut down. Implementations must be wait-free with respect to
// other plugins: no locks shared across Sampler instances.
type Sampler interface {
	// Init validates that at least one requested event is supported,
	// fills buf with the supported subset via buf.Init, and captures the
	// sampler's baseline "before" state. Returns a non-nil error wrapping
	// mferrors.ErrPluginInitFailed (or a more specific sentinel) on
	// failure.
	Init(buf *model.SampleBuffer, requestedEvents []string) error

	// Sample reads the current state, computes this window's values into
	// buf, and rolls the stored "before" state forward on success only.
	Sample(buf *model.SampleBuffer) error

	// ToJSON writes the inner comma-separated "name":value pairs (no
	// surrounding braces) for every buf entry whose name appears in
	// requestedEvents, preceded by the plugin name and a timestamp field.
	ToJSON(buf *model.SampleBuffer, requestedEvents []string) string

	// Shutdown releases counters and file handles. Idempotent.
	Shutdown()
}

// Factory constructs a fresh, uninitialized Sampler for a plugin name.
type Factory func() Sampler
