package registry

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// descriptor is a plugin's entry in the registry: its identity, its
// requested events, its mutable cadence, the sampler ops, and its own
// sample buffer. Cadence is mutated only by the configuration watcher and
// read by exactly one worker, so a relaxed atomic int64 is sufficient
// (spec.md §5).
type descriptor struct {
	name            string
	requestedEvents []string
	cadence         int64 // nanoseconds
	ops             Sampler
	buf             model.SampleBuffer
}

// Registry is the ordered, append-only (after discovery) catalog of active
// plugins. The index of a descriptor is its identity for the remainder of
// the process's life.
type Registry struct {
	entries []*descriptor
}

// New returns an empty registry, ready to be populated by Discover.
func New() *Registry {
	return &Registry{}
}

// add appends a freshly-initialized plugin to the registry. Not exported:
// only Discover and AddPlugin (in this package) build descriptors, since
// every one must already have had Init called successfully.
func (r *Registry) add(name string, requestedEvents []string, cadence int64, ops Sampler, buf model.SampleBuffer) {
	r.entries = append(r.entries, &descriptor{
		name:            name,
		requestedEvents: requestedEvents,
		cadence:         cadence,
		ops:             ops,
		buf:             buf,
	})
}

// Count returns the number of active plugins.
func (r *Registry) Count() int {
	return len(r.entries)
}

// Name returns the name of plugin i.
func (r *Registry) Name(i int) string {
	return r.entries[i].name
}

// Cadence returns the current sampling period of plugin i, in nanoseconds.
func (r *Registry) Cadence(i int) int64 {
	return atomic.LoadInt64(&r.entries[i].cadence)
}

// SetCadence updates the sampling period of plugin i. Called only by the
// configuration watcher.
func (r *Registry) SetCadence(i int, cadence int64) {
	atomic.StoreInt64(&r.entries[i].cadence, cadence)
}

// Hook performs one Sample followed by ToJSON for plugin i, returning the
// owned JSON fragment (or an error if the sample failed, in which case the
// caller should skip this iteration per spec.md §7's SampleReadFailed
// policy).
func (r *Registry) Hook(i int) (string, error) {
	d := r.entries[i]
	if err := d.ops.Sample(&d.buf); err != nil {
		return "", err
	}
	return d.ops.ToJSON(&d.buf, d.requestedEvents), nil
}

// Shutdown releases every plugin's resources. Safe to call once, at
// process exit, after all sampler workers have joined.
func (r *Registry) Shutdown() {
	for _, d := range r.entries {
		d.ops.Shutdown()
	}
}

// AddPlugin initializes sampler against requestedEvents and, on success,
// appends it to the registry at the given cadence. Exported for callers
// that build a registry from something other than an INI configuration
// file's [plugins] section (see api.buildRegistry, which builds one from
// an explicit metric list instead of Discover's config.File).
func (r *Registry) AddPlugin(name string, sampler Sampler, requestedEvents []string, cadence time.Duration) error {
	var buf model.SampleBuffer
	if err := sampler.Init(&buf, requestedEvents); err != nil {
		return err
	}
	if buf.NumEvents() == 0 {
		return fmt.Errorf("plugin %q supported none of its requested events", name)
	}
	r.add(name, requestedEvents, int64(cadence), sampler, buf)
	return nil
}

// IndexOf returns the index of the plugin named name, or -1 if absent.
func (r *Registry) IndexOf(name string) int {
	for i, d := range r.entries {
		if d.name == name {
			return i
		}
	}
	return -1
}
