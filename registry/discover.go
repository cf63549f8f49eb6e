package registry

import (
	"fmt"
	"time"

	log "github.com/cihub/seelog"

	"github.com/jmmontanana/phantom-monitoring-client/config"
	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/model"
)

// Discover builds a Registry from the [plugins] section of the
// configuration file: every key there names an active plugin, and its
// value is the plugin's comma-separated requested event list. Source file
// system scanning (the original C agent's dlopen over a plugins/
// directory) is replaced by a static factory table selected by
// configuration, per spec.md §9's design note that dynamic loading is
// optional and a static registry selected by configuration satisfies the
// same contract.
//
// A plugin whose factory is unknown, or whose Init fails, is logged and
// skipped rather than treated as fatal (spec.md §7, PluginInitFailed).
func Discover(file *config.File, factories map[string]Factory, defaultCadence time.Duration) *Registry {
	reg := New()

	for name := range file.Section("plugins") {
		factory, ok := factories[name]
		if !ok {
			log.Warnf("discover: no sampler registered for plugin %q, skipping", name)
			continue
		}

		events, _ := file.GetStrArray("plugins", name, ",")

		sampler := factory()
		var buf model.SampleBuffer
		if err := sampler.Init(&buf, events); err != nil {
			log.Warnf("discover: %s", fmt.Errorf("%w: plugin %q: %v", mferrors.ErrPluginInitFailed, name, err))
			continue
		}
		if buf.NumEvents() == 0 {
			log.Warnf("discover: plugin %q supported none of its requested events, skipping", name)
			continue
		}

		cadence := config.PluginCadence(file, name, defaultCadence)
		reg.add(name, events, int64(cadence), sampler, buf)
		log.Infof("discover: activated plugin %s with %d events, cadence %s", name, buf.NumEvents(), cadence)
	}

	return reg
}
