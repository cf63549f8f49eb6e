package api

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	log "github.com/cihub/seelog"

	"github.com/jmmontanana/phantom-monitoring-client/mferrors"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/boardpower"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/cpuperf"
	"github.com/jmmontanana/phantom-monitoring-client/plugins/resources"
	"github.com/jmmontanana/phantom-monitoring-client/registry"
)

// The three metric names the original library's METRIC_NAME_1/2/3
// constants carry (mf_api.h), kept lowercase exactly as MonitorStart's
// strcmp checks expect; "power" and "disk" are process-scoped monitors
// rebuilt directly (see powermonitor.go/diskmonitor.go), not plugin
// wrappers, since resources_monitor.c/disk_monitor.c's bodies were never
// retrieved and power_monitor.c is itself per-pid, not the agent's
// system-wide Linux_sys_power plugin.
const (
	MetricResources = "resources"
	MetricDisk      = "disk"
	MetricPower     = "power"
)

// processMonitored is the set of metric names handled by a dedicated
// per-process monitor goroutine rather than a registry.Sampler plugin.
var processMonitored = map[string]bool{
	MetricDisk:  true,
	MetricPower: true,
}

// factories maps every metric name an embedding program may request to a
// registry.Sampler factory. "resources" reuses the agent's
// Linux_resources plugin (system-wide, not per-pid — the original's
// resources_monitor.c body was never retrieved to port a per-pid variant
// from). CPU_perf/CPU_FF_perf/Board_power are supplemented: the original
// embedded API only ever exposed three metrics, but nothing in spec.md's
// Non-goals restricts the library variant to that original set, so the
// same plugins the standalone agent can run are reachable here under
// their registry names.
func factories() map[string]registry.Factory {
	return map[string]registry.Factory{
		MetricResources:    func() registry.Sampler { return resources.New() },
		cpuperf.NamePerf:   func() registry.Sampler { return cpuperf.NewPerf(cpuperf.NewPerfEventReader()) },
		cpuperf.NameFFPerf: func() registry.Sampler { return cpuperf.NewFFPerf(cpuperf.NewPerfEventReader()) },
		boardpower.Name:    func() registry.Sampler { return boardpower.New(nil) },
	}
}

// metricEvents is the event list each plugin-backed metric is initialized
// with: every event that plugin supports.
var metricEvents = map[string][]string{
	MetricResources:    {"CPU_usage_rate", "RAM_usage_rate", "net_throughput", "io_throughput"},
	cpuperf.NamePerf:   {"MFLIPS", "MFLOPS", "MIPS"},
	cpuperf.NameFFPerf: {"FLIPS", "FLOPS"},
	boardpower.Name:    {"board_power"},
}

// buildRegistry resolves every requested metric name to either a plugin
// factory or a dedicated process monitor, returning the subset that
// activated successfully (an unknown or unavailable metric is logged and
// dropped rather than failing the whole session, matching Init's
// "skip, don't abort" policy for an individual plugin).
func buildRegistry(requests []MetricRequest) (*registry.Registry, []string, map[string]time.Duration, error) {
	if len(requests) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no metrics requested", mferrors.ErrConfigMissing)
	}

	plugins := make(map[string]time.Duration)
	processIntervals := make(map[string]time.Duration)

	for _, r := range requests {
		if processMonitored[r.Name] {
			processIntervals[r.Name] = r.Interval
			continue
		}
		plugins[r.Name] = r.Interval
	}

	reg := registry.New()
	facs := factories()
	var active []string
	for name, interval := range plugins {
		factory, ok := facs[name]
		if !ok {
			log.Warnf("api: unknown metric %q requested, skipping", name)
			continue
		}
		sampler := factory()
		if err := reg.AddPlugin(name, sampler, metricEvents[name], interval); err != nil {
			log.Warnf("api: metric %q could not initialize, skipping: %v", name, err)
			continue
		}
		active = append(active, name)
	}

	for name := range processIntervals {
		active = append(active, name)
	}

	if len(active) == 0 {
		return nil, nil, nil, fmt.Errorf("%w: no requested metric could be started", mferrors.ErrPluginInitFailed)
	}
	return reg, active, processIntervals, nil
}

// runMonitor samples one metric on its own cadence, appending a JSON
// fragment per sample to <dataPath>/<name>, matching MonitorStart's
// per-metric thread and its append-mode file handle.
func (s *Session) runMonitor(name string) {
	defer s.wg.Done()

	path := filepath.Join(s.dataPath, name)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Errorf("api: could not open data file %s: %v", path, err)
		return
	}
	defer f.Close()

	switch name {
	case MetricDisk:
		runDiskMonitor(s, f, s.processIntervals[MetricDisk])
		return
	case MetricPower:
		runPowerMonitor(s, f, s.processIntervals[MetricPower])
		return
	}

	idx := s.reg.IndexOf(name)
	if idx < 0 {
		log.Errorf("api: metric %q not found in registry", name)
		return
	}

	for s.isRunning() {
		fragment, err := s.reg.Hook(idx)
		cadence := time.Duration(s.reg.Cadence(idx))
		if cadence > 0 {
			time.Sleep(cadence)
		}
		if err != nil {
			log.Warnf("api: metric %q sample failed: %v", name, err)
			continue
		}
		writeLine(f, fragment)
	}
}

func (s *Session) isRunning() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// writeLine appends one JSON fragment as its own line, matching
// power_monitor's fprintf-per-sample.
func writeLine(f *os.File, fragment string) {
	line := fmt.Sprintf("%s\n", fragment)
	if _, err := f.WriteString(line); err != nil {
		log.Warnf("api: could not write sample to %s: %v", f.Name(), err)
	}
}
